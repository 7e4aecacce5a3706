package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Policy    PolicyConfig    `yaml:"policy" mapstructure:"policy"`
	Governor  GovernorConfig  `yaml:"governor" mapstructure:"governor"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the narrative layer.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReportConfig configures report windows and artifact output.
type ReportConfig struct {
	Timezone     string `yaml:"timezone" mapstructure:"timezone"`
	ArtifactDir  string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	TrailingDays int    `yaml:"trailing_days" mapstructure:"trailing_days"`
}

// PolicyConfig collects the engine's decision thresholds so tests can
// exercise boundary values without touching logic.
type PolicyConfig struct {
	// Rebalancer.
	AnsweredFloor int   `yaml:"answered_floor" mapstructure:"answered_floor"`
	WeightBands   []int `yaml:"weight_bands" mapstructure:"weight_bands"`

	// Bottleneck detection.
	SignificancePct float64 `yaml:"significance_pct" mapstructure:"significance_pct"`

	// Advisory low-sample floors.
	OpenerSampleFloor  int `yaml:"opener_sample_floor" mapstructure:"opener_sample_floor"`
	SegmentSampleFloor int `yaml:"segment_sample_floor" mapstructure:"segment_sample_floor"`
	GeoSampleFloor     int `yaml:"geo_sample_floor" mapstructure:"geo_sample_floor"`

	// Governor escalation.
	EarlyHangupEscalationPct float64 `yaml:"early_hangup_escalation_pct" mapstructure:"early_hangup_escalation_pct"`

	// Monthly lead-source allocation shift step (percentage points).
	AllocationStepPct float64 `yaml:"allocation_step_pct" mapstructure:"allocation_step_pct"`
}

// GovernorConfig configures the change governor.
type GovernorConfig struct {
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		AnsweredFloor:            50,
		WeightBands:              []int{40, 40, 20},
		SignificancePct:          2.0,
		OpenerSampleFloor:        50,
		SegmentSampleFloor:       10,
		GeoSampleFloor:           5,
		EarlyHangupEscalationPct: 40.0,
		AllocationStepPct:        5.0,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FUNNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("report.timezone", "America/Chicago")
	v.SetDefault("report.artifact_dir", "reports")
	v.SetDefault("report.trailing_days", 7)

	def := DefaultPolicy()
	v.SetDefault("policy.answered_floor", def.AnsweredFloor)
	v.SetDefault("policy.weight_bands", def.WeightBands)
	v.SetDefault("policy.significance_pct", def.SignificancePct)
	v.SetDefault("policy.opener_sample_floor", def.OpenerSampleFloor)
	v.SetDefault("policy.segment_sample_floor", def.SegmentSampleFloor)
	v.SetDefault("policy.geo_sample_floor", def.GeoSampleFloor)
	v.SetDefault("policy.early_hangup_escalation_pct", def.EarlyHangupEscalationPct)
	v.SetDefault("policy.allocation_step_pct", def.AllocationStepPct)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that required settings are present for a command.
func (c *Config) Validate() error {
	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if len(c.Policy.WeightBands) == 0 {
		return eris.New("config: policy.weight_bands must not be empty")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
