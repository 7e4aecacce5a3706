package model

import "time"

// Cadence selects which recurring schedule a run executes under.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// ParseCadence validates a cadence string.
func ParseCadence(s string) (Cadence, bool) {
	switch Cadence(s) {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return Cadence(s), true
	}
	return "", false
}

// BottleneckResult names the funnel stage most responsible for today's
// underperformance, or explains why none was flagged.
type BottleneckResult struct {
	Stage            string  `json:"stage,omitempty"`
	DeltaPct         float64 `json:"delta_pct"`
	InsufficientData bool    `json:"insufficient_data"`
	Significant      bool    `json:"significant"`
}

// Summary is the executive-summary narrative shape. The AI path and the
// deterministic fallback both produce exactly these fields.
type Summary struct {
	Bullets           []string     `json:"bullets"`
	BiggestBottleneck string       `json:"biggest_bottleneck"`
	BiggestWin        string       `json:"biggest_win"`
	RecommendedFocus  string       `json:"recommended_focus"`
	Deltas            []StageDelta `json:"deltas"`
	Source            string       `json:"source"` // "ai" or "fallback"
}

// StageDelta is one stage's movement against the trailing baseline.
type StageDelta struct {
	Stage    string  `json:"stage"`
	Today    float64 `json:"today"`
	Trailing float64 `json:"trailing"`
	DeltaPct float64 `json:"delta_pct"`
}

// Recommendations is the richer advisory narrative shape.
type Recommendations struct {
	Hypotheses  []string            `json:"hypotheses"`
	Experiments []string            `json:"experiments"`
	Changes     []RecommendedChange `json:"changes"`
	Source      string              `json:"source"`
}

// RecommendedChange is one advisory configuration change, pre-classified by
// the narrative layer and re-classified by the governor before any action.
type RecommendedChange struct {
	ChangeType string `json:"change_type"`
	Detail     string `json:"detail"`
	Category   string `json:"category"` // safe | approval
}

// OrchestratorReport is one persisted engine run, keyed by (cadence, date).
// Re-running the same key overwrites rather than duplicates.
type OrchestratorReport struct {
	ID                 string                  `json:"id"`
	Cadence            Cadence                 `json:"cadence"`
	Date               string                  `json:"date"` // YYYY-MM-DD in the engine timezone
	Scoreboard         Scoreboard              `json:"scoreboard"`
	TrailingScoreboard Scoreboard              `json:"trailing_scoreboard"`
	Bottleneck         BottleneckResult        `json:"bottleneck"`
	AutoApplied        []ChangelogRef          `json:"auto_applied,omitempty"`
	PendingApproval    []ChangelogRef          `json:"pending_approval,omitempty"`
	OpenerLeaderboard  []OpenerStanding        `json:"opener_leaderboard,omitempty"`
	Objections         []ObjectionCount        `json:"objections,omitempty"`
	Gatekeeper         GatekeeperStats         `json:"gatekeeper"`
	LeadSources        []LeadSourcePerformance `json:"lead_sources,omitempty"`
	Segments           []SegmentPerformance    `json:"segments,omitempty"`
	Summary            Summary                 `json:"summary"`
	Recommendations    Recommendations         `json:"recommendations"`
	OrdersTotal        float64                 `json:"orders_total"`
	ComplianceFlags    []string                `json:"compliance_flags,omitempty"`
	GeneratedAt        time.Time               `json:"generated_at"`
}
