// Package narrative turns the engine's numeric artifacts into executive
// prose via the Anthropic API, with a deterministic rule-based fallback so a
// run never blocks on the external collaborator.
package narrative

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/model"
	"github.com/sells-group/funnel-optimizer/internal/resilience"
	"github.com/sells-group/funnel-optimizer/pkg/anthropic"
)

// Input carries everything the synthesizer may reference. All fields are
// already computed; the synthesizer adds no numbers of its own.
type Input struct {
	Cadence           model.Cadence                 `json:"cadence"`
	Date              string                        `json:"date"`
	Scoreboard        model.Scoreboard              `json:"scoreboard"`
	Trailing          model.Scoreboard              `json:"trailing_scoreboard"`
	Bottleneck        model.BottleneckResult        `json:"bottleneck"`
	Deltas            []model.StageDelta            `json:"deltas"`
	OpenerLeaderboard []model.OpenerStanding        `json:"opener_leaderboard,omitempty"`
	Objections        []model.ObjectionCount        `json:"objections,omitempty"`
	Gatekeeper        model.GatekeeperStats         `json:"gatekeeper"`
	LeadSources       []model.LeadSourcePerformance `json:"lead_sources,omitempty"`
	Segments          []model.SegmentPerformance    `json:"segments,omitempty"`
	ComplianceFlags   []string                      `json:"compliance_flags,omitempty"`
}

const summarySystemPrompt = `You are an analyst for an outbound phone sales team.
You receive a JSON payload of funnel metrics for one reporting window.
Respond with ONLY a JSON object, no prose or markdown fences, shaped exactly:
{
  "bullets": ["3-6 short findings, each citing a number from the payload"],
  "biggest_bottleneck": "one stage name from the payload",
  "biggest_win": "one stage or segment that improved most",
  "recommended_focus": "one sentence naming what to work on next"
}
Use only numbers present in the payload. Never invent metrics.`

const recommendationsSystemPrompt = `You are an analyst for an outbound phone sales team.
You receive a JSON payload of funnel metrics for one reporting window.
Respond with ONLY a JSON object, no prose or markdown fences, shaped exactly:
{
  "hypotheses": ["2-4 plausible causes for the weakest stage"],
  "experiments": ["2-4 concrete tests the team could run"],
  "changes": [{"change_type": "...", "detail": "...", "category": "safe|approval"}]
}
Use only numbers present in the payload. Never invent metrics.`

const summarySchema = `{
  "type": "object",
  "required": ["bullets", "biggest_bottleneck", "biggest_win", "recommended_focus"],
  "properties": {
    "bullets": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "biggest_bottleneck": {"type": "string"},
    "biggest_win": {"type": "string"},
    "recommended_focus": {"type": "string"}
  }
}`

const recommendationsSchema = `{
  "type": "object",
  "required": ["hypotheses", "experiments", "changes"],
  "properties": {
    "hypotheses": {"type": "array", "items": {"type": "string"}},
    "experiments": {"type": "array", "items": {"type": "string"}},
    "changes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["change_type", "detail", "category"],
        "properties": {
          "change_type": {"type": "string"},
          "detail": {"type": "string"},
          "category": {"type": "string", "enum": ["safe", "approval"]}
        }
      }
    }
  }
}`

var (
	compiledSummarySchema         = jsonschema.MustCompileString("summary.json", summarySchema)
	compiledRecommendationsSchema = jsonschema.MustCompileString("recommendations.json", recommendationsSchema)
)

// Synthesizer phrases reports. A nil client is valid and always takes the
// fallback path, so the engine runs without credentials.
type Synthesizer struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
}

// New creates a Synthesizer.
func New(client anthropic.Client, cfg config.AnthropicConfig) *Synthesizer {
	return &Synthesizer{client: client, cfg: cfg}
}

// Summarize produces the executive summary. Collaborator failures are logged
// and answered with the deterministic fallback; the error is never surfaced.
func (s *Synthesizer) Summarize(ctx context.Context, in Input) model.Summary {
	raw, err := s.call(ctx, summarySystemPrompt, in, compiledSummarySchema, "narrative_summary")
	if err != nil {
		zap.L().Warn("narrative: summary fell back to rules", zap.Error(err))
		return FallbackSummary(in)
	}

	var sum model.Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		zap.L().Warn("narrative: summary decode failed", zap.Error(err))
		return FallbackSummary(in)
	}
	sum.Deltas = in.Deltas
	sum.Source = "ai"
	return sum
}

// Recommend produces the richer advisory narrative, same failure contract as
// Summarize.
func (s *Synthesizer) Recommend(ctx context.Context, in Input) model.Recommendations {
	raw, err := s.call(ctx, recommendationsSystemPrompt, in, compiledRecommendationsSchema, "narrative_recommendations")
	if err != nil {
		zap.L().Warn("narrative: recommendations fell back to rules", zap.Error(err))
		return FallbackRecommendations(in)
	}

	var rec model.Recommendations
	if err := json.Unmarshal(raw, &rec); err != nil {
		zap.L().Warn("narrative: recommendations decode failed", zap.Error(err))
		return FallbackRecommendations(in)
	}
	rec.Source = "ai"
	return rec
}

// call sends one payload to the collaborator and returns schema-validated
// JSON bytes. The response is untrusted; anything that fails fence-stripping
// or validation is an error, never a crash.
func (s *Synthesizer) call(ctx context.Context, system string, in Input, schema *jsonschema.Schema, phase string) ([]byte, error) {
	if s.client == nil {
		return nil, eris.New("narrative: no client configured")
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "narrative: marshal payload")
	}

	timeout := time.Duration(s.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.cfg.Model,
			MaxTokens: s.cfg.MaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(system),
			Messages: []anthropic.Message{
				{Role: "user", Content: string(payload)},
			},
		})
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(s.cfg.Model, phase)

	cleaned := cleanJSON(resp.Text())
	if cleaned == "" {
		return nil, eris.New("narrative: empty response")
	}

	var decoded any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, eris.Wrap(err, "narrative: response is not JSON")
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, eris.Wrap(err, "narrative: response failed schema")
	}
	return []byte(cleaned), nil
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
