// Package detect names the funnel stage most responsible for today's
// underperformance relative to a trailing baseline.
package detect

import (
	"math"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// Stage names used in bottleneck results and the governor policy table.
const (
	StageAnswered    = "answered_rate"
	StageEarlyHangup = "early_hangup_rate"
	StageEngagement  = "engagement_rate"
	StageGatekeeper  = "gatekeeper_pass_rate"
	StageDiscovery   = "discovery_completion_rate"
	StageComparison  = "comparison_sent_rate"
	StageFollowUp    = "follow_up_set_rate"
	StageClose       = "close_rate"
)

// stageDelta extracts one stage's signed badness delta: the sign is chosen so
// that larger is worse. A rise in early-hangup rate is bad; a fall in every
// other stage rate is bad.
type stageDelta struct {
	name  string
	delta func(today, trailing model.Scoreboard) float64
}

// stages is the fixed ordered list compared on every run. Order breaks ties:
// earlier funnel stages win when deltas are equal.
var stages = []stageDelta{
	{StageAnswered, func(t, b model.Scoreboard) float64 { return b.AnsweredRate - t.AnsweredRate }},
	{StageEarlyHangup, func(t, b model.Scoreboard) float64 { return t.EarlyHangupRate - b.EarlyHangupRate }},
	{StageEngagement, func(t, b model.Scoreboard) float64 { return b.EngagementRate - t.EngagementRate }},
	{StageGatekeeper, func(t, b model.Scoreboard) float64 { return b.GatekeeperPassRate - t.GatekeeperPassRate }},
	{StageDiscovery, func(t, b model.Scoreboard) float64 { return b.DiscoveryCompletionRate - t.DiscoveryCompletionRate }},
	{StageComparison, func(t, b model.Scoreboard) float64 { return b.ComparisonSentRate - t.ComparisonSentRate }},
	{StageFollowUp, func(t, b model.Scoreboard) float64 { return b.FollowUpSetRate - t.FollowUpSetRate }},
	{StageClose, func(t, b model.Scoreboard) float64 { return b.CloseRate - t.CloseRate }},
}

// Detect compares today's scoreboard against the trailing baseline and names
// the single worst-degrading stage. A window with zero dialed calls reports
// insufficient data before any delta comparison to avoid spurious signals.
func Detect(today, trailing model.Scoreboard, policy config.PolicyConfig) model.BottleneckResult {
	if today.Dialed == 0 {
		return model.BottleneckResult{InsufficientData: true}
	}

	var worst string
	worstDelta := math.Inf(-1)
	for _, s := range stages {
		d := s.delta(today, trailing)
		if d > worstDelta {
			worst = s.name
			worstDelta = d
		}
	}

	if worstDelta <= policy.SignificancePct {
		return model.BottleneckResult{DeltaPct: worstDelta}
	}
	return model.BottleneckResult{
		Stage:       worst,
		DeltaPct:    worstDelta,
		Significant: true,
	}
}

// Deltas returns every stage's today/trailing pair with the raw (unsigned-
// for-badness) movement, for narrative rendering.
func Deltas(today, trailing model.Scoreboard) []model.StageDelta {
	type pair struct {
		name            string
		today, trailing float64
	}
	pairs := []pair{
		{StageAnswered, today.AnsweredRate, trailing.AnsweredRate},
		{StageEarlyHangup, today.EarlyHangupRate, trailing.EarlyHangupRate},
		{StageEngagement, today.EngagementRate, trailing.EngagementRate},
		{StageGatekeeper, today.GatekeeperPassRate, trailing.GatekeeperPassRate},
		{StageDiscovery, today.DiscoveryCompletionRate, trailing.DiscoveryCompletionRate},
		{StageComparison, today.ComparisonSentRate, trailing.ComparisonSentRate},
		{StageFollowUp, today.FollowUpSetRate, trailing.FollowUpSetRate},
		{StageClose, today.CloseRate, trailing.CloseRate},
	}

	out := make([]model.StageDelta, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, model.StageDelta{
			Stage:    p.name,
			Today:    p.today,
			Trailing: p.trailing,
			DeltaPct: math.Round((p.today-p.trailing)*10) / 10,
		})
	}
	return out
}
