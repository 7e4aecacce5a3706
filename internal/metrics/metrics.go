// Package metrics turns raw call-attempt records into the fixed-shape funnel
// Scoreboard. Everything here is a pure function over its inputs.
package metrics

import (
	"math"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

// Rate returns n/d as a percentage rounded to one decimal. A zero denominator
// yields 0, never NaN.
func Rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*1000) / 10
}

// Compute aggregates one window of call attempts into a Scoreboard. An empty
// input yields an all-zero Scoreboard.
func Compute(attempts []model.CallAttempt) model.Scoreboard {
	var sb model.Scoreboard
	sb.Dialed = len(attempts)

	for _, a := range attempts {
		if a.Answered() {
			sb.Answered++
		}
		if a.Engaged() {
			sb.Engaged++
		}
		if a.FirstContactRejection() {
			sb.FirstContactRejections++
		}
		if a.GatekeeperEncountered {
			sb.GatekeeperEncounters++
		}
		if a.GatekeeperPassed() {
			sb.GatekeeperPasses++
		}
		if a.DiscoveryComplete() {
			sb.DiscoveryComplete++
		}
		if a.Outcome == model.OutcomeComparisonSent {
			sb.ComparisonsSent++
		}
		if a.FollowUpSet() {
			sb.FollowUpsSet++
		}
		if a.Outcome == model.OutcomeOrderClosed {
			sb.OrdersClosed++
		}
	}

	sb.AnsweredRate = Rate(sb.Answered, sb.Dialed)
	sb.EngagementRate = Rate(sb.Engaged, sb.Answered)
	sb.EarlyHangupRate = Rate(sb.FirstContactRejections, sb.Answered)
	sb.GatekeeperPassRate = Rate(sb.GatekeeperPasses, sb.GatekeeperEncounters)
	sb.DiscoveryCompletionRate = Rate(sb.DiscoveryComplete, sb.Answered)
	sb.ComparisonSentRate = Rate(sb.ComparisonsSent, sb.Answered)
	sb.FollowUpSetRate = Rate(sb.FollowUpsSet, sb.Answered)
	sb.CloseRate = Rate(sb.OrdersClosed, sb.Answered)

	return sb
}
