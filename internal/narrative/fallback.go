package narrative

import (
	"fmt"
	"math"

	"github.com/sells-group/funnel-optimizer/internal/detect"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// FallbackSummary derives an executive summary from the numbers alone. It is
// pure, so identical inputs always phrase identically.
func FallbackSummary(in Input) model.Summary {
	sb := in.Scoreboard

	bullets := []string{
		fmt.Sprintf("%d calls dialed, %d answered (%.1f%%).", sb.Dialed, sb.Answered, sb.AnsweredRate),
		fmt.Sprintf("%d conversations engaged past the opener (%.1f%% of answered).", sb.Engaged, sb.EngagementRate),
		fmt.Sprintf("%d discovery calls completed (%.1f%%), %d comparisons sent.", sb.DiscoveryComplete, sb.DiscoveryCompletionRate, sb.ComparisonsSent),
		fmt.Sprintf("%d orders closed (%.1f%% of answered).", sb.OrdersClosed, sb.CloseRate),
	}
	if in.Gatekeeper.Encounters > 0 {
		bullets = append(bullets, fmt.Sprintf("Gatekeepers on %d calls, %.1f%% passed through.", in.Gatekeeper.Encounters, in.Gatekeeper.PassRate))
	}
	for _, flag := range in.ComplianceFlags {
		bullets = append(bullets, "Compliance: "+flag)
	}

	bottleneck := "none"
	focus := "Hold course; no stage moved significantly against the trailing window."
	switch {
	case in.Bottleneck.InsufficientData:
		bottleneck = "insufficient data"
		focus = "No calls in this window; verify dialing activity before reading trends."
	case in.Bottleneck.Significant:
		bottleneck = stageLabel(in.Bottleneck.Stage)
		focus = fmt.Sprintf("Address %s, down %.1f points against the trailing window.", stageLabel(in.Bottleneck.Stage), in.Bottleneck.DeltaPct)
	}

	return model.Summary{
		Bullets:           bullets,
		BiggestBottleneck: bottleneck,
		BiggestWin:        biggestWin(in.Deltas),
		RecommendedFocus:  focus,
		Deltas:            in.Deltas,
		Source:            "fallback",
	}
}

// FallbackRecommendations derives the advisory shape rule-by-rule from the
// same deltas the detector saw.
func FallbackRecommendations(in Input) model.Recommendations {
	rec := model.Recommendations{
		Hypotheses:  []string{},
		Experiments: []string{},
		Changes:     []model.RecommendedChange{},
		Source:      "fallback",
	}

	if in.Bottleneck.InsufficientData {
		rec.Hypotheses = append(rec.Hypotheses, "No dialed calls in the window; the funnel cannot be read.")
		rec.Experiments = append(rec.Experiments, "Confirm the dialer ran and call records landed for this window.")
		return rec
	}

	switch in.Bottleneck.Stage {
	case detect.StageEarlyHangup:
		rec.Hypotheses = append(rec.Hypotheses, "The opening line is losing prospects in the first seconds.")
		rec.Experiments = append(rec.Experiments, "Trial a reworked first sentence on the lowest-weight opener variant.")
		rec.Changes = append(rec.Changes, model.RecommendedChange{
			ChangeType: "script_patch", Detail: "Rewrite the opening line", Category: "approval",
		})
	case detect.StageDiscovery:
		rec.Hypotheses = append(rec.Hypotheses, "Qualifying questions may be ordered poorly or asked too late.")
		rec.Experiments = append(rec.Experiments, "Move the two highest-signal questions earlier in the call flow.")
		rec.Changes = append(rec.Changes, model.RecommendedChange{
			ChangeType: "question_reorder", Detail: "Promote high-signal qualifying questions", Category: "safe",
		})
	case detect.StageGatekeeper:
		rec.Hypotheses = append(rec.Hypotheses, "Gatekeeper handling is screening out more calls than usual.")
		rec.Experiments = append(rec.Experiments, "Test a referral-based gatekeeper script on a sample of calls.")
		rec.Changes = append(rec.Changes, model.RecommendedChange{
			ChangeType: "script_patch", Detail: "Revise gatekeeper handling language", Category: "approval",
		})
	case detect.StageFollowUp:
		rec.Hypotheses = append(rec.Hypotheses, "Reps are ending engaged calls without booking the next touch.")
		rec.Experiments = append(rec.Experiments, "Require a proposed follow-up slot before any engaged call closes.")
		rec.Changes = append(rec.Changes, model.RecommendedChange{
			ChangeType: "followup_prompt", Detail: "Add a follow-up booking prompt to the close", Category: "safe",
		})
	case detect.StageClose, detect.StageComparison:
		rec.Hypotheses = append(rec.Hypotheses, "Prospects stall between the comparison and the order.")
		rec.Experiments = append(rec.Experiments, "Shorten the window between comparison delivery and the closing call.")
	case detect.StageAnswered:
		rec.Hypotheses = append(rec.Hypotheses, "Pickup rate dropped; call timing or caller ID reputation may have shifted.")
		rec.Experiments = append(rec.Experiments, "Shift a block of dials to the historical best-answer hours.")
	case detect.StageEngagement:
		rec.Hypotheses = append(rec.Hypotheses, "Prospects answer but disengage before the pitch lands.")
		rec.Experiments = append(rec.Experiments, "A/B the two strongest opener variants head-to-head at equal weight.")
	}

	if len(rec.Hypotheses) == 0 {
		rec.Hypotheses = append(rec.Hypotheses, "No stage moved significantly; current performance is steady.")
		rec.Experiments = append(rec.Experiments, "Keep the current split and revisit after more volume accrues.")
	}
	return rec
}

// biggestWin names the stage that improved the most. Early-hangup rate falls
// when things improve, so its delta is read inverted.
func biggestWin(deltas []model.StageDelta) string {
	best := ""
	bestGain := 0.0
	for _, d := range deltas {
		gain := d.DeltaPct
		if d.Stage == detect.StageEarlyHangup {
			gain = -gain
		}
		if gain > bestGain {
			bestGain = gain
			best = d.Stage
		}
	}
	if best == "" || math.Abs(bestGain) < 0.05 {
		return "none"
	}
	return stageLabel(best)
}

// stageLabel renders a stage key as plain words.
func stageLabel(stage string) string {
	switch stage {
	case detect.StageAnswered:
		return "answer rate"
	case detect.StageEarlyHangup:
		return "early hangups"
	case detect.StageEngagement:
		return "engagement"
	case detect.StageGatekeeper:
		return "gatekeeper pass-through"
	case detect.StageDiscovery:
		return "discovery completion"
	case detect.StageComparison:
		return "comparison delivery"
	case detect.StageFollowUp:
		return "follow-up booking"
	case detect.StageClose:
		return "close rate"
	}
	return stage
}
