package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

func engagedCall(variant string) model.CallAttempt {
	return model.CallAttempt{OpenerVariant: variant, Outcome: model.OutcomeEngaged, DurationSecs: 90}
}

func shortCall(variant string) model.CallAttempt {
	return model.CallAttempt{OpenerVariant: variant, Outcome: model.OutcomeOther, DurationSecs: 20}
}

func TestOpenerLeaderboard_SortsByEngagement(t *testing.T) {
	attempts := []model.CallAttempt{
		// variant a: 1/2 engaged.
		engagedCall("a"), shortCall("a"),
		// variant b: 2/2 engaged.
		engagedCall("b"), engagedCall("b"),
		// variant c: 0/1.
		shortCall("c"),
	}
	standings := OpenerLeaderboard(attempts, config.DefaultPolicy())
	require.Len(t, standings, 3)
	assert.Equal(t, "b", standings[0].Tag)
	assert.Equal(t, "a", standings[1].Tag)
	assert.Equal(t, "c", standings[2].Tag)
	assert.Equal(t, 100.0, standings[0].EngagementRate)
	assert.Equal(t, 50.0, standings[1].EngagementRate)
}

func TestOpenerLeaderboard_TiesKeepInsertionOrder(t *testing.T) {
	attempts := []model.CallAttempt{
		engagedCall("first"), engagedCall("second"),
	}
	standings := OpenerLeaderboard(attempts, config.DefaultPolicy())
	require.Len(t, standings, 2)
	assert.Equal(t, "first", standings[0].Tag)
	assert.Equal(t, "second", standings[1].Tag)
}

func TestOpenerLeaderboard_LowSampleFlag(t *testing.T) {
	var attempts []model.CallAttempt
	for i := 0; i < 50; i++ {
		attempts = append(attempts, engagedCall("big"))
	}
	attempts = append(attempts, engagedCall("small"))

	standings := OpenerLeaderboard(attempts, config.DefaultPolicy())
	byTag := map[string]model.OpenerStanding{}
	for _, s := range standings {
		byTag[s.Tag] = s
	}
	assert.False(t, byTag["big"].LowSample)
	assert.True(t, byTag["small"].LowSample)
	// Numbers still computed for the flagged group.
	assert.Equal(t, 100.0, byTag["small"].EngagementRate)
}

func TestObjectionLeaderboard(t *testing.T) {
	attempts := []model.CallAttempt{
		{Outcome: model.OutcomeOther, DurationSecs: 30, Objections: []string{"price", "contract"}},
		{Outcome: model.OutcomeOther, DurationSecs: 30, Objections: []string{"price"}},
		{Outcome: model.OutcomeEngaged, DurationSecs: 90, Objections: []string{"price"}},
		{Outcome: model.OutcomeVoicemail},
	}
	out := ObjectionLeaderboard(attempts)
	require.Len(t, out, 2)
	assert.Equal(t, "price", out[0].Objection)
	assert.Equal(t, 3, out[0].Count)
	assert.Equal(t, 100.0, out[0].Share) // 3 of 3 answered
	assert.Equal(t, "contract", out[1].Objection)
}

func TestGatekeeperAnalysis(t *testing.T) {
	attempts := []model.CallAttempt{
		{GatekeeperEncountered: true, DecisionMakerReached: true, Outcome: model.OutcomeOrderClosed, DurationSecs: 300},
		{GatekeeperEncountered: true, DecisionMakerReached: true, Outcome: model.OutcomeEngaged, DurationSecs: 120},
		{GatekeeperEncountered: true, Outcome: model.OutcomeOther, DurationSecs: 15},
		{GatekeeperEncountered: false, Outcome: model.OutcomeOrderClosed, DurationSecs: 200},
	}
	stats := GatekeeperAnalysis(attempts)
	assert.Equal(t, 3, stats.Encounters)
	assert.Equal(t, 2, stats.Passes)
	assert.Equal(t, 66.7, stats.PassRate)
	assert.Equal(t, 1, stats.DecisionMakerCloses)
	assert.Equal(t, 50.0, stats.DecisionMakerCloseRate)
}

func TestLeadSourceBreakdown_SortsByCloseRate(t *testing.T) {
	attempts := []model.CallAttempt{
		{LeadSource: "organic", Outcome: model.OutcomeOther, DurationSecs: 30},
		{LeadSource: "organic", Outcome: model.OutcomeOrderClosed, DurationSecs: 200},
		{LeadSource: "paid", Outcome: model.OutcomeOther, DurationSecs: 30},
		{LeadSource: "paid", Outcome: model.OutcomeOther, DurationSecs: 30},
	}
	out := LeadSourceBreakdown(attempts, config.DefaultPolicy())
	require.Len(t, out, 2)
	assert.Equal(t, "organic", out[0].Source)
	assert.Equal(t, 50.0, out[0].CloseRate)
	assert.True(t, out[0].LowSample)
}

func TestSegmentBreakdown(t *testing.T) {
	policy := config.DefaultPolicy()
	var attempts []model.CallAttempt
	for i := 0; i < 10; i++ {
		a := model.CallAttempt{Industry: "hvac", Region: "tx", Outcome: model.OutcomeOther, DurationSecs: 30}
		if i == 0 {
			a.Outcome = model.OutcomeOrderClosed
		}
		attempts = append(attempts, a)
	}
	attempts = append(attempts, model.CallAttempt{Industry: "legal", Region: "fl", Outcome: model.OutcomeOrderClosed, DurationSecs: 300})
	// Region-only calls use the tighter geographic floor.
	for i := 0; i < 5; i++ {
		attempts = append(attempts, model.CallAttempt{Region: "ok", Outcome: model.OutcomeOther, DurationSecs: 20})
	}

	out := SegmentBreakdown(attempts, policy)
	require.Len(t, out, 3)

	byKey := map[string]model.SegmentPerformance{}
	for _, s := range out {
		byKey[s.Industry+"/"+s.Region] = s
	}
	assert.False(t, byKey["hvac/tx"].LowSample)
	assert.True(t, byKey["legal/fl"].LowSample)
	assert.False(t, byKey["/ok"].LowSample) // 5 calls meets the geo floor
	assert.Equal(t, 100.0, byKey["legal/fl"].CloseRate)
}
