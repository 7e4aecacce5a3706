package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

func TestRate(t *testing.T) {
	tests := []struct {
		name string
		n, d int
		want float64
	}{
		{"zero denominator", 5, 0, 0},
		{"zero numerator", 0, 100, 0},
		{"whole", 40, 100, 40.0},
		{"one decimal", 1, 3, 33.3},
		{"rounds half up", 1, 8, 12.5},
		{"full", 7, 7, 100.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rate(tt.n, tt.d))
		})
	}
}

func TestCompute_Empty(t *testing.T) {
	sb := Compute(nil)
	assert.Equal(t, model.Scoreboard{}, sb)
}

func TestCompute_RatesBounded(t *testing.T) {
	attempts := []model.CallAttempt{
		{Outcome: model.OutcomeEngaged, DurationSecs: 120},
		{Outcome: model.OutcomeVoicemail},
		{},
	}
	sb := Compute(attempts)
	for name, rate := range map[string]float64{
		"answered":  sb.AnsweredRate,
		"engaged":   sb.EngagementRate,
		"hangup":    sb.EarlyHangupRate,
		"gatekeeper": sb.GatekeeperPassRate,
		"discovery": sb.DiscoveryCompletionRate,
		"close":     sb.CloseRate,
	} {
		assert.GreaterOrEqual(t, rate, 0.0, name)
		assert.LessOrEqual(t, rate, 100.0, name)
	}
}

// Mirrors the canonical 100-call funnel: 40 answered, 10 engaged, 5 with
// complete discovery, 2 comparisons sent, 1 closed.
func TestCompute_FunnelScenario(t *testing.T) {
	now := time.Now()
	var attempts []model.CallAttempt

	answers := func(n int) map[string]string {
		m := make(map[string]string, n)
		for i := 0; i < n; i++ {
			m[fmt.Sprintf("q%d", i)] = "yes"
		}
		return m
	}

	// 60 never answered.
	for i := 0; i < 60; i++ {
		attempts = append(attempts, model.CallAttempt{LastAttemptAt: now, Outcome: model.OutcomeVoicemail})
	}
	// 30 answered, short calls, no discovery.
	for i := 0; i < 30; i++ {
		attempts = append(attempts, model.CallAttempt{LastAttemptAt: now, Outcome: model.OutcomeOther, DurationSecs: 30})
	}
	// 7 engaged with full discovery minus two, comparison/close outcomes below.
	for i := 0; i < 7; i++ {
		a := model.CallAttempt{LastAttemptAt: now, Outcome: model.OutcomeEngaged, DurationSecs: 90}
		if i < 2 {
			a.QualifyingAnswers = answers(5)
		}
		attempts = append(attempts, a)
	}
	// 2 comparisons sent (engaged duration, full discovery).
	for i := 0; i < 2; i++ {
		attempts = append(attempts, model.CallAttempt{
			LastAttemptAt: now, Outcome: model.OutcomeComparisonSent,
			DurationSecs: 200, QualifyingAnswers: answers(6),
		})
	}
	// 1 closed order.
	attempts = append(attempts, model.CallAttempt{
		LastAttemptAt: now, Outcome: model.OutcomeOrderClosed,
		DurationSecs: 300, QualifyingAnswers: answers(8),
	})

	sb := Compute(attempts)

	assert.Equal(t, 100, sb.Dialed)
	assert.Equal(t, 40, sb.Answered)
	assert.Equal(t, 40.0, sb.AnsweredRate)
	assert.Equal(t, 10, sb.Engaged)
	assert.Equal(t, 25.0, sb.EngagementRate)
	assert.Equal(t, 5, sb.DiscoveryComplete)
	assert.Equal(t, 12.5, sb.DiscoveryCompletionRate)
	assert.Equal(t, 2, sb.ComparisonsSent)
	assert.Equal(t, 5.0, sb.ComparisonSentRate)
	assert.Equal(t, 1, sb.OrdersClosed)
	assert.Equal(t, 2.5, sb.CloseRate)
}

func TestCompute_EarlyHangup(t *testing.T) {
	attempts := []model.CallAttempt{
		{Outcome: model.OutcomeHangupEarly, DurationSecs: 4},
		{Outcome: model.OutcomeHangupEarly, DurationSecs: 9},
		// 10s is not "under 10s".
		{Outcome: model.OutcomeHangupEarly, DurationSecs: 10},
		{Outcome: model.OutcomeOther, DurationSecs: 5},
	}
	sb := Compute(attempts)
	assert.Equal(t, 2, sb.FirstContactRejections)
	assert.Equal(t, 50.0, sb.EarlyHangupRate)
}

func TestCompute_GatekeeperPass(t *testing.T) {
	attempts := []model.CallAttempt{
		{Outcome: model.OutcomeEngaged, DurationSecs: 60, GatekeeperEncountered: true, DecisionMakerReached: true},
		{Outcome: model.OutcomeOther, DurationSecs: 20, GatekeeperEncountered: true},
		// Decision maker reached without a gatekeeper is not a pass-through.
		{Outcome: model.OutcomeEngaged, DurationSecs: 60, DecisionMakerReached: true},
	}
	sb := Compute(attempts)
	assert.Equal(t, 2, sb.GatekeeperEncounters)
	assert.Equal(t, 1, sb.GatekeeperPasses)
	assert.Equal(t, 50.0, sb.GatekeeperPassRate)
}
