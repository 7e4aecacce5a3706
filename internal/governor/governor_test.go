package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/detect"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// memChangeStore is an in-memory ChangeStore for governor tests.
type memChangeStore struct {
	entries map[string]model.ChangelogEntry
}

func newMemChangeStore() *memChangeStore {
	return &memChangeStore{entries: map[string]model.ChangelogEntry{}}
}

func (m *memChangeStore) CreateChangelogEntry(_ context.Context, e model.ChangelogEntry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *memChangeStore) GetChangelogEntry(_ context.Context, id string) (*model.ChangelogEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memChangeStore) UpdateChangelogStatus(_ context.Context, id string, status model.ChangeStatus, at time.Time) error {
	e := m.entries[id]
	e.Status = status
	switch status {
	case model.ChangeStatusApproved:
		e.ApprovedAt = &at
	case model.ChangeStatusRolledBack:
		e.RolledBackAt = &at
	}
	m.entries[id] = e
	return nil
}

func newTestGovernor() (*Governor, *memChangeStore) {
	st := newMemChangeStore()
	return New(st, config.DefaultPolicy()), st
}

func TestPropose_SafeChangeAppliedDirectly(t *testing.T) {
	g, _ := newTestGovernor()

	entry, err := g.Propose(context.Background(), Proposal{
		ChangeType: "question_reorder",
		Stage:      detect.StageDiscovery,
		Title:      "Move budget question earlier",
		Before:     map[string]int{"position": 5},
		After:      map[string]int{"position": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeCategorySafe, entry.Category)
	assert.Equal(t, model.ChangeStatusApplied, entry.Status)
}

func TestPropose_EarlyHangupBreachEscalates(t *testing.T) {
	g, _ := newTestGovernor()

	entry, err := g.Propose(context.Background(), Proposal{
		ChangeType: "script_patch",
		Stage:      detect.StageEarlyHangup,
		Title:      "Rewrite opening line",
		Metrics:    model.Scoreboard{EarlyHangupRate: 44.0},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeCategoryApproval, entry.Category)
	assert.Equal(t, model.ChangeStatusPending, entry.Status)
}

func TestPropose_EarlyHangupBelowBreachStillEscalates(t *testing.T) {
	g, _ := newTestGovernor()

	// Below the 40% breach the specific rule does not match, and the
	// fail-safe default routes to approval anyway.
	entry, err := g.Propose(context.Background(), Proposal{
		ChangeType: "script_patch",
		Stage:      detect.StageEarlyHangup,
		Metrics:    model.Scoreboard{EarlyHangupRate: 25.0},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeStatusPending, entry.Status)
}

func TestDefaultRules_EscalationThresholdFromPolicy(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.EarlyHangupEscalationPct = 55.0

	var rule *Rule
	for _, r := range DefaultRules(policy) {
		if r.Stage == detect.StageEarlyHangup {
			rule = &r
			break
		}
	}
	require.NotNil(t, rule)
	assert.Equal(t, 55.0, rule.MinSeverityPct)
}

func TestPropose_UnknownStageFailsSafe(t *testing.T) {
	g, _ := newTestGovernor()

	entry, err := g.Propose(context.Background(), Proposal{
		ChangeType: "mystery_knob",
		Stage:      "unheard_of_stage",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeCategoryApproval, entry.Category)
	assert.Equal(t, model.ChangeStatusPending, entry.Status)
	assert.NotEqual(t, model.ChangeStatusApplied, entry.Status)
}

func TestPropose_VariantWeightsAreSafe(t *testing.T) {
	g, _ := newTestGovernor()

	entry, err := g.Propose(context.Background(), Proposal{
		ChangeType: "weight_change",
		Stage:      StageVariantWeights,
		Before:     model.VariantSnapshot{Tag: "a", Weight: 20},
		After:      model.VariantSnapshot{Tag: "a", Weight: 40},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ChangeStatusApplied, entry.Status)
}

func TestLifecycle_ApproveApplyRollback(t *testing.T) {
	g, st := newTestGovernor()
	ctx := context.Background()

	entry, err := g.Propose(ctx, Proposal{ChangeType: "script_patch", Stage: "unknown"})
	require.NoError(t, err)

	require.NoError(t, g.Approve(ctx, entry.ID))
	got, _ := st.GetChangelogEntry(ctx, entry.ID)
	assert.Equal(t, model.ChangeStatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)

	require.NoError(t, g.Apply(ctx, entry.ID))
	require.NoError(t, g.Rollback(ctx, entry.ID))

	got, _ = st.GetChangelogEntry(ctx, entry.ID)
	assert.Equal(t, model.ChangeStatusRolledBack, got.Status)
	require.NotNil(t, got.RolledBackAt)
}

func TestLifecycle_IllegalTransitions(t *testing.T) {
	g, _ := newTestGovernor()
	ctx := context.Background()

	entry, err := g.Propose(ctx, Proposal{ChangeType: "script_patch", Stage: "unknown"})
	require.NoError(t, err)

	// pending cannot be rolled back or applied directly.
	require.Error(t, g.Rollback(ctx, entry.ID))
	require.Error(t, g.Apply(ctx, entry.ID))

	require.NoError(t, g.Reject(ctx, entry.ID))
	// rejected is terminal.
	require.Error(t, g.Approve(ctx, entry.ID))
}

func TestTransition_NotFound(t *testing.T) {
	g, _ := newTestGovernor()
	err := g.Approve(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
