package rebalance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/governor"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

type memVariantStore struct {
	variants map[string]model.OpenerVariant
	order    []string
}

func newMemVariantStore(vs ...model.OpenerVariant) *memVariantStore {
	st := &memVariantStore{variants: map[string]model.OpenerVariant{}}
	for _, v := range vs {
		st.variants[v.Tag] = v
		st.order = append(st.order, v.Tag)
	}
	return st
}

func (m *memVariantStore) ListOpenerVariants(context.Context) ([]model.OpenerVariant, error) {
	out := make([]model.OpenerVariant, 0, len(m.order))
	for _, tag := range m.order {
		out = append(out, m.variants[tag])
	}
	return out, nil
}

func (m *memVariantStore) UpsertOpenerVariant(_ context.Context, v model.OpenerVariant) error {
	if _, ok := m.variants[v.Tag]; !ok {
		m.order = append(m.order, v.Tag)
	}
	m.variants[v.Tag] = v
	return nil
}

type memChangelog struct {
	entries map[string]model.ChangelogEntry
}

func (m *memChangelog) CreateChangelogEntry(_ context.Context, e model.ChangelogEntry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *memChangelog) GetChangelogEntry(_ context.Context, id string) (*model.ChangelogEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memChangelog) UpdateChangelogStatus(_ context.Context, id string, status model.ChangeStatus, _ time.Time) error {
	e := m.entries[id]
	e.Status = status
	m.entries[id] = e
	return nil
}

func newTestRebalancer(st *memVariantStore) (*Rebalancer, *memChangelog) {
	cl := &memChangelog{entries: map[string]model.ChangelogEntry{}}
	policy := config.DefaultPolicy()
	return New(st, governor.New(cl, policy), policy), cl
}

// answeredCall builds an answered attempt for a variant; engaged controls
// whether the call clears the engagement duration bar.
func answeredCall(tag string, engaged bool) model.CallAttempt {
	dur := 20
	if engaged {
		dur = 90
	}
	return model.CallAttempt{Outcome: model.OutcomeEngaged, DurationSecs: dur, OpenerVariant: tag}
}

func repeatCalls(tag string, n int, engaged bool) []model.CallAttempt {
	out := make([]model.CallAttempt, n)
	for i := range out {
		out[i] = answeredCall(tag, engaged)
	}
	return out
}

func TestRebalance_BelowFloorLeavesWeightsAlone(t *testing.T) {
	st := newMemVariantStore(
		model.OpenerVariant{Tag: "direct", Weight: 60},
		model.OpenerVariant{Tag: "curious", Weight: 40},
	)
	r, cl := newTestRebalancer(st)

	// 49 answered calls in total, one short of the floor.
	attempts := append(repeatCalls("direct", 30, true), repeatCalls("curious", 19, false)...)

	res, err := r.Rebalance(context.Background(), attempts, model.Scoreboard{})
	require.NoError(t, err)

	assert.Equal(t, 49, res.TotalAnswered)
	assert.False(t, res.Rebalanced)
	assert.Empty(t, res.Changes)
	assert.Empty(t, cl.entries)

	// Counters advanced, weights did not.
	assert.Equal(t, 60, st.variants["direct"].Weight)
	assert.Equal(t, 40, st.variants["curious"].Weight)
	assert.Equal(t, 30, st.variants["direct"].Answered)
	assert.InDelta(t, 100.0, st.variants["direct"].EngagementRate, 0.01)
}

func TestRebalance_AtFloorReassignsByRank(t *testing.T) {
	st := newMemVariantStore(
		model.OpenerVariant{Tag: "a", Weight: 25},
		model.OpenerVariant{Tag: "b", Weight: 25},
		model.OpenerVariant{Tag: "c", Weight: 25},
		model.OpenerVariant{Tag: "d", Weight: 25},
	)
	r, cl := newTestRebalancer(st)

	// 50 answered exactly; engagement ranks d > a > c > b.
	var attempts []model.CallAttempt
	attempts = append(attempts, repeatCalls("d", 15, true)...)
	attempts = append(attempts, repeatCalls("a", 15, true)...)
	attempts = append(attempts, repeatCalls("a", 2, false)...)
	attempts = append(attempts, repeatCalls("c", 10, true)...)
	attempts = append(attempts, repeatCalls("c", 3, false)...)
	attempts = append(attempts, repeatCalls("b", 5, false)...)

	res, err := r.Rebalance(context.Background(), attempts, model.Scoreboard{})
	require.NoError(t, err)

	assert.Equal(t, 50, res.TotalAnswered)
	assert.True(t, res.Rebalanced)

	assert.Equal(t, 40, st.variants["d"].Weight)
	assert.Equal(t, 40, st.variants["a"].Weight)
	assert.Equal(t, 20, st.variants["c"].Weight)
	assert.Equal(t, 0, st.variants["b"].Weight)
	assert.True(t, st.variants["b"].Paused)
	assert.False(t, st.variants["d"].Paused)

	// Unpaused weights account for the full traffic share.
	sum := 0
	for _, v := range st.variants {
		if !v.Paused {
			sum += v.Weight
		}
	}
	assert.Equal(t, 100, sum)

	// One safe, applied entry per changed variant.
	assert.Len(t, res.Changes, 4)
	for _, e := range cl.entries {
		assert.Equal(t, model.ChangeCategorySafe, e.Category)
		assert.Equal(t, model.ChangeStatusApplied, e.Status)
		assert.Contains(t, e.Rationale, "ranked #")
	}
}

func TestRebalance_UnchangedVariantProducesNoEntry(t *testing.T) {
	st := newMemVariantStore(
		model.OpenerVariant{Tag: "a", Weight: 40, Answered: 40, EngagementRate: 80.0},
		model.OpenerVariant{Tag: "b", Weight: 40, Answered: 30, EngagementRate: 50.0},
		model.OpenerVariant{Tag: "c", Weight: 20, Answered: 20, EngagementRate: 10.0},
	)
	r, cl := newTestRebalancer(st)

	// No new calls; cumulative answered is already over the floor and the
	// existing ranking matches the band assignment.
	res, err := r.Rebalance(context.Background(), nil, model.Scoreboard{})
	require.NoError(t, err)

	assert.True(t, res.Rebalanced)
	assert.Empty(t, res.Changes)
	assert.Empty(t, cl.entries)
}

func TestRebalance_AccumulatesOntoExistingCounters(t *testing.T) {
	st := newMemVariantStore(
		// 50 answered with 25 engaged already on the books.
		model.OpenerVariant{Tag: "a", Weight: 40, Calls: 80, Answered: 50, EngagementRate: 50.0},
	)
	r, _ := newTestRebalancer(st)

	// 10 more answered, all engaged: 35 of 60.
	_, err := r.Rebalance(context.Background(), repeatCalls("a", 10, true), model.Scoreboard{})
	require.NoError(t, err)

	v := st.variants["a"]
	assert.Equal(t, 90, v.Calls)
	assert.Equal(t, 60, v.Answered)
	assert.InDelta(t, 58.3, v.EngagementRate, 0.01)
}

func TestRebalance_NewTagCreatesVariant(t *testing.T) {
	st := newMemVariantStore()
	r, _ := newTestRebalancer(st)

	res, err := r.Rebalance(context.Background(), repeatCalls("fresh", 10, true), model.Scoreboard{})
	require.NoError(t, err)

	assert.False(t, res.Rebalanced)
	v, ok := st.variants["fresh"]
	require.True(t, ok)
	assert.Equal(t, 10, v.Answered)
}
