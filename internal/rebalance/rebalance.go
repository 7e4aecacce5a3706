// Package rebalance rewrites the opener-variant traffic split from observed
// performance. Better-performing variants receive larger shares and the
// worst performers are paused, but only once enough answered calls have
// accumulated to make the ranking meaningful.
package rebalance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/governor"
	"github.com/sells-group/funnel-optimizer/internal/metrics"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// VariantStore is the slice of the persistence layer the rebalancer needs.
// store.Store satisfies it. UpsertOpenerVariant must be an atomic per-row
// write keyed by tag so overlapping runs degrade to last-writer-wins instead
// of corrupting rows.
type VariantStore interface {
	ListOpenerVariants(ctx context.Context) ([]model.OpenerVariant, error)
	UpsertOpenerVariant(ctx context.Context, v model.OpenerVariant) error
}

// Rebalancer accumulates each pass's call records into the variants' rolling
// counters and, above the answered-call floor, reassigns weights by rank.
type Rebalancer struct {
	st     VariantStore
	gov    *governor.Governor
	policy config.PolicyConfig
	now    func() time.Time
}

// New creates a Rebalancer.
func New(st VariantStore, gov *governor.Governor, policy config.PolicyConfig) *Rebalancer {
	return &Rebalancer{st: st, gov: gov, policy: policy, now: time.Now}
}

// Result summarizes one rebalancing pass.
type Result struct {
	TotalAnswered int                   `json:"total_answered"`
	Rebalanced    bool                  `json:"rebalanced"`
	Variants      []model.OpenerVariant `json:"variants"`
	Changes       []model.ChangelogRef  `json:"changes,omitempty"`
}

// dayStats are the per-variant tallies extracted from one pass's records.
type dayStats struct {
	calls     int
	answered  int
	engaged   int
	discovery int
	closed    int
}

// Rebalance folds the pass's attempts into each variant's cumulative
// counters, then reassigns weights when the combined answered-call total
// meets the floor. Below the floor the counters are still persisted but
// weights and paused flags are left untouched and no changelog entries are
// written.
func (r *Rebalancer) Rebalance(ctx context.Context, attempts []model.CallAttempt, sb model.Scoreboard) (*Result, error) {
	variants, err := r.st.ListOpenerVariants(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "rebalance: list opener variants")
	}

	byTag := make(map[string]int, len(variants))
	for i, v := range variants {
		byTag[v.Tag] = i
	}

	stats := map[string]*dayStats{}
	for _, a := range attempts {
		tag := a.OpenerVariant
		if tag == "" {
			continue
		}
		if _, ok := byTag[tag]; !ok {
			byTag[tag] = len(variants)
			variants = append(variants, model.OpenerVariant{Tag: tag})
		}
		s := stats[tag]
		if s == nil {
			s = &dayStats{}
			stats[tag] = s
		}
		s.calls++
		if a.Answered() {
			s.answered++
		}
		if a.Engaged() {
			s.engaged++
		}
		if a.DiscoveryComplete() {
			s.discovery++
		}
		if a.Outcome == model.OutcomeOrderClosed {
			s.closed++
		}
	}

	now := r.now().UTC()
	totalAnswered := 0
	for i := range variants {
		v := &variants[i]
		if s := stats[v.Tag]; s != nil {
			accumulate(v, s)
			v.UpdatedAt = now
		}
		totalAnswered += v.Answered
	}

	res := &Result{TotalAnswered: totalAnswered, Variants: variants}

	if totalAnswered < r.policy.AnsweredFloor {
		zap.L().Info("rebalance: below answered floor, weights untouched",
			zap.Int("total_answered", totalAnswered),
			zap.Int("floor", r.policy.AnsweredFloor),
		)
		for _, v := range variants {
			if stats[v.Tag] == nil {
				continue
			}
			if err := r.st.UpsertOpenerVariant(ctx, v); err != nil {
				return nil, eris.Wrapf(err, "rebalance: upsert variant %s", v.Tag)
			}
		}
		return res, nil
	}

	// Rank by engagement rate, ties kept in stored order.
	ranked := make([]int, len(variants))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return variants[ranked[a]].EngagementRate > variants[ranked[b]].EngagementRate
	})

	bands := r.policy.WeightBands
	for rank, idx := range ranked {
		v := &variants[idx]
		before := v.Snapshot()

		weight := 0
		paused := true
		if rank < len(bands) {
			weight = bands[rank]
			paused = false
		}

		if v.Weight == weight && v.Paused == paused {
			if stats[v.Tag] != nil {
				if err := r.st.UpsertOpenerVariant(ctx, *v); err != nil {
					return nil, eris.Wrapf(err, "rebalance: upsert variant %s", v.Tag)
				}
			}
			continue
		}

		v.Weight = weight
		v.Paused = paused
		v.UpdatedAt = now

		entry, err := r.gov.Propose(ctx, governor.Proposal{
			ChangeType: "weight_change",
			Stage:      governor.StageVariantWeights,
			Title:      fmt.Sprintf("Set opener %q weight to %d%%", v.Tag, weight),
			Rationale:  fmt.Sprintf("ranked #%d by engagement rate %.1f%%", rank+1, v.EngagementRate),
			Before:     before,
			After:      v.Snapshot(),
			Metrics:    sb,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "rebalance: propose weight change for %s", v.Tag)
		}
		res.Changes = append(res.Changes, entry.Ref())

		if err := r.st.UpsertOpenerVariant(ctx, *v); err != nil {
			return nil, eris.Wrapf(err, "rebalance: upsert variant %s", v.Tag)
		}
	}

	res.Rebalanced = true
	zap.L().Info("rebalance: weights reassigned",
		zap.Int("total_answered", totalAnswered),
		zap.Int("variants", len(variants)),
		zap.Int("changes", len(res.Changes)),
	)
	return res, nil
}

// accumulate folds one pass's tallies into a variant's cumulative counters.
// Stored rates are converted back to counts against the previous answered
// total before re-deriving, so repeated passes extend history rather than
// overwrite it.
func accumulate(v *model.OpenerVariant, s *dayStats) {
	engaged := countFromRate(v.EngagementRate, v.Answered) + s.engaged
	discovery := countFromRate(v.DiscoveryRate, v.Answered) + s.discovery
	closed := countFromRate(v.CloseRate, v.Answered) + s.closed

	v.Calls += s.calls
	v.Answered += s.answered
	v.EngagementRate = metrics.Rate(engaged, v.Answered)
	v.DiscoveryRate = metrics.Rate(discovery, v.Answered)
	v.CloseRate = metrics.Rate(closed, v.Answered)
}

func countFromRate(rate float64, answered int) int {
	return int(math.Round(rate / 100 * float64(answered)))
}
