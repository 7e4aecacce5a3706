// Package orchestrator drives one engine run end to end: resolve the window,
// fetch the record set, compute metrics and insights, rebalance, govern,
// narrate, and persist the report.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/detect"
	"github.com/sells-group/funnel-optimizer/internal/governor"
	"github.com/sells-group/funnel-optimizer/internal/insights"
	"github.com/sells-group/funnel-optimizer/internal/metrics"
	"github.com/sells-group/funnel-optimizer/internal/model"
	"github.com/sells-group/funnel-optimizer/internal/narrative"
	"github.com/sells-group/funnel-optimizer/internal/rebalance"
	"github.com/sells-group/funnel-optimizer/internal/report"
	"github.com/sells-group/funnel-optimizer/internal/store"
	"github.com/sells-group/funnel-optimizer/internal/window"
)

// Runner executes engine runs. All component dependencies are injected so
// tests can substitute fakes for the store and the narrative collaborator.
type Runner struct {
	st  store.Store
	cfg *config.Config
	res *window.Resolver
	gov *governor.Governor
	reb *rebalance.Rebalancer
	syn *narrative.Synthesizer
	rep *report.Builder
	now func() time.Time
}

// New wires a Runner from its components.
func New(st store.Store, cfg *config.Config, gov *governor.Governor, reb *rebalance.Rebalancer, syn *narrative.Synthesizer, rep *report.Builder) (*Runner, error) {
	res, err := window.NewResolver(cfg.Report.Timezone, cfg.Report.TrailingDays)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: resolve timezone")
	}
	return &Runner{
		st: st, cfg: cfg, res: res,
		gov: gov, reb: reb, syn: syn, rep: rep,
		now: time.Now,
	}, nil
}

// fetched is the record set one run operates over.
type fetched struct {
	attempts         []model.CallAttempt
	trailingAttempts []model.CallAttempt
	orders           []model.Order
	transcripts      []model.TranscriptInsight
	pending          []model.ChangelogEntry
}

// Run executes one batch pass for the cadence. An empty date means "now" in
// the engine timezone. It returns the persisted report, or an error naming
// the stage that failed; nothing is persisted on failure.
func (r *Runner) Run(ctx context.Context, cadence model.Cadence, date string) (*model.OrchestratorReport, error) {
	ref := r.now().In(r.res.Location())
	if date != "" {
		parsed, err := r.res.ParseDate(date)
		if err != nil {
			return nil, eris.Wrapf(err, "orchestrator: parse date %q", date)
		}
		ref = parsed
	}

	win, err := r.res.For(cadence, ref)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: resolve window")
	}
	trailing := r.res.Trailing(win)

	zap.L().Info("orchestrator: run started",
		zap.String("cadence", string(cadence)),
		zap.Time("window_start", win.Start),
		zap.Time("window_end", win.End),
	)

	data, err := r.fetch(ctx, win, trailing)
	if err != nil {
		return nil, err
	}

	// Pure computation over the fetched records.
	sb := metrics.Compute(data.attempts)
	trailingSB := metrics.Compute(data.trailingAttempts)
	bottleneck := detect.Detect(sb, trailingSB, r.cfg.Policy)
	deltas := detect.Deltas(sb, trailingSB)

	openers := insights.OpenerLeaderboard(data.attempts, r.cfg.Policy)
	objections := insights.ObjectionLeaderboard(data.attempts)
	gatekeeper := insights.GatekeeperAnalysis(data.attempts)
	leadSources := insights.LeadSourceBreakdown(data.attempts, r.cfg.Policy)
	segments := insights.SegmentBreakdown(data.attempts, r.cfg.Policy)

	var autoApplied []model.ChangelogRef

	// Side-effecting stages, gated by cadence.
	if cadence == model.CadenceDaily {
		res, err := r.reb.Rebalance(ctx, data.attempts, sb)
		if err != nil {
			return nil, eris.Wrap(err, "orchestrator: rebalance variants")
		}
		autoApplied = append(autoApplied, res.Changes...)
	}
	if cadence == model.CadenceMonthly {
		refs, err := r.adjustAllocations(ctx, leadSources, sb)
		if err != nil {
			return nil, eris.Wrap(err, "orchestrator: adjust lead allocations")
		}
		autoApplied = append(autoApplied, refs...)
	}

	pending := make([]model.ChangelogRef, 0, len(data.pending))
	for _, e := range data.pending {
		pending = append(pending, e.Ref())
	}

	ordersTotal := 0.0
	for _, o := range data.orders {
		ordersTotal += o.Amount
	}
	flags := complianceFlags(data.transcripts)

	// Narrative never fails the run; the synthesizer falls back internally.
	in := narrative.Input{
		Cadence:           cadence,
		Date:              r.res.DateLabel(win.Start),
		Scoreboard:        sb,
		Trailing:          trailingSB,
		Bottleneck:        bottleneck,
		Deltas:            deltas,
		OpenerLeaderboard: openers,
		Objections:        objections,
		Gatekeeper:        gatekeeper,
		LeadSources:       leadSources,
		Segments:          segments,
		ComplianceFlags:   flags,
	}
	summary := r.syn.Summarize(ctx, in)
	recommendations := r.syn.Recommend(ctx, in)

	rep := model.OrchestratorReport{
		ID:                 uuid.New().String(),
		Cadence:            cadence,
		Date:               r.res.DateLabel(win.Start),
		Scoreboard:         sb,
		TrailingScoreboard: trailingSB,
		Bottleneck:         bottleneck,
		AutoApplied:        autoApplied,
		PendingApproval:    pending,
		OpenerLeaderboard:  openers,
		Objections:         objections,
		Gatekeeper:         gatekeeper,
		LeadSources:        leadSources,
		Segments:           segments,
		Summary:            summary,
		Recommendations:    recommendations,
		OrdersTotal:        ordersTotal,
		ComplianceFlags:    flags,
		GeneratedAt:        r.now().UTC(),
	}

	if err := r.rep.Persist(ctx, rep); err != nil {
		return nil, eris.Wrap(err, "orchestrator: persist report")
	}

	zap.L().Info("orchestrator: run completed",
		zap.String("cadence", string(cadence)),
		zap.String("date", rep.Date),
		zap.String("bottleneck", bottleneck.Stage),
		zap.Int("auto_applied", len(autoApplied)),
	)
	return &rep, nil
}

// fetch loads the run's record set. The four collaborator reads are
// independent and touch disjoint rows, so they go out concurrently.
func (r *Runner) fetch(ctx context.Context, win, trailing window.Window) (*fetched, error) {
	var data fetched
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		attempts, err := r.st.ListCallAttempts(gctx, trailing.Start, win.End)
		if err != nil {
			return eris.Wrap(err, "orchestrator: fetch call attempts")
		}
		// One range read covers both windows; split locally.
		for _, a := range attempts {
			if win.Contains(a.LastAttemptAt) {
				data.attempts = append(data.attempts, a)
			}
			if trailing.Contains(a.LastAttemptAt) {
				data.trailingAttempts = append(data.trailingAttempts, a)
			}
		}
		return nil
	})
	g.Go(func() error {
		orders, err := r.st.ListOrders(gctx, win.Start, win.End)
		if err != nil {
			return eris.Wrap(err, "orchestrator: fetch orders")
		}
		data.orders = orders
		return nil
	})
	g.Go(func() error {
		transcripts, err := r.st.ListTranscriptInsights(gctx, win.Start, win.End)
		if err != nil {
			return eris.Wrap(err, "orchestrator: fetch transcript insights")
		}
		data.transcripts = transcripts
		return nil
	})
	g.Go(func() error {
		pending, err := r.st.ListChangelogEntries(gctx, store.ChangelogFilter{Status: model.ChangeStatusPending})
		if err != nil {
			return eris.Wrap(err, "orchestrator: fetch pending changes")
		}
		data.pending = pending
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &data, nil
}

// adjustAllocations shifts one allocation step from the worst-closing lead
// source to the best, clamped to each source's band. Sources without an
// allocation row or flagged low-sample are left alone.
func (r *Runner) adjustAllocations(ctx context.Context, sources []model.LeadSourcePerformance, sb model.Scoreboard) ([]model.ChangelogRef, error) {
	allocs, err := r.st.ListLeadSourceAllocations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list allocations")
	}
	if len(allocs) == 0 {
		return nil, nil
	}

	bySource := make(map[string]model.LeadSourceAllocation, len(allocs))
	for _, a := range allocs {
		bySource[a.Source] = a
	}

	var best, worst *model.LeadSourcePerformance
	for i := range sources {
		s := &sources[i]
		if s.LowSample {
			continue
		}
		if _, ok := bySource[s.Source]; !ok {
			continue
		}
		if best == nil || s.CloseRate > best.CloseRate {
			best = s
		}
		if worst == nil || s.CloseRate < worst.CloseRate {
			worst = s
		}
	}
	if best == nil || worst == nil || best.Source == worst.Source {
		return nil, nil
	}

	now := r.now().UTC()
	step := r.cfg.Policy.AllocationStepPct
	var refs []model.ChangelogRef

	for _, move := range []struct {
		perf  *model.LeadSourcePerformance
		shift float64
	}{
		{worst, -step},
		{best, +step},
	} {
		alloc := bySource[move.perf.Source]
		proposed := alloc.Clamp(alloc.CurrentPct + move.shift)

		alloc.TrailingCloseRate = move.perf.CloseRate
		alloc.TrailingCalls = move.perf.Calls
		alloc.UpdatedAt = now

		if proposed != alloc.CurrentPct {
			before := alloc
			alloc.CurrentPct = proposed

			entry, err := r.gov.Propose(ctx, governor.Proposal{
				ChangeType: "allocation_shift",
				Stage:      governor.StageLeadAllocation,
				Title:      fmt.Sprintf("Shift %q allocation to %.1f%%", alloc.Source, proposed),
				Rationale:  fmt.Sprintf("trailing close rate %.1f%% over %d calls", move.perf.CloseRate, move.perf.Calls),
				Before:     before,
				After:      alloc,
				Metrics:    sb,
			})
			if err != nil {
				return nil, eris.Wrapf(err, "propose allocation shift for %s", alloc.Source)
			}
			refs = append(refs, entry.Ref())
		}

		if err := r.st.UpsertLeadSourceAllocation(ctx, alloc); err != nil {
			return nil, eris.Wrapf(err, "upsert allocation %s", alloc.Source)
		}
	}
	return refs, nil
}

// complianceFlags collects the distinct flags raised across the window's
// transcripts, in first-seen order.
func complianceFlags(rows []model.TranscriptInsight) []string {
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		for _, f := range row.ComplianceFlags {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
