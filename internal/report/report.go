// Package report renders and persists the assembled engine run. The report
// row is written last so a failed run leaves nothing behind.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funnel-optimizer/internal/artifact"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// ReportStore is the slice of the persistence layer the builder needs.
// store.Store satisfies it.
type ReportStore interface {
	UpsertReport(ctx context.Context, r model.OrchestratorReport) error
}

// Builder writes the artifact documents and then upserts the report row.
type Builder struct {
	st  ReportStore
	art artifact.Store
}

// New creates a Builder.
func New(st ReportStore, art artifact.Store) *Builder {
	return &Builder{st: st, art: art}
}

// Persist writes both artifact documents and then the report row. Ordering
// matters: if any write fails the (cadence, date) row is never created, so a
// stored report always has its documents.
func (b *Builder) Persist(ctx context.Context, r model.OrchestratorReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "report: marshal body")
	}

	if err := b.art.Write(ctx, r.Cadence, r.Date, body, FormatReport(r)); err != nil {
		return eris.Wrap(err, "report: write artifacts")
	}

	if err := b.st.UpsertReport(ctx, r); err != nil {
		return eris.Wrap(err, "report: upsert row")
	}

	zap.L().Info("report: persisted",
		zap.String("cadence", string(r.Cadence)),
		zap.String("date", r.Date),
		zap.Int("auto_applied", len(r.AutoApplied)),
		zap.Int("pending_approval", len(r.PendingApproval)),
	)
	return nil
}

// FormatReport generates the human-readable report document.
func FormatReport(r model.OrchestratorReport) string {
	var b strings.Builder

	titler := map[model.Cadence]string{
		model.CadenceDaily:   "Daily",
		model.CadenceWeekly:  "Weekly",
		model.CadenceMonthly: "Monthly",
	}
	fmt.Fprintf(&b, "# %s Funnel Report: %s\n\n", titler[r.Cadence], r.Date)

	// Funnel.
	sb := r.Scoreboard
	b.WriteString("## Funnel\n")
	fmt.Fprintf(&b, "- Dialed: %d\n", sb.Dialed)
	fmt.Fprintf(&b, "- Answered: %d (%.1f%%)\n", sb.Answered, sb.AnsweredRate)
	fmt.Fprintf(&b, "- Engaged: %d (%.1f%%)\n", sb.Engaged, sb.EngagementRate)
	fmt.Fprintf(&b, "- Early hangups: %d (%.1f%%)\n", sb.FirstContactRejections, sb.EarlyHangupRate)
	fmt.Fprintf(&b, "- Discovery complete: %d (%.1f%%)\n", sb.DiscoveryComplete, sb.DiscoveryCompletionRate)
	fmt.Fprintf(&b, "- Comparisons sent: %d (%.1f%%)\n", sb.ComparisonsSent, sb.ComparisonSentRate)
	fmt.Fprintf(&b, "- Follow-ups set: %d (%.1f%%)\n", sb.FollowUpsSet, sb.FollowUpSetRate)
	fmt.Fprintf(&b, "- Orders closed: %d (%.1f%%)\n", sb.OrdersClosed, sb.CloseRate)
	if r.OrdersTotal > 0 {
		fmt.Fprintf(&b, "- Order value: $%.2f\n", r.OrdersTotal)
	}
	b.WriteString("\n")

	// Bottleneck.
	b.WriteString("## Bottleneck\n")
	switch {
	case r.Bottleneck.InsufficientData:
		b.WriteString("Insufficient data: no calls dialed in this window.\n\n")
	case r.Bottleneck.Significant:
		fmt.Fprintf(&b, "**%s** degraded %.1f points against the trailing window.\n\n", r.Bottleneck.Stage, r.Bottleneck.DeltaPct)
	default:
		b.WriteString("No significant bottleneck.\n\n")
	}

	// Summary.
	b.WriteString("## Summary\n")
	for _, bullet := range r.Summary.Bullets {
		fmt.Fprintf(&b, "- %s\n", bullet)
	}
	fmt.Fprintf(&b, "\nBiggest bottleneck: %s\n", r.Summary.BiggestBottleneck)
	fmt.Fprintf(&b, "Biggest win: %s\n", r.Summary.BiggestWin)
	fmt.Fprintf(&b, "Recommended focus: %s\n\n", r.Summary.RecommendedFocus)

	if len(r.Summary.Deltas) > 0 {
		b.WriteString("## Stage Movement\n")
		b.WriteString("| Stage | Today | Trailing | Delta |\n")
		b.WriteString("|-------|-------|----------|-------|\n")
		for _, d := range r.Summary.Deltas {
			fmt.Fprintf(&b, "| %s | %.1f%% | %.1f%% | %+.1f |\n", d.Stage, d.Today, d.Trailing, d.DeltaPct)
		}
		b.WriteString("\n")
	}

	if len(r.OpenerLeaderboard) > 0 {
		b.WriteString("## Opener Leaderboard\n")
		for i, o := range r.OpenerLeaderboard {
			low := ""
			if o.LowSample {
				low = " (low sample)"
			}
			fmt.Fprintf(&b, "%d. **%s**: %.1f%% engagement, %.1f%% close over %d answered%s\n",
				i+1, o.Tag, o.EngagementRate, o.CloseRate, o.Answered, low)
		}
		b.WriteString("\n")
	}

	if len(r.Objections) > 0 {
		b.WriteString("## Top Objections\n")
		for _, o := range r.Objections {
			fmt.Fprintf(&b, "- %s: %d (%.1f%% of answered)\n", o.Objection, o.Count, o.Share)
		}
		b.WriteString("\n")
	}

	if r.Gatekeeper.Encounters > 0 {
		b.WriteString("## Gatekeepers\n")
		fmt.Fprintf(&b, "- Encounters: %d, passed: %d (%.1f%%)\n",
			r.Gatekeeper.Encounters, r.Gatekeeper.Passes, r.Gatekeeper.PassRate)
		fmt.Fprintf(&b, "- Closes after pass-through: %d (%.1f%%)\n\n",
			r.Gatekeeper.DecisionMakerCloses, r.Gatekeeper.DecisionMakerCloseRate)
	}

	if len(r.LeadSources) > 0 {
		b.WriteString("## Lead Sources\n")
		for _, s := range r.LeadSources {
			low := ""
			if s.LowSample {
				low = " (low sample)"
			}
			fmt.Fprintf(&b, "- %s: %.1f%% close, %.1f%% engagement over %d calls%s\n",
				s.Source, s.CloseRate, s.EngagementRate, s.Calls, low)
		}
		b.WriteString("\n")
	}

	if len(r.Segments) > 0 {
		b.WriteString("## Segments\n")
		for _, s := range r.Segments {
			label := s.Industry
			if s.Region != "" {
				label = label + " / " + s.Region
			}
			low := ""
			if s.LowSample {
				low = " (low sample)"
			}
			fmt.Fprintf(&b, "- %s: %d closed of %d calls (%.1f%%)%s\n",
				label, s.OrdersClosed, s.Calls, s.CloseRate, low)
		}
		b.WriteString("\n")
	}

	// Changes.
	b.WriteString("## Changes\n")
	if len(r.AutoApplied) == 0 && len(r.PendingApproval) == 0 {
		b.WriteString("No configuration changes this run.\n\n")
	} else {
		for _, c := range r.AutoApplied {
			fmt.Fprintf(&b, "- [applied] %s (%s)\n", c.Title, c.ID)
		}
		for _, c := range r.PendingApproval {
			fmt.Fprintf(&b, "- [awaiting approval] %s (%s)\n", c.Title, c.ID)
		}
		b.WriteString("\n")
	}

	// Recommendations.
	if len(r.Recommendations.Hypotheses) > 0 || len(r.Recommendations.Changes) > 0 {
		b.WriteString("## Recommendations\n")
		for _, h := range r.Recommendations.Hypotheses {
			fmt.Fprintf(&b, "- Hypothesis: %s\n", h)
		}
		for _, e := range r.Recommendations.Experiments {
			fmt.Fprintf(&b, "- Experiment: %s\n", e)
		}
		for _, c := range r.Recommendations.Changes {
			fmt.Fprintf(&b, "- Change [%s]: %s\n", c.Category, c.Detail)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\nGenerated %s. Narrative source: %s.\n",
		r.GeneratedAt.Format("2006-01-02 15:04 MST"), r.Summary.Source)

	return b.String()
}
