// Package governor wraps every engine-proposed configuration mutation in an
// auditable changelog entry and decides whether it may be applied
// automatically or must wait for a human.
package governor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/detect"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// ChangeStore is the slice of the persistence layer the governor needs.
// store.Store satisfies it.
type ChangeStore interface {
	CreateChangelogEntry(ctx context.Context, e model.ChangelogEntry) error
	GetChangelogEntry(ctx context.Context, id string) (*model.ChangelogEntry, error)
	UpdateChangelogStatus(ctx context.Context, id string, status model.ChangeStatus, at time.Time) error
}

// Proposal is one configuration mutation submitted for governance.
type Proposal struct {
	ChangeType string
	Stage      string // bottleneck stage that justified the change
	Title      string
	Rationale  string
	Before     any
	After      any
	Metrics    model.Scoreboard
}

// Governor applies the fixed risk policy to proposals. The policy table is
// code plus an optional operator override file; thresholds are never learned.
type Governor struct {
	st    ChangeStore
	rules []Rule
	now   func() time.Time
}

// New creates a Governor with the built-in policy table seeded from the
// configured thresholds.
func New(st ChangeStore, policy config.PolicyConfig) *Governor {
	return &Governor{st: st, rules: DefaultRules(policy), now: time.Now}
}

// WithRules replaces the policy table, for operator override files and tests.
func (g *Governor) WithRules(rules []Rule) *Governor {
	g.rules = rules
	return g
}

// classify returns the category a proposal falls under. A stage with no
// matching rule is escalated to approval: an unrecognized risk is never
// auto-applied.
func (g *Governor) classify(p Proposal) model.ChangeCategory {
	for _, r := range g.rules {
		if r.Stage != p.Stage {
			continue
		}
		if r.MinSeverityPct > 0 && severityFor(r.Stage, p.Metrics) < r.MinSeverityPct {
			continue
		}
		return r.Category
	}
	return model.ChangeCategoryApproval
}

// severityFor extracts the metric a rule's severity threshold is judged
// against.
func severityFor(stage string, sb model.Scoreboard) float64 {
	switch stage {
	case detect.StageEarlyHangup:
		return sb.EarlyHangupRate
	case detect.StageAnswered:
		return sb.AnsweredRate
	case detect.StageEngagement:
		return sb.EngagementRate
	case detect.StageGatekeeper:
		return sb.GatekeeperPassRate
	case detect.StageDiscovery:
		return sb.DiscoveryCompletionRate
	case detect.StageClose:
		return sb.CloseRate
	}
	return 0
}

// Propose records the proposal as a changelog entry. Safe changes are created
// directly in applied status; everything else waits in pending.
func (g *Governor) Propose(ctx context.Context, p Proposal) (*model.ChangelogEntry, error) {
	category := g.classify(p)

	status := model.ChangeStatusPending
	if category == model.ChangeCategorySafe {
		status = model.ChangeStatusApplied
	}

	before, err := json.Marshal(p.Before)
	if err != nil {
		return nil, eris.Wrap(err, "governor: marshal before snapshot")
	}
	after, err := json.Marshal(p.After)
	if err != nil {
		return nil, eris.Wrap(err, "governor: marshal after snapshot")
	}
	snapshot, err := json.Marshal(p.Metrics)
	if err != nil {
		return nil, eris.Wrap(err, "governor: marshal metrics snapshot")
	}

	entry := model.ChangelogEntry{
		ID:              uuid.New().String(),
		Category:        category,
		ChangeType:      p.ChangeType,
		Status:          status,
		Title:           p.Title,
		Rationale:       p.Rationale,
		Before:          before,
		After:           after,
		MetricsSnapshot: snapshot,
		CreatedAt:       g.now().UTC(),
	}

	if err := g.st.CreateChangelogEntry(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "governor: create changelog entry")
	}

	zap.L().Info("governor: proposal recorded",
		zap.String("id", entry.ID),
		zap.String("change_type", entry.ChangeType),
		zap.String("stage", p.Stage),
		zap.String("category", string(category)),
		zap.String("status", string(status)),
	)
	return &entry, nil
}

// Approve moves a pending entry to approved and stamps the approval time.
func (g *Governor) Approve(ctx context.Context, id string) error {
	return g.transition(ctx, id, model.ChangeStatusApproved)
}

// Reject moves a pending entry to rejected.
func (g *Governor) Reject(ctx context.Context, id string) error {
	return g.transition(ctx, id, model.ChangeStatusRejected)
}

// Apply moves an approved entry to applied.
func (g *Governor) Apply(ctx context.Context, id string) error {
	return g.transition(ctx, id, model.ChangeStatusApplied)
}

// Rollback flips an applied entry to rolled_back and stamps the time. The
// live configuration value is NOT reverted; rollback is an audit marker and
// operators re-apply the before snapshot by hand. Reports surface this.
func (g *Governor) Rollback(ctx context.Context, id string) error {
	return g.transition(ctx, id, model.ChangeStatusRolledBack)
}

func (g *Governor) transition(ctx context.Context, id string, to model.ChangeStatus) error {
	entry, err := g.st.GetChangelogEntry(ctx, id)
	if err != nil {
		return eris.Wrap(err, "governor: load changelog entry")
	}
	if entry == nil {
		return eris.Errorf("governor: changelog entry not found: %s", id)
	}
	if !model.CanTransition(entry.Status, to) {
		return eris.Errorf("governor: illegal transition %s -> %s for %s", entry.Status, to, id)
	}
	if err := g.st.UpdateChangelogStatus(ctx, id, to, g.now().UTC()); err != nil {
		return eris.Wrap(err, "governor: update changelog status")
	}
	zap.L().Info("governor: status changed",
		zap.String("id", id),
		zap.String("from", string(entry.Status)),
		zap.String("to", string(to)),
	)
	return nil
}
