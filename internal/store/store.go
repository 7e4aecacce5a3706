package store

import (
	"context"
	"time"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

// ChangelogFilter specifies criteria for listing changelog entries.
type ChangelogFilter struct {
	Status model.ChangeStatus `json:"status,omitempty"`
	From   time.Time          `json:"from,omitempty"`
	To     time.Time          `json:"to,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// Store defines the persistence interface for the optimizer engine.
//
// Call attempts, orders, and transcript insights are owned by the storefront
// subsystems; this engine only reads them over timestamp ranges. Reports and
// allocations are upserts so reruns overwrite rather than duplicate.
type Store interface {
	// Read-only collaborator records.
	ListCallAttempts(ctx context.Context, from, to time.Time) ([]model.CallAttempt, error)
	ListOrders(ctx context.Context, from, to time.Time) ([]model.Order, error)
	ListTranscriptInsights(ctx context.Context, from, to time.Time) ([]model.TranscriptInsight, error)

	// Opener variants. UpsertOpenerVariant is an atomic per-row write keyed
	// by tag that touches only engine-owned fields.
	ListOpenerVariants(ctx context.Context) ([]model.OpenerVariant, error)
	UpsertOpenerVariant(ctx context.Context, v model.OpenerVariant) error

	// Changelog. Append/update only, never deleted.
	CreateChangelogEntry(ctx context.Context, e model.ChangelogEntry) error
	UpdateChangelogStatus(ctx context.Context, id string, status model.ChangeStatus, at time.Time) error
	GetChangelogEntry(ctx context.Context, id string) (*model.ChangelogEntry, error)
	ListChangelogEntries(ctx context.Context, filter ChangelogFilter) ([]model.ChangelogEntry, error)

	// Reports, keyed by (cadence, date).
	UpsertReport(ctx context.Context, r model.OrchestratorReport) error
	GetReport(ctx context.Context, cadence model.Cadence, date string) (*model.OrchestratorReport, error)

	// Lead-source allocations, mutated by the monthly cadence only.
	ListLeadSourceAllocations(ctx context.Context) ([]model.LeadSourceAllocation, error)
	UpsertLeadSourceAllocation(ctx context.Context, a model.LeadSourceAllocation) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
