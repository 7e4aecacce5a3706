package model

import (
	"encoding/json"
	"time"
)

// ChangeStatus is the lifecycle state of a changelog entry.
type ChangeStatus string

const (
	ChangeStatusPending    ChangeStatus = "pending"
	ChangeStatusApproved   ChangeStatus = "approved"
	ChangeStatusRejected   ChangeStatus = "rejected"
	ChangeStatusApplied    ChangeStatus = "applied"
	ChangeStatusRolledBack ChangeStatus = "rolled_back"
)

// ChangeCategory classifies how risky a proposed change is.
type ChangeCategory string

const (
	ChangeCategorySafe     ChangeCategory = "safe"
	ChangeCategoryApproval ChangeCategory = "approval"
)

// ChangelogEntry is an auditable record of a proposed or executed mutation to
// engine-controlled configuration. Rows are append/update only, never deleted.
type ChangelogEntry struct {
	ID              string          `json:"id"`
	Category        ChangeCategory  `json:"category"`
	ChangeType      string          `json:"change_type"`
	Status          ChangeStatus    `json:"status"`
	Title           string          `json:"title"`
	Rationale       string          `json:"rationale"`
	Before          json.RawMessage `json:"before,omitempty"`
	After           json.RawMessage `json:"after,omitempty"`
	MetricsSnapshot json.RawMessage `json:"metrics_snapshot,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RolledBackAt    *time.Time      `json:"rolled_back_at,omitempty"`
}

// changeTransitions enumerates the legal status moves. Safe changes are
// created directly as applied, skipping pending.
var changeTransitions = map[ChangeStatus][]ChangeStatus{
	ChangeStatusPending:  {ChangeStatusApproved, ChangeStatusRejected},
	ChangeStatusApproved: {ChangeStatusApplied},
	ChangeStatusApplied:  {ChangeStatusRolledBack},
}

// CanTransition reports whether a status move is legal.
func CanTransition(from, to ChangeStatus) bool {
	for _, s := range changeTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ChangelogRef is the lightweight reference embedded in reports.
type ChangelogRef struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Status ChangeStatus `json:"status"`
}

// Ref returns the report-embeddable reference for an entry.
func (e ChangelogEntry) Ref() ChangelogRef {
	return ChangelogRef{ID: e.ID, Title: e.Title, Status: e.Status}
}
