package model

import "time"

// OpenerVariant is one arm of the opening-script traffic split. Counters are
// cumulative totals recomputed from source records each rebalancing pass,
// never incremented blindly.
type OpenerVariant struct {
	Tag            string    `json:"tag"`
	Weight         int       `json:"weight"` // 0-100 traffic share
	Paused         bool      `json:"paused"`
	Calls          int       `json:"calls"`
	Answered       int       `json:"answered"`
	EngagementRate float64   `json:"engagement_rate"`
	DiscoveryRate  float64   `json:"discovery_rate"`
	CloseRate      float64   `json:"close_rate"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// VariantSnapshot is the before/after payload recorded in changelog entries
// for weight changes.
type VariantSnapshot struct {
	Tag    string `json:"tag"`
	Weight int    `json:"weight"`
	Paused bool   `json:"paused"`
}

// Snapshot captures the mutable allocation fields of a variant.
func (v OpenerVariant) Snapshot() VariantSnapshot {
	return VariantSnapshot{Tag: v.Tag, Weight: v.Weight, Paused: v.Paused}
}
