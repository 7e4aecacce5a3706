package model

import "time"

// LeadSourceAllocation is the per-source traffic share, adjusted by the
// monthly cadence only and clamped to its configured band.
type LeadSourceAllocation struct {
	Source            string    `json:"source"`
	CurrentPct        float64   `json:"current_pct"`
	MinPct            float64   `json:"min_pct"`
	MaxPct            float64   `json:"max_pct"`
	TrailingCloseRate float64   `json:"trailing_close_rate"`
	TrailingCalls     int       `json:"trailing_calls"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Clamp bounds a proposed share to the allocation's band.
func (a LeadSourceAllocation) Clamp(pct float64) float64 {
	if pct < a.MinPct {
		return a.MinPct
	}
	if a.MaxPct > 0 && pct > a.MaxPct {
		return a.MaxPct
	}
	return pct
}
