package model

import "time"

// Order is a closed storefront order. Read-only collaborator data used for
// revenue context in reports.
type Order struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptInsight is a per-call analysis row produced by the transcript
// subsystem. Read-only; the engine surfaces compliance flags in reports.
type TranscriptInsight struct {
	CallID          string    `json:"call_id"`
	Sentiment       string    `json:"sentiment"`
	ComplianceFlags []string  `json:"compliance_flags,omitempty"`
	Topics          []string  `json:"topics,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
