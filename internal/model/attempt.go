package model

import "time"

// Outcome is the terminal disposition of a single call attempt.
type Outcome string

const (
	OutcomeVoicemail      Outcome = "voicemail"
	OutcomeHangupEarly    Outcome = "hangup_early"
	OutcomeEngaged        Outcome = "engaged"
	OutcomeComparisonSent Outcome = "comparison_sent"
	OutcomeOrderClosed    Outcome = "order_closed"
	OutcomeDoNotContact   Outcome = "do_not_contact"
	OutcomeOther          Outcome = "other"
)

// Discovery is considered complete once this many qualifying answers
// have been captured on the call.
const DiscoveryAnswerThreshold = 5

// Duration boundaries (seconds) separating an engaged conversation from
// a first-contact rejection.
const (
	EngagedDurationSecs     = 45
	EarlyHangupDurationSecs = 10
)

// CallAttempt is one outbound contact attempt against a prospect. Rows are
// owned by the calling subsystem; the engine only reads them.
type CallAttempt struct {
	ID                    string            `json:"id"`
	LeadID                string            `json:"lead_id"`
	LastAttemptAt         time.Time         `json:"last_attempt_at"`
	Outcome               Outcome           `json:"outcome,omitempty"`
	DurationSecs          int               `json:"duration_secs"`
	OpenerVariant         string            `json:"opener_variant,omitempty"`
	GatekeeperEncountered bool              `json:"gatekeeper_encountered"`
	DecisionMakerReached  bool              `json:"decision_maker_reached"`
	QualifyingAnswers     map[string]string `json:"qualifying_answers,omitempty"`
	Objections            []string          `json:"objections,omitempty"`
	LeadSource            string            `json:"lead_source,omitempty"`
	Industry              string            `json:"industry,omitempty"`
	Region                string            `json:"region,omitempty"`
	NextFollowUpAt        *time.Time        `json:"next_follow_up_at,omitempty"`
}

// Answered reports whether the prospect picked up. Voicemail and never-logged
// outcomes both count as unanswered.
func (a CallAttempt) Answered() bool {
	return a.Outcome != "" && a.Outcome != OutcomeVoicemail
}

// Engaged reports whether the conversation lasted long enough to count as a
// real exchange rather than a brush-off.
func (a CallAttempt) Engaged() bool {
	return a.Answered() && a.DurationSecs > EngagedDurationSecs
}

// FirstContactRejection reports an early hangup within the opening seconds.
func (a CallAttempt) FirstContactRejection() bool {
	return a.Outcome == OutcomeHangupEarly && a.DurationSecs < EarlyHangupDurationSecs
}

// GatekeeperPassed reports whether a gatekeeper was encountered and the
// decision maker was still reached.
func (a CallAttempt) GatekeeperPassed() bool {
	return a.GatekeeperEncountered && a.DecisionMakerReached
}

// DiscoveryComplete reports whether enough qualifying answers were captured.
func (a CallAttempt) DiscoveryComplete() bool {
	return len(a.QualifyingAnswers) >= DiscoveryAnswerThreshold
}

// FollowUpSet reports whether a next follow-up was scheduled on the call.
func (a CallAttempt) FollowUpSet() bool {
	return a.NextFollowUpAt != nil
}
