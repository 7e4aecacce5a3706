package model

// Scoreboard is the fixed-shape funnel summary computed over one window of
// call attempts. It is derived state: never persisted standalone, always
// embedded in an OrchestratorReport.
type Scoreboard struct {
	Dialed                 int `json:"dialed"`
	Answered               int `json:"answered"`
	Engaged                int `json:"engaged"`
	FirstContactRejections int `json:"first_contact_rejections"`
	GatekeeperEncounters   int `json:"gatekeeper_encounters"`
	GatekeeperPasses       int `json:"gatekeeper_passes"`
	DiscoveryComplete      int `json:"discovery_complete"`
	ComparisonsSent        int `json:"comparisons_sent"`
	FollowUpsSet           int `json:"follow_ups_set"`
	OrdersClosed           int `json:"orders_closed"`

	AnsweredRate            float64 `json:"answered_rate"`
	EngagementRate          float64 `json:"engagement_rate"`
	EarlyHangupRate         float64 `json:"early_hangup_rate"`
	GatekeeperPassRate      float64 `json:"gatekeeper_pass_rate"`
	DiscoveryCompletionRate float64 `json:"discovery_completion_rate"`
	ComparisonSentRate      float64 `json:"comparison_sent_rate"`
	FollowUpSetRate         float64 `json:"follow_up_set_rate"`
	CloseRate               float64 `json:"close_rate"`
}
