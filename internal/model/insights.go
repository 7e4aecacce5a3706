package model

// OpenerStanding is one row of the opener-variant leaderboard.
type OpenerStanding struct {
	Tag             string  `json:"tag"`
	Calls           int     `json:"calls"`
	Answered        int     `json:"answered"`
	AnsweredRate    float64 `json:"answered_rate"`
	EngagementRate  float64 `json:"engagement_rate"`
	DiscoveryRate   float64 `json:"discovery_rate"`
	CloseRate       float64 `json:"close_rate"`
	LowSample       bool    `json:"low_sample"`
}

// ObjectionCount is one row of the objection-frequency leaderboard.
type ObjectionCount struct {
	Objection string  `json:"objection"`
	Count     int     `json:"count"`
	Share     float64 `json:"share"` // percent of answered calls raising it
}

// GatekeeperStats summarizes pass-through performance against gatekeepers.
type GatekeeperStats struct {
	Encounters             int     `json:"encounters"`
	Passes                 int     `json:"passes"`
	PassRate               float64 `json:"pass_rate"`
	DecisionMakerCloses    int     `json:"decision_maker_closes"`
	DecisionMakerCloseRate float64 `json:"decision_maker_close_rate"`
}

// LeadSourcePerformance is one row of the per-source breakdown.
type LeadSourcePerformance struct {
	Source         string  `json:"source"`
	Calls          int     `json:"calls"`
	Answered       int     `json:"answered"`
	AnsweredRate   float64 `json:"answered_rate"`
	EngagementRate float64 `json:"engagement_rate"`
	CloseRate      float64 `json:"close_rate"`
	LowSample      bool    `json:"low_sample"`
}

// SegmentPerformance is one industry×region row of the segment win analysis.
type SegmentPerformance struct {
	Industry       string  `json:"industry"`
	Region         string  `json:"region"`
	Calls          int     `json:"calls"`
	OrdersClosed   int     `json:"orders_closed"`
	CloseRate      float64 `json:"close_rate"`
	EngagementRate float64 `json:"engagement_rate"`
	LowSample      bool    `json:"low_sample"`
}
