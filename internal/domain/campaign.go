package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignWarmingUp CampaignStatus = "warming_up"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// CampaignEvent is a request to move a campaign through its lifecycle.
// All status changes go through the transition table below; there are no
// ad hoc status writes anywhere else.
type CampaignEvent string

const (
	EventStart    CampaignEvent = "start"
	EventPause    CampaignEvent = "pause"
	EventResume   CampaignEvent = "resume"
	EventCancel   CampaignEvent = "cancel"
	EventComplete CampaignEvent = "complete"
)

// campaignTransitions maps (current status, event) to the next status.
// Resume lands on warming_up by default; the controller substitutes the
// remembered pre-pause status when one was recorded.
var campaignTransitions = map[CampaignStatus]map[CampaignEvent]CampaignStatus{
	CampaignDraft: {
		EventStart:  CampaignWarmingUp,
		EventCancel: CampaignFailed,
	},
	CampaignScheduled: {
		EventStart:  CampaignWarmingUp,
		EventCancel: CampaignFailed,
	},
	CampaignWarmingUp: {
		EventPause:    CampaignPaused,
		EventCancel:   CampaignFailed,
		EventComplete: CampaignCompleted,
	},
	CampaignSending: {
		EventPause:    CampaignPaused,
		EventCancel:   CampaignFailed,
		EventComplete: CampaignCompleted,
	},
	CampaignPaused: {
		EventResume: CampaignWarmingUp,
		EventCancel: CampaignFailed,
	},
}

// NextStatus returns the status a campaign moves to when the given event is
// applied, or false if the event is not legal from the current status.
func NextStatus(current CampaignStatus, event CampaignEvent) (CampaignStatus, bool) {
	next, ok := campaignTransitions[current][event]
	return next, ok
}

// WarmupParams holds the ramp configuration captured on the campaign.
type WarmupParams struct {
	StartVolume      int     `json:"start_volume" db:"warmup_start_volume"`
	IncrementPercent float64 `json:"increment_percent" db:"warmup_increment_percent"`
	MaxDaily         int     `json:"max_daily" db:"warmup_max_daily"`
}

// Campaign represents one sending program and its cumulative delivery stats.
type Campaign struct {
	ID       string         `json:"id" db:"id"`
	Name     string         `json:"name" db:"name"`
	DomainID string         `json:"domain_id" db:"domain_id"`
	ListID   *string        `json:"list_id" db:"list_id"`
	Status   CampaignStatus `json:"status" db:"status"`

	UseWarmup bool         `json:"use_warmup" db:"use_warmup"`
	Warmup    WarmupParams `json:"warmup"`

	// PausedFrom remembers the status a pause interrupted so resume can
	// return there instead of unconditionally re-entering warming_up.
	PausedFrom *CampaignStatus `json:"paused_from,omitempty" db:"paused_from"`

	TotalRecipients int `json:"total_recipients" db:"total_recipients"`

	// Cumulative counters. Monotonically non-decreasing; TotalSent never
	// exceeds TotalRecipients under normal operation.
	TotalSent       int `json:"total_sent" db:"total_sent"`
	TotalDelivered  int `json:"total_delivered" db:"total_delivered"`
	TotalOpened     int `json:"total_opened" db:"total_opened"`
	TotalClicked    int `json:"total_clicked" db:"total_clicked"`
	TotalBounced    int `json:"total_bounced" db:"total_bounced"`
	TotalComplained int `json:"total_complained" db:"total_complained"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed
}

// IsActiveSending reports whether the campaign is in a status where daily
// volume is being dispatched. Control operations on the current day
// (skip, adjust) require this.
func (c *Campaign) IsActiveSending() bool {
	return c.Status == CampaignWarmingUp || c.Status == CampaignSending
}

// BounceRate returns the cumulative bounce ratio as a percentage.
func (c *Campaign) BounceRate() float64 {
	if c.TotalSent == 0 {
		return 0
	}
	return float64(c.TotalBounced) / float64(c.TotalSent) * 100
}

// ComplaintRate returns the cumulative complaint ratio as a percentage.
func (c *Campaign) ComplaintRate() float64 {
	if c.TotalSent == 0 {
		return 0
	}
	return float64(c.TotalComplained) / float64(c.TotalSent) * 100
}
