package domain

import (
	"time"
)

// DayStatus enumerates the lifecycle of a single scheduled warmup day.
type DayStatus string

const (
	DayPending    DayStatus = "pending"
	DayInProgress DayStatus = "in_progress"
	DayCompleted  DayStatus = "completed"
	DaySkipped    DayStatus = "skipped"
)

// dayTransitions lists the legal next statuses for each day status.
// Completed and skipped are terminal.
var dayTransitions = map[DayStatus][]DayStatus{
	DayPending:    {DayInProgress, DaySkipped},
	DayInProgress: {DayCompleted, DaySkipped},
	DayCompleted:  {},
	DaySkipped:    {},
}

// CanTransitionDay reports whether a day may move from one status to another.
func CanTransitionDay(from, to DayStatus) bool {
	for _, allowed := range dayTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalDay returns true for statuses that accept no further transitions.
func IsTerminalDay(s DayStatus) bool {
	return s == DayCompleted || s == DaySkipped
}

// DaySchedule is one day's record in a campaign's warmup plan.
type DaySchedule struct {
	ID            string    `json:"id" db:"id"`
	CampaignID    string    `json:"campaign_id" db:"campaign_id"`
	DayNumber     int       `json:"day_number" db:"day_number"`
	ScheduledDate string    `json:"scheduled_date" db:"scheduled_date"` // YYYY-MM-DD
	PlannedVolume int       `json:"planned_volume" db:"planned_volume"`
	Status        DayStatus `json:"status" db:"status"`

	ActualSent int `json:"actual_sent" db:"actual_sent"`
	Delivered  int `json:"delivered" db:"delivered"`
	Opened     int `json:"opened" db:"opened"`
	Clicked    int `json:"clicked" db:"clicked"`
	Bounced    int `json:"bounced" db:"bounced"`
	Complained int `json:"complained" db:"complained"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BounceRate returns the day's bounce ratio as a percentage of actual sends.
func (d *DaySchedule) BounceRate() float64 {
	if d.ActualSent == 0 {
		return 0
	}
	return float64(d.Bounced) / float64(d.ActualSent) * 100
}

// ComplaintRate returns the day's complaint ratio as a percentage.
func (d *DaySchedule) ComplaintRate() float64 {
	if d.ActualSent == 0 {
		return 0
	}
	return float64(d.Complained) / float64(d.ActualSent) * 100
}

// Overshot reports whether more messages were sent than planned. This is a
// reportable anomaly, not an error.
func (d *DaySchedule) Overshot() bool {
	return d.ActualSent > d.PlannedVolume
}

// DateString formats a time as the schedule's calendar-date key.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}
