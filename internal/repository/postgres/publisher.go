package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clickmail/warmup-engine/internal/domain"
)

// VolumeChannel carries the day's authorized volume to the dispatch
// service. The engine only announces; it never calls dispatch directly.
const VolumeChannel = "warmup_day_authorized"

// NotifyVolumePublisher implements warmup.VolumePublisher over Postgres
// NOTIFY. The dispatch service LISTENs on VolumeChannel and sends up to
// the announced volume for the day.
type NotifyVolumePublisher struct{ db *sql.DB }

// NewNotifyVolumePublisher creates a NOTIFY-backed volume publisher.
func NewNotifyVolumePublisher(db *sql.DB) *NotifyVolumePublisher {
	return &NotifyVolumePublisher{db: db}
}

type volumePayload struct {
	CampaignID    string `json:"campaign_id"`
	DayNumber     int    `json:"day_number"`
	ScheduledDate string `json:"scheduled_date"`
	Volume        int    `json:"volume"`
}

// PublishDayVolume implements warmup.VolumePublisher.
func (p *NotifyVolumePublisher) PublishDayVolume(ctx context.Context, campaignID string, day *domain.DaySchedule) error {
	payload, err := json.Marshal(volumePayload{
		CampaignID:    campaignID,
		DayNumber:     day.DayNumber,
		ScheduledDate: day.ScheduledDate,
		Volume:        day.PlannedVolume,
	})
	if err != nil {
		return fmt.Errorf("marshal volume payload: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, VolumeChannel, string(payload)); err != nil {
		return fmt.Errorf("publish day volume: %w", err)
	}
	return nil
}
