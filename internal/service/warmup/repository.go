package warmup

import (
	"context"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/schedule"
)

// Repository defines the data access contract for campaigns and their
// warmup plans. Implementations must be safe for concurrent use, and every
// conditional update must be atomic: a status write carries the expected
// current status and fails with ErrInvalidTransition when the row has moved
// on, so a lost update can never be silently applied.
type Repository interface {
	// GetCampaign returns a single campaign. Returns ErrNotFound if it
	// doesn't exist.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// UpdateCampaignStatus transitions a campaign's status conditionally:
	// the write only applies while the row still has status `from`.
	// pausedFrom records (or clears, when nil) the pre-pause status.
	UpdateCampaignStatus(ctx context.Context, id string, from, to domain.CampaignStatus, pausedFrom *domain.CampaignStatus) error

	// HasPlan reports whether a warmup plan was already generated for the
	// campaign.
	HasPlan(ctx context.Context, campaignID string) (bool, error)

	// CreatePlan persists a freshly generated plan. The plan for a campaign
	// is created exactly once; implementations must reject duplicates with
	// ErrPlanExists.
	CreatePlan(ctx context.Context, campaignID string, plan []schedule.DayPlan) error

	// GetPlan returns the campaign's day schedules ordered by day number.
	GetPlan(ctx context.Context, campaignID string) ([]domain.DaySchedule, error)

	// GetDayByDate returns the campaign's day schedule for a calendar date
	// (YYYY-MM-DD). Returns ErrNotFound when the plan has no such day.
	GetDayByDate(ctx context.Context, campaignID, date string) (*domain.DaySchedule, error)

	// UpdateDayStatus transitions one day conditionally on its current
	// status. Returns ErrInvalidTransition when the row has moved on.
	UpdateDayStatus(ctx context.Context, dayID string, from, to domain.DayStatus) error

	// AdjustDayVolume updates a day's planned volume. The write only
	// applies while the day is pending or in_progress and the new volume
	// is not below the actual sent count; otherwise ErrInvalidTransition.
	AdjustDayVolume(ctx context.Context, dayID string, volume int) error

	// GetList returns a recipient list's verification counts.
	GetList(ctx context.Context, listID string) (*domain.EmailList, error)
}

// VolumePublisher announces the authorized volume for a day so the dispatch
// service can consume it. The engine never calls the dispatch service
// directly.
type VolumePublisher interface {
	PublishDayVolume(ctx context.Context, campaignID string, day *domain.DaySchedule) error
}

// NopPublisher discards volume announcements. Used when no dispatch
// integration is wired (tests, dry runs).
type NopPublisher struct{}

// PublishDayVolume implements VolumePublisher.
func (NopPublisher) PublishDayVolume(context.Context, string, *domain.DaySchedule) error {
	return nil
}
