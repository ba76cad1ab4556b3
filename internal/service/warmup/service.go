package warmup

import (
	"context"
	"fmt"
	"log"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/clock"
	"github.com/clickmail/warmup-engine/internal/schedule"
)

// Service implements the warmup controller. It owns every campaign status
// change and every operator action on a scheduled day. All public methods
// are safe for concurrent use if the underlying repository is
// concurrency-safe; callers that mutate the same campaign from multiple
// processes serialize through the per-campaign lock (see worker package).
type Service struct {
	repo      Repository
	publisher VolumePublisher
	clk       clock.Clock
}

// NewService creates a warmup service backed by the given repository.
// A nil publisher disables volume announcements.
func NewService(repo Repository, publisher VolumePublisher, clk clock.Clock) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, publisher: publisher, clk: clk}
}

// Start moves a draft or scheduled campaign into active sending. For
// warmup-enabled campaigns this generates the ramp plan first (exactly
// once) and lands on warming_up; campaigns without warmup go straight to
// sending.
func (s *Service) Start(ctx context.Context, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	next, ok := domain.NextStatus(c.Status, domain.EventStart)
	if !ok {
		return ErrInvalidTransition
	}
	if !c.UseWarmup {
		next = domain.CampaignSending
	}

	if c.UseWarmup {
		hasPlan, err := s.repo.HasPlan(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("check existing plan: %w", err)
		}
		if !hasPlan {
			if err := s.generatePlan(ctx, c); err != nil {
				return err
			}
		}
	}

	if err := s.repo.UpdateCampaignStatus(ctx, campaignID, c.Status, next, nil); err != nil {
		return err
	}

	// Announce day 1's authorized volume so dispatch can begin.
	if c.UseWarmup {
		today := domain.DateString(s.clk.Now())
		if day, err := s.repo.GetDayByDate(ctx, campaignID, today); err == nil {
			if pubErr := s.publisher.PublishDayVolume(ctx, campaignID, day); pubErr != nil {
				log.Printf("[warmup.Service] publish day volume failed for %s: %v", campaignID, pubErr)
			}
		}
	}

	log.Printf("[warmup.Service] Campaign %s started (warmup=%v)", campaignID, c.UseWarmup)
	return nil
}

func (s *Service) generatePlan(ctx context.Context, c *domain.Campaign) error {
	total := c.TotalRecipients
	// A verified list is the authoritative recipient count; the campaign
	// column can lag behind re-verification.
	if c.ListID != nil {
		if list, err := s.repo.GetList(ctx, *c.ListID); err == nil && list.ValidContacts > 0 {
			total = list.ValidContacts
		}
	}

	plan, err := schedule.Generate(schedule.Params{
		StartVolume:      c.Warmup.StartVolume,
		IncrementPercent: c.Warmup.IncrementPercent,
		MaxDaily:         c.Warmup.MaxDaily,
		TotalRecipients:  total,
	}, s.clk.Now())
	if err != nil {
		if err == schedule.ErrInvalidParameters {
			return ErrInvalidParameters
		}
		return err
	}

	if err := s.repo.CreatePlan(ctx, c.ID, plan); err != nil {
		if err == ErrPlanExists {
			// Lost the generation race; the winner's plan stands.
			return nil
		}
		return fmt.Errorf("persist plan: %w", err)
	}

	log.Printf("[warmup.Service] Campaign %s: generated %d-day plan covering %d recipients",
		c.ID, len(plan), schedule.TotalPlanned(plan))
	return nil
}

// Pause freezes an actively sending campaign. Day schedules are left
// untouched; an in_progress day stays in_progress. The interrupted status
// is remembered so Resume can return there.
func (s *Service) Pause(ctx context.Context, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	next, ok := domain.NextStatus(c.Status, domain.EventPause)
	if !ok {
		return ErrInvalidTransition
	}

	prev := c.Status
	if err := s.repo.UpdateCampaignStatus(ctx, campaignID, c.Status, next, &prev); err != nil {
		return err
	}
	log.Printf("[warmup.Service] Campaign %s paused (was %s)", campaignID, prev)
	return nil
}

// Resume returns a paused campaign to the status the pause interrupted,
// falling back to warming_up for rows paused before the pre-pause status
// was recorded.
func (s *Service) Resume(ctx context.Context, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	next, ok := domain.NextStatus(c.Status, domain.EventResume)
	if !ok {
		return ErrInvalidTransition
	}
	if c.PausedFrom != nil && (*c.PausedFrom == domain.CampaignWarmingUp || *c.PausedFrom == domain.CampaignSending) {
		next = *c.PausedFrom
	}

	if err := s.repo.UpdateCampaignStatus(ctx, campaignID, c.Status, next, nil); err != nil {
		return err
	}
	log.Printf("[warmup.Service] Campaign %s resumed to %s", campaignID, next)
	return nil
}

// Cancel fails a campaign from any non-terminal status. The plan and all
// historical counters are retained for audit.
func (s *Service) Cancel(ctx context.Context, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	next, ok := domain.NextStatus(c.Status, domain.EventCancel)
	if !ok {
		return ErrInvalidTransition
	}

	if err := s.repo.UpdateCampaignStatus(ctx, campaignID, c.Status, next, nil); err != nil {
		return err
	}
	log.Printf("[warmup.Service] Campaign %s cancelled", campaignID)
	return nil
}

// Complete marks a campaign finished once its last day resolves. Called by
// the day ticker, not by operators.
func (s *Service) Complete(ctx context.Context, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	next, ok := domain.NextStatus(c.Status, domain.EventComplete)
	if !ok {
		return ErrInvalidTransition
	}
	return s.repo.UpdateCampaignStatus(ctx, campaignID, c.Status, next, nil)
}

// SkipToday skips the current day's sending. Requires the campaign to be
// actively sending; skip while paused is rejected. Once skipped the day is
// terminal and stray outcomes for it only reach campaign totals.
func (s *Service) SkipToday(ctx context.Context, campaignID string) error {
	day, err := s.activeToday(ctx, campaignID)
	if err != nil {
		return err
	}
	if domain.IsTerminalDay(day.Status) {
		return ErrInvalidTransition
	}
	if err := s.repo.UpdateDayStatus(ctx, day.ID, day.Status, domain.DaySkipped); err != nil {
		return err
	}
	log.Printf("[warmup.Service] Campaign %s: skipped day %d", campaignID, day.DayNumber)
	return nil
}

// AdjustToday changes the current day's planned volume. The new volume may
// not fall below what was already sent today. Like SkipToday, this requires
// an actively sending campaign.
func (s *Service) AdjustToday(ctx context.Context, campaignID string, newVolume int) error {
	if newVolume < 0 {
		return ErrInvalidParameters
	}
	day, err := s.activeToday(ctx, campaignID)
	if err != nil {
		return err
	}
	if domain.IsTerminalDay(day.Status) {
		return ErrInvalidTransition
	}
	if newVolume < day.ActualSent {
		return ErrInvalidParameters
	}
	if err := s.repo.AdjustDayVolume(ctx, day.ID, newVolume); err != nil {
		return err
	}
	log.Printf("[warmup.Service] Campaign %s: day %d volume %d → %d",
		campaignID, day.DayNumber, day.PlannedVolume, newVolume)

	day.PlannedVolume = newVolume
	if pubErr := s.publisher.PublishDayVolume(ctx, campaignID, day); pubErr != nil {
		log.Printf("[warmup.Service] publish adjusted volume failed for %s: %v", campaignID, pubErr)
	}
	return nil
}

// activeToday loads the campaign, checks it is actively sending, and
// returns today's day schedule.
func (s *Service) activeToday(ctx context.Context, campaignID string) (*domain.DaySchedule, error) {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.IsActiveSending() {
		return nil, ErrInvalidTransition
	}
	return s.repo.GetDayByDate(ctx, campaignID, domain.DateString(s.clk.Now()))
}

// PlanSnapshot is the pull-based view of one campaign's warmup progress.
type PlanSnapshot struct {
	Campaign     *domain.Campaign     `json:"campaign"`
	Days         []domain.DaySchedule `json:"days"`
	CurrentDay   int                  `json:"current_day"`
	TotalDays    int                  `json:"total_days"`
	TotalPlanned int                  `json:"total_planned"`
	TotalSent    int                  `json:"total_sent"`
	Today        *domain.DaySchedule  `json:"today,omitempty"`
}

// Snapshot assembles the current plan view for a campaign.
func (s *Service) Snapshot(ctx context.Context, campaignID string) (*PlanSnapshot, error) {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	days, err := s.repo.GetPlan(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	snap := &PlanSnapshot{
		Campaign:  c,
		Days:      days,
		TotalDays: len(days),
	}

	today := domain.DateString(s.clk.Now())
	completed := 0
	for i := range days {
		snap.TotalPlanned += days[i].PlannedVolume
		snap.TotalSent += days[i].ActualSent
		if days[i].Status == domain.DayCompleted {
			completed++
		}
		if days[i].ScheduledDate == today {
			snap.Today = &days[i]
			snap.CurrentDay = days[i].DayNumber
		}
	}
	if snap.CurrentDay == 0 {
		// Date outside the plan; report progress off completed days.
		snap.CurrentDay = completed + 1
		if snap.CurrentDay > len(days) {
			snap.CurrentDay = len(days)
		}
	}
	return snap, nil
}
