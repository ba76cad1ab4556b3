package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/clock"
	"github.com/clickmail/warmup-engine/internal/pkg/distlock"
	"github.com/clickmail/warmup-engine/internal/service/warmup"
)

const (
	// DefaultTickInterval drives the day lifecycle. Ticks are idempotent,
	// so running more often than once per date is safe.
	DefaultTickInterval = time.Hour

	// Auto-pause thresholds for the current day, in percent.
	AutoPauseBouncePct    = 5.0
	AutoPauseComplaintPct = 0.1

	tickLockTTL = 5 * time.Minute
)

// TickerRepository is the data surface the ticker walks each tick.
type TickerRepository interface {
	ListActiveCampaigns(ctx context.Context) ([]domain.Campaign, error)
	GetPlan(ctx context.Context, campaignID string) ([]domain.DaySchedule, error)
	UpdateDayStatus(ctx context.Context, dayID string, from, to domain.DayStatus) error
}

// CampaignControl is the slice of the warmup service the ticker drives.
type CampaignControl interface {
	Pause(ctx context.Context, campaignID string) error
	Complete(ctx context.Context, campaignID string) error
}

// DayScorer folds a completed day into its domain's reputation.
type DayScorer interface {
	RecordDay(ctx context.Context, domainID string, day *domain.DaySchedule) (int, error)
}

// DayTicker advances the day lifecycle for every active campaign: it
// finishes days whose date has passed or whose volume is fully sent, skips
// stale pending days, opens today's day, pauses campaigns that breach the
// health thresholds, and completes campaigns whose last day resolved.
type DayTicker struct {
	repo      TickerRepository
	control   CampaignControl
	scorer    DayScorer
	publisher warmup.VolumePublisher
	clk       clock.Clock

	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	db          *sql.DB
	interval    time.Duration

	bouncePct    float64
	complaintPct float64

	// Stats
	ticks         int64
	daysOpened    int64
	daysCompleted int64
	autoPauses    int64
	campaignsDone int64
	errorCount    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewDayTicker creates a day lifecycle ticker. scorer and publisher may be
// nil; redisClient may be nil to use PG advisory locks via db.
func NewDayTicker(repo TickerRepository, control CampaignControl, scorer DayScorer, publisher warmup.VolumePublisher, db *sql.DB, redisClient *redis.Client, clk clock.Clock) *DayTicker {
	if publisher == nil {
		publisher = warmup.NopPublisher{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &DayTicker{
		repo:         repo,
		control:      control,
		scorer:       scorer,
		publisher:    publisher,
		clk:          clk,
		db:           db,
		redisClient:  redisClient,
		interval:     DefaultTickInterval,
		bouncePct:    AutoPauseBouncePct,
		complaintPct: AutoPauseComplaintPct,
	}
}

// SetInterval overrides the tick interval. Call before Start.
func (t *DayTicker) SetInterval(d time.Duration) {
	t.interval = d
}

// SetThresholds overrides the auto-pause thresholds. Call before Start.
func (t *DayTicker) SetThresholds(bouncePct, complaintPct float64) {
	t.bouncePct = bouncePct
	t.complaintPct = complaintPct
}

// Start begins the ticker loop.
func (t *DayTicker) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("day ticker already running")
	}
	t.running = true
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	log.Printf("[DayTicker] Starting with interval: %v", t.interval)

	t.wg.Add(1)
	go t.tickLoop()
	return nil
}

// Stop gracefully stops the ticker.
func (t *DayTicker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	log.Printf("[DayTicker] Stopping...")
	t.cancel()
	t.wg.Wait()
	log.Printf("[DayTicker] Stopped. Ticks: %d, Days opened: %d, Days completed: %d, Auto-pauses: %d",
		atomic.LoadInt64(&t.ticks), atomic.LoadInt64(&t.daysOpened),
		atomic.LoadInt64(&t.daysCompleted), atomic.LoadInt64(&t.autoPauses))
}

func (t *DayTicker) tickLoop() {
	defer t.wg.Done()

	// First pass immediately so a restart catches up without waiting a
	// full interval.
	t.Tick(t.ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.Tick(t.ctx)
		}
	}
}

// Tick runs one pass over all active campaigns. Safe to call concurrently
// with itself across processes: each campaign is advanced under its lock.
func (t *DayTicker) Tick(ctx context.Context) {
	atomic.AddInt64(&t.ticks, 1)

	campaigns, err := t.repo.ListActiveCampaigns(ctx)
	if err != nil {
		atomic.AddInt64(&t.errorCount, 1)
		log.Printf("[DayTicker] Error listing active campaigns: %v", err)
		return
	}

	for _, c := range campaigns {
		select {
		case <-ctx.Done():
			return
		default:
		}
		t.advanceCampaign(ctx, c)
	}
}

func (t *DayTicker) advanceCampaign(ctx context.Context, c domain.Campaign) {
	// Locking requires a backing store; without one (single-process
	// tests) the campaign mutex is the caller's problem.
	if t.redisClient != nil || t.db != nil {
		lock := distlock.ForCampaign(t.redisClient, t.db, c.ID, tickLockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			atomic.AddInt64(&t.errorCount, 1)
			log.Printf("[DayTicker] Error acquiring lock for campaign %s: %v", c.ID, err)
			return
		}
		if !acquired {
			// Another instance owns this campaign's tick.
			return
		}
		defer lock.Release(ctx)
	}

	plan, err := t.repo.GetPlan(ctx, c.ID)
	if err != nil {
		atomic.AddInt64(&t.errorCount, 1)
		log.Printf("[DayTicker] Error loading plan for campaign %s: %v", c.ID, err)
		return
	}
	if len(plan) == 0 {
		return
	}

	today := domain.DateString(t.clk.Now())

	for i := range plan {
		day := &plan[i]
		switch day.Status {
		case domain.DayInProgress:
			if t.breachesThresholds(day) {
				t.autoPause(ctx, c, day)
				return
			}
			if day.ScheduledDate < today || day.ActualSent >= day.PlannedVolume {
				if !t.completeDay(ctx, c, day) {
					// Opening today's day while this one is stuck in
					// progress would put two days in flight. Retry the
					// whole campaign next tick.
					return
				}
			}
		case domain.DayPending:
			if day.ScheduledDate < today {
				// The campaign was not active when this day came up.
				if err := t.repo.UpdateDayStatus(ctx, day.ID, domain.DayPending, domain.DaySkipped); err != nil && !errors.Is(err, warmup.ErrInvalidTransition) {
					atomic.AddInt64(&t.errorCount, 1)
					log.Printf("[DayTicker] Error skipping stale day %d of campaign %s: %v", day.DayNumber, c.ID, err)
				} else {
					day.Status = domain.DaySkipped
				}
			} else if day.ScheduledDate == today {
				t.openDay(ctx, c, day)
			}
		}
	}

	if planResolved(plan) {
		if err := t.control.Complete(ctx, c.ID); err != nil {
			if !errors.Is(err, warmup.ErrInvalidTransition) {
				atomic.AddInt64(&t.errorCount, 1)
				log.Printf("[DayTicker] Error completing campaign %s: %v", c.ID, err)
			}
			return
		}
		atomic.AddInt64(&t.campaignsDone, 1)
		log.Printf("[DayTicker] Campaign %s completed: all %d days resolved", c.ID, len(plan))
	}
}

func (t *DayTicker) breachesThresholds(day *domain.DaySchedule) bool {
	return day.BounceRate() > t.bouncePct || day.ComplaintRate() > t.complaintPct
}

func (t *DayTicker) autoPause(ctx context.Context, c domain.Campaign, day *domain.DaySchedule) {
	if err := t.control.Pause(ctx, c.ID); err != nil {
		if !errors.Is(err, warmup.ErrInvalidTransition) {
			atomic.AddInt64(&t.errorCount, 1)
			log.Printf("[DayTicker] Error auto-pausing campaign %s: %v", c.ID, err)
		}
		return
	}
	atomic.AddInt64(&t.autoPauses, 1)
	log.Printf("[DayTicker] Auto-paused campaign %s: day %d bounce %.2f%%, complaint %.2f%%",
		c.ID, day.DayNumber, day.BounceRate(), day.ComplaintRate())
}

// completeDay reports whether the day is resolved, either by this tick or
// a concurrent one. A false return means the day is still in progress.
func (t *DayTicker) completeDay(ctx context.Context, c domain.Campaign, day *domain.DaySchedule) bool {
	if err := t.repo.UpdateDayStatus(ctx, day.ID, domain.DayInProgress, domain.DayCompleted); err != nil {
		if errors.Is(err, warmup.ErrInvalidTransition) {
			// Another tick got here first.
			return true
		}
		atomic.AddInt64(&t.errorCount, 1)
		log.Printf("[DayTicker] Error completing day %d of campaign %s: %v", day.DayNumber, c.ID, err)
		return false
	}
	day.Status = domain.DayCompleted
	atomic.AddInt64(&t.daysCompleted, 1)

	if t.scorer != nil {
		if _, err := t.scorer.RecordDay(ctx, c.DomainID, day); err != nil {
			atomic.AddInt64(&t.errorCount, 1)
			log.Printf("[DayTicker] Error scoring day %d for domain %s: %v", day.DayNumber, c.DomainID, err)
		}
	}
	return true
}

func (t *DayTicker) openDay(ctx context.Context, c domain.Campaign, day *domain.DaySchedule) {
	if err := t.repo.UpdateDayStatus(ctx, day.ID, domain.DayPending, domain.DayInProgress); err != nil {
		if errors.Is(err, warmup.ErrInvalidTransition) {
			return
		}
		atomic.AddInt64(&t.errorCount, 1)
		log.Printf("[DayTicker] Error opening day %d of campaign %s: %v", day.DayNumber, c.ID, err)
		return
	}
	day.Status = domain.DayInProgress
	atomic.AddInt64(&t.daysOpened, 1)

	if err := t.publisher.PublishDayVolume(ctx, c.ID, day); err != nil {
		atomic.AddInt64(&t.errorCount, 1)
		log.Printf("[DayTicker] Error publishing volume for day %d of campaign %s: %v", day.DayNumber, c.ID, err)
		return
	}
	log.Printf("[DayTicker] Opened day %d of campaign %s: %d messages authorized",
		day.DayNumber, c.ID, day.PlannedVolume)
}

// planResolved reports whether every day reached a terminal status.
func planResolved(plan []domain.DaySchedule) bool {
	for _, d := range plan {
		if !domain.IsTerminalDay(d.Status) {
			return false
		}
	}
	return true
}

// TickerStats is a snapshot of the ticker's counters.
type TickerStats struct {
	Ticks         int64 `json:"ticks"`
	DaysOpened    int64 `json:"days_opened"`
	DaysCompleted int64 `json:"days_completed"`
	AutoPauses    int64 `json:"auto_pauses"`
	CampaignsDone int64 `json:"campaigns_done"`
	Errors        int64 `json:"errors"`
}

// Stats returns the ticker's counters.
func (t *DayTicker) Stats() TickerStats {
	return TickerStats{
		Ticks:         atomic.LoadInt64(&t.ticks),
		DaysOpened:    atomic.LoadInt64(&t.daysOpened),
		DaysCompleted: atomic.LoadInt64(&t.daysCompleted),
		AutoPauses:    atomic.LoadInt64(&t.autoPauses),
		CampaignsDone: atomic.LoadInt64(&t.campaignsDone),
		Errors:        atomic.LoadInt64(&t.errorCount),
	}
}
