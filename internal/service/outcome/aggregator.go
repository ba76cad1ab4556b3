package outcome

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/logger"
)

// Sentinel errors for outcome application.
var (
	// ErrDuplicateOutcome means the (message id, status) pair was already
	// applied. Callers treat it as success; it is logged, never surfaced
	// to operators.
	ErrDuplicateOutcome = errors.New("duplicate outcome")

	ErrNotFound = errors.New("campaign not found")
)

// Repository is the data access contract for counter mutation. Counter
// increments must be atomic relative to concurrent increments for the same
// row.
type Repository interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// IncrementCampaignCounter bumps the campaign counter matching the
	// outcome status by one. The sent counter is capped at the campaign's
	// total recipient count; the cap tripping is reported by the returned
	// flag, not an error.
	IncrementCampaignCounter(ctx context.Context, campaignID string, status domain.OutcomeStatus) (capped bool, err error)

	// GetDayByDate returns the campaign's day for a calendar date, or
	// ErrNotFound.
	GetDayByDate(ctx context.Context, campaignID, date string) (*domain.DaySchedule, error)

	// GetInProgressDay returns the campaign's single in_progress day, or
	// ErrNotFound when no day is active.
	GetInProgressDay(ctx context.Context, campaignID string) (*domain.DaySchedule, error)

	// IncrementDayCounter bumps the day counter matching the outcome
	// status by one.
	IncrementDayCounter(ctx context.Context, dayID string, status domain.OutcomeStatus) error

	// IncrementDomainCounter bumps the domain-level rolling totals used by
	// the reputation scorer.
	IncrementDomainCounter(ctx context.Context, domainID string, status domain.OutcomeStatus) error
}

// Aggregator applies message outcomes to the current plan and counters.
// It is safe for concurrent use across campaigns; mutations for a single
// campaign are serialized by the caller's campaign lock.
type Aggregator struct {
	repo Repository
	idem IdempotencyStore

	applied    int64
	duplicates int64
	orphaned   int64
	anomalies  int64
	errorCount int64
}

// Stats are running totals for observability; read via Snapshot.
type Stats struct {
	Applied    int64 `json:"applied"`
	Duplicates int64 `json:"duplicates"`
	Orphaned   int64 `json:"orphaned"`
	Anomalies  int64 `json:"anomalies"`
	Errors     int64 `json:"errors"`
}

// NewAggregator creates an outcome aggregator. A nil idem store falls back
// to an in-process store.
func NewAggregator(repo Repository, idem IdempotencyStore) *Aggregator {
	if idem == nil {
		idem = NewMemoryIdempotencyStore(0)
	}
	return &Aggregator{repo: repo, idem: idem}
}

// Apply folds one outcome into the owning campaign, its matching day, and
// the domain totals. Replays return ErrDuplicateOutcome without touching
// any counter.
//
// Day matching: the day whose scheduled date equals the outcome date wins;
// a date with no day falls back to the campaign's in_progress day (clock
// skew between dispatch and the feed); no match at all attributes the
// outcome to campaign totals only. Skipped days never receive outcomes.
func (a *Aggregator) Apply(ctx context.Context, o domain.MessageOutcome) error {
	if err := o.Validate(); err != nil {
		atomic.AddInt64(&a.errorCount, 1)
		return err
	}

	first, err := a.idem.FirstSeen(ctx, o.IdempotencyKey())
	if err != nil {
		atomic.AddInt64(&a.errorCount, 1)
		return err
	}
	if !first {
		atomic.AddInt64(&a.duplicates, 1)
		logger.Debug("duplicate outcome ignored",
			"message_id", o.MessageID, "status", string(o.Status))
		return ErrDuplicateOutcome
	}

	c, err := a.repo.GetCampaign(ctx, o.CampaignID)
	if err != nil {
		return a.fail(ctx, o, err)
	}

	// Queued and failed are dispatch-internal; they carry no counter.
	if o.Status == domain.OutcomeQueued || o.Status == domain.OutcomeFailed {
		atomic.AddInt64(&a.applied, 1)
		return nil
	}

	capped, err := a.repo.IncrementCampaignCounter(ctx, o.CampaignID, o.Status)
	if err != nil {
		return a.fail(ctx, o, err)
	}
	if capped {
		atomic.AddInt64(&a.anomalies, 1)
		logger.Warn("sent count reached total recipients, outcome counted at cap",
			"campaign_id", o.CampaignID, "message_id", o.MessageID)
	}

	if err := a.repo.IncrementDomainCounter(ctx, c.DomainID, o.Status); err != nil {
		// Domain totals drive scoring, not plan integrity. Log and move on.
		logger.Error("domain counter increment failed",
			"domain_id", c.DomainID, "error", err.Error())
	}

	day := a.matchDay(ctx, o)
	if day == nil {
		atomic.AddInt64(&a.orphaned, 1)
		logger.Warn("outcome outside plan, campaign totals only",
			"campaign_id", o.CampaignID, "message_id", o.MessageID,
			"date", domain.DateString(o.OccurredAt))
		atomic.AddInt64(&a.applied, 1)
		return nil
	}
	if day.Status == domain.DaySkipped {
		atomic.AddInt64(&a.orphaned, 1)
		logger.Warn("outcome for skipped day, campaign totals only",
			"campaign_id", o.CampaignID, "day_number", day.DayNumber)
		atomic.AddInt64(&a.applied, 1)
		return nil
	}

	if err := a.repo.IncrementDayCounter(ctx, day.ID, o.Status); err != nil {
		return a.fail(ctx, o, err)
	}

	if o.Status == domain.OutcomeSent && day.ActualSent+1 > day.PlannedVolume {
		atomic.AddInt64(&a.anomalies, 1)
		logger.Warn("day sends exceed planned volume",
			"campaign_id", o.CampaignID, "day_number", day.DayNumber,
			"planned", day.PlannedVolume, "actual", day.ActualSent+1)
	}

	atomic.AddInt64(&a.applied, 1)
	return nil
}

// fail records a repository failure and gives the dedup key back. The
// outcome was not fully counted, so the key must not survive the failure
// or the redelivery would be rejected as a duplicate.
func (a *Aggregator) fail(ctx context.Context, o domain.MessageOutcome, err error) error {
	atomic.AddInt64(&a.errorCount, 1)
	if relErr := a.idem.Release(ctx, o.IdempotencyKey()); relErr != nil {
		logger.Error("idempotency key release failed",
			"message_id", o.MessageID, "status", string(o.Status), "error", relErr.Error())
	}
	return err
}

func (a *Aggregator) matchDay(ctx context.Context, o domain.MessageOutcome) *domain.DaySchedule {
	day, err := a.repo.GetDayByDate(ctx, o.CampaignID, domain.DateString(o.OccurredAt))
	if err == nil {
		return day
	}
	day, err = a.repo.GetInProgressDay(ctx, o.CampaignID)
	if err == nil {
		return day
	}
	return nil
}

// BatchResult summarizes one batch application.
type BatchResult struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// ApplyBatch applies a batch of outcomes, continuing past duplicates and
// individual failures. The caller already holds the campaign lock when the
// batch belongs to a single campaign.
func (a *Aggregator) ApplyBatch(ctx context.Context, outcomes []domain.MessageOutcome) BatchResult {
	var res BatchResult
	for _, o := range outcomes {
		switch err := a.Apply(ctx, o); {
		case err == nil:
			res.Applied++
		case errors.Is(err, ErrDuplicateOutcome):
			res.Duplicates++
		default:
			res.Failed++
			log.Printf("[outcome.Aggregator] apply %s/%s failed: %v", o.MessageID, o.Status, err)
		}
	}
	return res
}

// Snapshot returns a copy of the running stats.
func (a *Aggregator) Snapshot() Stats {
	return Stats{
		Applied:    atomic.LoadInt64(&a.applied),
		Duplicates: atomic.LoadInt64(&a.duplicates),
		Orphaned:   atomic.LoadInt64(&a.orphaned),
		Anomalies:  atomic.LoadInt64(&a.anomalies),
		Errors:     atomic.LoadInt64(&a.errorCount),
	}
}
