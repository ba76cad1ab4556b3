package reputation

import (
	"context"
	"time"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/clock"
	"github.com/clickmail/warmup-engine/internal/pkg/logger"
)

// Score thresholds. Rates are percentages.
const (
	bounceWarnPct      = 2.0
	bounceDangerPct    = 5.0
	complaintDangerPct = 0.1

	// NewDomainScore is the starting score for a domain with no history.
	NewDomainScore = 100
)

// Repository is the persistence surface the scorer needs.
type Repository interface {
	GetDomain(ctx context.Context, id string) (*domain.EmailDomain, error)

	// UpdateDomainReputation writes the recomputed score, tier, rates,
	// and check timestamp in one statement.
	UpdateDomainReputation(ctx context.Context, id string, score int, tier domain.HealthTier, bounceRate, complaintRate float64, checkedAt time.Time) error
}

// Service applies per-day score deltas and serves reputation snapshots.
type Service struct {
	repo Repository
	clk  clock.Clock
}

func NewService(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clk: clk}
}

// DayDelta is the score adjustment earned by one completed observation day.
// Clean days build score slowly; bad days tear it down fast, and complaints
// compound on top of the bounce penalty.
func DayDelta(day *domain.DaySchedule) int {
	var delta int
	switch bounce := day.BounceRate(); {
	case bounce > bounceDangerPct:
		delta = -3
	case bounce > bounceWarnPct:
		delta = -1
	default:
		delta = 1
	}
	if day.ComplaintRate() > complaintDangerPct {
		delta -= 5
	}
	return delta
}

// ClampScore bounds a score to [0, 100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RecordDay folds one completed day into the domain's score and refreshes
// the persisted rates and tier. Call it exactly once per completed day.
// Returns the new score.
func (s *Service) RecordDay(ctx context.Context, domainID string, day *domain.DaySchedule) (int, error) {
	d, err := s.repo.GetDomain(ctx, domainID)
	if err != nil {
		return 0, err
	}

	delta := DayDelta(day)
	score := ClampScore(d.ReputationScore + delta)
	tier := domain.TierForScore(score)

	bounceRate, complaintRate := domainRates(d)
	now := s.clk.Now()
	if err := s.repo.UpdateDomainReputation(ctx, domainID, score, tier, bounceRate, complaintRate, now); err != nil {
		return 0, err
	}

	logger.Info("domain reputation updated",
		"domain_id", domainID,
		"day_number", day.DayNumber,
		"delta", delta,
		"score", score,
		"tier", string(tier))
	return score, nil
}

// Refresh recomputes and persists the domain's rates and tier from its
// lifetime counters without applying a day delta. Used after outcome
// batches land so the snapshot rates track the counters.
func (s *Service) Refresh(ctx context.Context, domainID string) error {
	d, err := s.repo.GetDomain(ctx, domainID)
	if err != nil {
		return err
	}
	bounceRate, complaintRate := domainRates(d)
	tier := domain.TierForScore(d.ReputationScore)
	return s.repo.UpdateDomainReputation(ctx, domainID, d.ReputationScore, tier, bounceRate, complaintRate, s.clk.Now())
}

// Snapshot is the on-demand reputation view for one domain.
type Snapshot struct {
	Domain *domain.EmailDomain `json:"domain"`
	Score  int                 `json:"score"`
	Tier   domain.HealthTier   `json:"tier"`
	Alerts []domain.Alert      `json:"alerts"`
}

// Snapshot returns the domain with its current tier and the evaluated
// alert list. Alerts are never persisted; this is a pure read.
func (s *Service) Snapshot(ctx context.Context, domainID string) (*Snapshot, error) {
	d, err := s.repo.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Domain: d,
		Score:  d.ReputationScore,
		Tier:   domain.TierForScore(d.ReputationScore),
		Alerts: Alerts(d),
	}, nil
}

func domainRates(d *domain.EmailDomain) (bounce, complaint float64) {
	if d.TotalSent == 0 {
		return 0, 0
	}
	bounce = float64(d.TotalBounced) / float64(d.TotalSent) * 100
	complaint = float64(d.TotalComplained) / float64(d.TotalSent) * 100
	return bounce, complaint
}
