package reputation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/clock"
	"github.com/clickmail/warmup-engine/internal/service/reputation"
)

type memRepo struct {
	domains map[string]*domain.EmailDomain
}

func newMemRepo(domains ...*domain.EmailDomain) *memRepo {
	r := &memRepo{domains: make(map[string]*domain.EmailDomain)}
	for _, d := range domains {
		r.domains[d.ID] = d
	}
	return r
}

func (r *memRepo) GetDomain(_ context.Context, id string) (*domain.EmailDomain, error) {
	d, ok := r.domains[id]
	if !ok {
		return nil, reputation.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) UpdateDomainReputation(_ context.Context, id string, score int, tier domain.HealthTier, bounceRate, complaintRate float64, checkedAt time.Time) error {
	d, ok := r.domains[id]
	if !ok {
		return reputation.ErrNotFound
	}
	d.ReputationScore = score
	d.HealthStatus = tier
	d.BounceRate = bounceRate
	d.ComplaintRate = complaintRate
	d.LastCheckedAt = &checkedAt
	return nil
}

func dayWith(sent, bounced, complained int) *domain.DaySchedule {
	return &domain.DaySchedule{
		ID:            "day-1",
		DayNumber:     1,
		ActualSent:    sent,
		Bounced:       bounced,
		Complained:    complained,
		Status:        domain.DayCompleted,
		ScheduledDate: "2026-03-01",
	}
}

func TestDayDelta(t *testing.T) {
	cases := []struct {
		name string
		day  *domain.DaySchedule
		want int
	}{
		{"clean day", dayWith(1000, 10, 0), 1},            // 1% bounce
		{"warning bounce", dayWith(1000, 30, 0), -1},      // 3%
		{"danger bounce", dayWith(1000, 60, 0), -3},       // 6%
		{"boundary two percent", dayWith(1000, 20, 0), 1}, // exactly 2% is still clean
		{"boundary five percent", dayWith(1000, 50, 0), -1},
		{"complaints stack", dayWith(1000, 60, 2), -8}, // 6% bounce + 0.2% complaint
		{"complaints alone", dayWith(1000, 0, 2), -4},  // +1 clean, -5 complaint
		{"no sends", dayWith(0, 0, 0), 1},
	}
	for _, tc := range cases {
		if got := reputation.DayDelta(tc.day); got != tc.want {
			t.Errorf("%s: delta = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestRecordDayHighBounce(t *testing.T) {
	// A 6% bounce day against a score of 90 lands at 87, still healthy.
	repo := newMemRepo(&domain.EmailDomain{
		ID: "dom-1", Domain: "example.com", ReputationScore: 90,
		TotalSent: 1000, TotalBounced: 60,
	})
	svc := reputation.NewService(repo, &clock.Fixed{T: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)})

	score, err := svc.RecordDay(context.Background(), "dom-1", dayWith(1000, 60, 0))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if score != 87 {
		t.Fatalf("score = %d, want 87", score)
	}
	d := repo.domains["dom-1"]
	if d.HealthStatus != domain.TierHealthy {
		t.Fatalf("tier = %s, want healthy", d.HealthStatus)
	}
	if d.BounceRate != 6.0 {
		t.Fatalf("bounce rate = %.2f, want 6.00", d.BounceRate)
	}
	if d.LastCheckedAt == nil || !d.LastCheckedAt.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("last_checked_at should be the injected clock time")
	}
}

func TestScoreClamped(t *testing.T) {
	repo := newMemRepo(&domain.EmailDomain{ID: "dom-1", ReputationScore: 4})
	svc := reputation.NewService(repo, nil)

	bad := dayWith(1000, 100, 5) // -3 bounce -5 complaint
	for i := 0; i < 3; i++ {
		score, err := svc.RecordDay(context.Background(), "dom-1", bad)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if score < 0 {
			t.Fatalf("score went negative: %d", score)
		}
	}
	if repo.domains["dom-1"].ReputationScore != 0 {
		t.Fatalf("score = %d, want clamped to 0", repo.domains["dom-1"].ReputationScore)
	}

	repo.domains["dom-1"].ReputationScore = 100
	score, err := svc.RecordDay(context.Background(), "dom-1", dayWith(1000, 0, 0))
	if err != nil {
		t.Fatalf("record clean: %v", err)
	}
	if score != 100 {
		t.Fatalf("score = %d, want clamped to 100", score)
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := map[int]domain.HealthTier{
		100: domain.TierHealthy,
		70:  domain.TierHealthy,
		69:  domain.TierWarning,
		40:  domain.TierWarning,
		39:  domain.TierCritical,
		0:   domain.TierCritical,
	}
	for score, want := range cases {
		if got := domain.TierForScore(score); got != want {
			t.Errorf("score %d: tier = %s, want %s", score, got, want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	repo := newMemRepo(&domain.EmailDomain{
		ID: "dom-1", Domain: "example.com", ReputationScore: 85,
		SPFConfigured: true, DKIMConfigured: true, DMARCConfigured: true,
	})
	svc := reputation.NewService(repo, nil)

	snap, err := svc.Snapshot(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Score != 85 || snap.Tier != domain.TierHealthy {
		t.Fatalf("snapshot = score %d tier %s", snap.Score, snap.Tier)
	}
	if len(snap.Alerts) != 1 || snap.Alerts[0].Severity != domain.SeveritySuccess {
		t.Fatalf("expected single success alert, got %+v", snap.Alerts)
	}
}

func TestSnapshotNotFound(t *testing.T) {
	svc := reputation.NewService(newMemRepo(), nil)
	if _, err := svc.Snapshot(context.Background(), "nope"); !errors.Is(err, reputation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshRecomputesRates(t *testing.T) {
	repo := newMemRepo(&domain.EmailDomain{
		ID: "dom-1", ReputationScore: 75,
		TotalSent: 2000, TotalBounced: 50, TotalComplained: 4,
	})
	svc := reputation.NewService(repo, nil)

	if err := svc.Refresh(context.Background(), "dom-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	d := repo.domains["dom-1"]
	if d.BounceRate != 2.5 {
		t.Fatalf("bounce rate = %.2f, want 2.50", d.BounceRate)
	}
	if d.ComplaintRate != 0.2 {
		t.Fatalf("complaint rate = %.2f, want 0.20", d.ComplaintRate)
	}
	if d.ReputationScore != 75 {
		t.Fatal("refresh must not change the score")
	}
}
