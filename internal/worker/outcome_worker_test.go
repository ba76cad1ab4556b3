package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/repository/postgres"
	"github.com/clickmail/warmup-engine/internal/service/outcome"
)

type fakeSource struct {
	staged    []postgres.StagedOutcome
	processed []string
}

func (f *fakeSource) ClaimUnprocessed(_ context.Context, limit int) ([]postgres.StagedOutcome, error) {
	if len(f.staged) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.staged) {
		n = len(f.staged)
	}
	batch := f.staged[:n]
	f.staged = f.staged[n:]
	return batch, nil
}

func (f *fakeSource) MarkProcessed(_ context.Context, ids []string) error {
	f.processed = append(f.processed, ids...)
	return nil
}

// stuckSource keeps its rows claimed but never marked, the way a real
// buffer behaves when the mark update keeps failing.
type stuckSource struct {
	rows   []postgres.StagedOutcome
	claims int
}

func (s *stuckSource) ClaimUnprocessed(_ context.Context, limit int) ([]postgres.StagedOutcome, error) {
	s.claims++
	if limit > len(s.rows) {
		limit = len(s.rows)
	}
	return s.rows[:limit], nil
}

func (s *stuckSource) MarkProcessed(_ context.Context, _ []string) error {
	return errors.New("update failed")
}

type fakeApplier struct {
	applied []domain.MessageOutcome
	result  outcome.BatchResult
}

func (f *fakeApplier) ApplyBatch(_ context.Context, outcomes []domain.MessageOutcome) outcome.BatchResult {
	f.applied = append(f.applied, outcomes...)
	if f.result == (outcome.BatchResult{}) {
		return outcome.BatchResult{Applied: len(outcomes)}
	}
	return f.result
}

type fakeRefresher struct {
	refreshed []string
}

func (f *fakeRefresher) Refresh(_ context.Context, domainID string) error {
	f.refreshed = append(f.refreshed, domainID)
	return nil
}

type fakeCampaigns struct{}

func (fakeCampaigns) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	return &domain.Campaign{ID: id, DomainID: "dom-" + id}, nil
}

func stagedOutcome(id, campaignID, msgID string) postgres.StagedOutcome {
	return postgres.StagedOutcome{
		ID: id,
		Outcome: domain.MessageOutcome{
			MessageID:  msgID,
			CampaignID: campaignID,
			Status:     domain.OutcomeDelivered,
			OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestDrainAppliesAndMarksProcessed(t *testing.T) {
	source := &fakeSource{staged: []postgres.StagedOutcome{
		stagedOutcome("s1", "camp-1", "m1"),
		stagedOutcome("s2", "camp-1", "m2"),
		stagedOutcome("s3", "camp-2", "m3"),
	}}
	applier := &fakeApplier{}
	refresher := &fakeRefresher{}

	w := NewOutcomeWorker(source, applier, refresher, fakeCampaigns{}, nil, nil, nil)
	w.Drain(context.Background())

	if len(applier.applied) != 3 {
		t.Fatalf("applied %d outcomes, want 3", len(applier.applied))
	}
	if len(source.processed) != 3 {
		t.Fatalf("marked %d processed, want 3", len(source.processed))
	}
	// One refresh per campaign in the batch.
	if len(refresher.refreshed) != 2 {
		t.Fatalf("refreshed %v, want two domains", refresher.refreshed)
	}
	if w.Stats().Applied != 3 {
		t.Errorf("stats applied = %d, want 3", w.Stats().Applied)
	}
}

func TestDrainLoopsUntilBufferEmpty(t *testing.T) {
	source := &fakeSource{}
	for i := 0; i < 5; i++ {
		source.staged = append(source.staged,
			stagedOutcome("s"+string(rune('0'+i)), "camp-1", "m"+string(rune('0'+i))))
	}
	applier := &fakeApplier{}

	w := NewOutcomeWorker(source, applier, nil, nil, nil, nil, nil)
	w.SetBatchSize(2)
	w.Drain(context.Background())

	if len(applier.applied) != 5 {
		t.Fatalf("applied %d outcomes, want all 5", len(applier.applied))
	}
	if len(source.staged) != 0 {
		t.Fatalf("%d outcomes left staged", len(source.staged))
	}
}

func TestDrainStopsWhenNothingConsumed(t *testing.T) {
	// A full batch whose rows cannot be marked would be reclaimed
	// immediately; Drain must yield to the next poll instead of spinning.
	source := &stuckSource{rows: []postgres.StagedOutcome{
		stagedOutcome("s1", "camp-1", "m1"),
		stagedOutcome("s2", "camp-1", "m2"),
	}}
	applier := &fakeApplier{}

	w := NewOutcomeWorker(source, applier, nil, nil, nil, nil, nil)
	w.SetBatchSize(2)
	w.Drain(context.Background())

	if source.claims != 1 {
		t.Fatalf("claimed %d times, want a single pass", source.claims)
	}
}

func TestDrainCountsBatchResult(t *testing.T) {
	source := &fakeSource{staged: []postgres.StagedOutcome{
		stagedOutcome("s1", "camp-1", "m1"),
		stagedOutcome("s2", "camp-1", "m1"), // duplicate message
		stagedOutcome("s3", "camp-1", "m2"),
	}}
	applier := &fakeApplier{result: outcome.BatchResult{Applied: 2, Duplicates: 1}}

	w := NewOutcomeWorker(source, applier, nil, nil, nil, nil, nil)
	w.Drain(context.Background())

	stats := w.Stats()
	if stats.Applied != 2 || stats.Duplicates != 1 {
		t.Fatalf("stats = %+v, want 2 applied / 1 duplicate", stats)
	}
	// Duplicates are marked processed too; they must not wedge the buffer.
	if len(source.processed) != 3 {
		t.Fatalf("marked %d processed, want 3", len(source.processed))
	}
}

func TestOutcomeWorkerStartStop(t *testing.T) {
	w := NewOutcomeWorker(&fakeSource{}, &fakeApplier{}, nil, nil, nil, nil, nil)
	w.SetPollInterval(time.Hour)

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("double start should error")
	}
	w.Stop()
}
