package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/distlock"
	"github.com/clickmail/warmup-engine/internal/repository/postgres"
	"github.com/clickmail/warmup-engine/internal/service/outcome"
)

const (
	// DefaultPollInterval is the fallback cadence when the LISTEN
	// channel is quiet or unavailable.
	DefaultPollInterval = 30 * time.Second

	// DefaultBatchSize bounds one drain pass over the staging table.
	DefaultBatchSize = 500

	drainLockTTL = 2 * time.Minute
)

// OutcomeSource is the staging buffer the worker drains.
type OutcomeSource interface {
	ClaimUnprocessed(ctx context.Context, limit int) ([]postgres.StagedOutcome, error)
	MarkProcessed(ctx context.Context, ids []string) error
}

// OutcomeApplier folds claimed outcomes into the counters.
type OutcomeApplier interface {
	ApplyBatch(ctx context.Context, outcomes []domain.MessageOutcome) outcome.BatchResult
}

// DomainRefresher recomputes a domain's persisted rates after a batch.
type DomainRefresher interface {
	Refresh(ctx context.Context, domainID string) error
}

// CampaignReader resolves the owning domain for a drained campaign.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
}

// OutcomeWorker drains the outcome staging buffer. It wakes on NOTIFY
// from the staging insert and falls back to polling, so a dropped
// notification only delays a batch, never loses it.
type OutcomeWorker struct {
	source    OutcomeSource
	applier   OutcomeApplier
	refresher DomainRefresher
	campaigns CampaignReader

	listener     *pq.Listener // optional
	redisClient  *redis.Client
	db           *sql.DB
	pollInterval time.Duration
	batchSize    int

	// Stats
	batches    int64
	applied    int64
	duplicates int64
	failed     int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewOutcomeWorker creates a staging drain worker. listener, refresher,
// redisClient, and db may be nil.
func NewOutcomeWorker(source OutcomeSource, applier OutcomeApplier, refresher DomainRefresher, campaigns CampaignReader, listener *pq.Listener, db *sql.DB, redisClient *redis.Client) *OutcomeWorker {
	return &OutcomeWorker{
		source:       source,
		applier:      applier,
		refresher:    refresher,
		campaigns:    campaigns,
		listener:     listener,
		db:           db,
		redisClient:  redisClient,
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
	}
}

// SetPollInterval overrides the fallback poll cadence. Call before Start.
func (w *OutcomeWorker) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

// SetBatchSize overrides the drain batch size. Call before Start.
func (w *OutcomeWorker) SetBatchSize(n int) {
	w.batchSize = n
}

// Start begins the drain loop.
func (w *OutcomeWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outcome worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[OutcomeWorker] Starting with poll interval: %v, batch size: %d", w.pollInterval, w.batchSize)

	w.wg.Add(1)
	go w.drainLoop()
	return nil
}

// Stop gracefully stops the worker.
func (w *OutcomeWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	log.Printf("[OutcomeWorker] Stopping...")
	w.cancel()
	w.wg.Wait()
	if w.listener != nil {
		w.listener.Close()
	}
	log.Printf("[OutcomeWorker] Stopped. Batches: %d, Applied: %d, Duplicates: %d, Failed: %d",
		atomic.LoadInt64(&w.batches), atomic.LoadInt64(&w.applied),
		atomic.LoadInt64(&w.duplicates), atomic.LoadInt64(&w.failed))
}

func (w *OutcomeWorker) drainLoop() {
	defer w.wg.Done()

	// Catch up anything staged while the worker was down.
	w.Drain(w.ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var notify chan *pq.Notification
	if w.listener != nil {
		notify = w.listener.Notify
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Drain(w.ctx)
		case <-notify:
			// A nil notification signals a reconnect; either way a
			// drain covers whatever arrived.
			w.Drain(w.ctx)
		}
	}
}

// Drain claims one batch of staged outcomes and applies it, grouped per
// campaign under the campaign lock. Repeats until the staging table has
// fewer rows than a full batch.
func (w *OutcomeWorker) Drain(ctx context.Context) {
	for {
		staged, err := w.source.ClaimUnprocessed(ctx, w.batchSize)
		if err != nil {
			log.Printf("[OutcomeWorker] Error claiming outcomes: %v", err)
			return
		}
		if len(staged) == 0 {
			return
		}
		atomic.AddInt64(&w.batches, 1)

		byCampaign := make(map[string][]postgres.StagedOutcome)
		for _, s := range staged {
			byCampaign[s.Outcome.CampaignID] = append(byCampaign[s.Outcome.CampaignID], s)
		}

		progressed := false
		for campaignID, group := range byCampaign {
			if w.applyGroup(ctx, campaignID, group) {
				progressed = true
			}
		}
		if !progressed {
			// Every group is lock-contended or unmarked; those rows would
			// be reclaimed immediately. Wait for the next poll.
			return
		}

		if len(staged) < w.batchSize {
			return
		}
	}
}

// applyGroup reports whether the group's staged rows were consumed. Rows
// left staged (lock contention, mark failure) return false so Drain does
// not reclaim them in a tight loop.
func (w *OutcomeWorker) applyGroup(ctx context.Context, campaignID string, group []postgres.StagedOutcome) bool {
	if w.redisClient != nil || w.db != nil {
		lock := distlock.ForCampaign(w.redisClient, w.db, campaignID, drainLockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil || !acquired {
			// Leave the rows staged; the next pass retries.
			if err != nil {
				log.Printf("[OutcomeWorker] Error acquiring lock for campaign %s: %v", campaignID, err)
			}
			return false
		}
		defer lock.Release(ctx)
	}

	outcomes := make([]domain.MessageOutcome, len(group))
	ids := make([]string, len(group))
	for i, s := range group {
		outcomes[i] = s.Outcome
		ids[i] = s.ID
	}

	res := w.applier.ApplyBatch(ctx, outcomes)
	atomic.AddInt64(&w.applied, int64(res.Applied))
	atomic.AddInt64(&w.duplicates, int64(res.Duplicates))
	atomic.AddInt64(&w.failed, int64(res.Failed))

	// Bad rows are marked too; they were logged by the aggregator and
	// must not wedge the buffer.
	if err := w.source.MarkProcessed(ctx, ids); err != nil {
		log.Printf("[OutcomeWorker] Error marking %d outcomes processed: %v", len(ids), err)
		return false
	}

	w.refreshDomain(ctx, campaignID)
	return true
}

func (w *OutcomeWorker) refreshDomain(ctx context.Context, campaignID string) {
	if w.refresher == nil || w.campaigns == nil {
		return
	}
	c, err := w.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		log.Printf("[OutcomeWorker] Error resolving campaign %s for refresh: %v", campaignID, err)
		return
	}
	if err := w.refresher.Refresh(ctx, c.DomainID); err != nil {
		log.Printf("[OutcomeWorker] Error refreshing domain %s: %v", c.DomainID, err)
	}
}

// WorkerStats is a snapshot of the outcome worker's counters.
type WorkerStats struct {
	Batches    int64 `json:"batches"`
	Applied    int64 `json:"applied"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// Stats returns the worker's counters.
func (w *OutcomeWorker) Stats() WorkerStats {
	return WorkerStats{
		Batches:    atomic.LoadInt64(&w.batches),
		Applied:    atomic.LoadInt64(&w.applied),
		Duplicates: atomic.LoadInt64(&w.duplicates),
		Failed:     atomic.LoadInt64(&w.failed),
	}
}
