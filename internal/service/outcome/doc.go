// Package outcome folds per-message delivery events into day, campaign,
// and domain counters.
//
// Outcomes arrive at-least-once from the dispatch feed; application is
// idempotent on (message id, status). One bad outcome never blocks the
// rest of a batch.
package outcome
