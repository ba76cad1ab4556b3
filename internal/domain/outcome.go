package domain

import (
	"fmt"
	"time"
)

// OutcomeStatus enumerates the per-message delivery events the engine
// consumes from the dispatch service.
type OutcomeStatus string

const (
	OutcomeQueued     OutcomeStatus = "queued"
	OutcomeSent       OutcomeStatus = "sent"
	OutcomeDelivered  OutcomeStatus = "delivered"
	OutcomeOpened     OutcomeStatus = "opened"
	OutcomeClicked    OutcomeStatus = "clicked"
	OutcomeBounced    OutcomeStatus = "bounced"
	OutcomeComplained OutcomeStatus = "complained"
	OutcomeFailed     OutcomeStatus = "failed"
)

// ValidOutcomeStatus reports whether s is a recognized outcome status.
func ValidOutcomeStatus(s OutcomeStatus) bool {
	switch s {
	case OutcomeQueued, OutcomeSent, OutcomeDelivered, OutcomeOpened,
		OutcomeClicked, OutcomeBounced, OutcomeComplained, OutcomeFailed:
		return true
	}
	return false
}

// MessageOutcome is a single delivery event for one message. Outcomes are
// delivered at-least-once; (MessageID, Status) is the idempotency key.
type MessageOutcome struct {
	MessageID  string        `json:"message_id" db:"message_id"`
	CampaignID string        `json:"campaign_id" db:"campaign_id"`
	Status     OutcomeStatus `json:"status" db:"status"`
	OccurredAt time.Time     `json:"occurred_at" db:"event_at"`
}

// IdempotencyKey returns the dedup key for this outcome.
func (o MessageOutcome) IdempotencyKey() string {
	return fmt.Sprintf("outcome:%s:%s", o.MessageID, o.Status)
}

// Validate checks the outcome has the fields the aggregator needs.
func (o MessageOutcome) Validate() error {
	if o.MessageID == "" {
		return fmt.Errorf("message_id is required")
	}
	if o.CampaignID == "" {
		return fmt.Errorf("campaign_id is required")
	}
	if !ValidOutcomeStatus(o.Status) {
		return fmt.Errorf("unknown outcome status %q", o.Status)
	}
	return nil
}
