package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/service/outcome"
	"github.com/clickmail/warmup-engine/internal/service/warmup"
)

// OutcomeRepo implements outcome.Repository plus the staging buffer the
// outcome worker drains. Inserts into the staging table NOTIFY the
// `warmup_outcomes` channel so the worker wakes without polling.
type OutcomeRepo struct{ db *sql.DB }

// NewOutcomeRepo creates a Postgres-backed outcome repository.
func NewOutcomeRepo(db *sql.DB) *OutcomeRepo { return &OutcomeRepo{db: db} }

// OutcomeChannel is the NOTIFY channel fired on staging inserts.
const OutcomeChannel = "warmup_outcomes"

// campaignCounterCols maps outcome statuses to campaign counter columns.
// Only values from this map are ever interpolated into SQL.
var campaignCounterCols = map[domain.OutcomeStatus]string{
	domain.OutcomeSent:       "total_sent",
	domain.OutcomeDelivered:  "total_delivered",
	domain.OutcomeOpened:     "total_opened",
	domain.OutcomeClicked:    "total_clicked",
	domain.OutcomeBounced:    "total_bounced",
	domain.OutcomeComplained: "total_complained",
}

var dayCounterCols = map[domain.OutcomeStatus]string{
	domain.OutcomeSent:       "actual_sent",
	domain.OutcomeDelivered:  "delivered",
	domain.OutcomeOpened:     "opened",
	domain.OutcomeClicked:    "clicked",
	domain.OutcomeBounced:    "bounced",
	domain.OutcomeComplained: "complained",
}

func (r *OutcomeRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM email_campaigns WHERE id = $1`, id))
	if errors.Is(err, warmup.ErrNotFound) {
		// Callers in the outcome package match on their own sentinel.
		return nil, outcome.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *OutcomeRepo) IncrementCampaignCounter(ctx context.Context, campaignID string, status domain.OutcomeStatus) (bool, error) {
	col, ok := campaignCounterCols[status]
	if !ok {
		return false, fmt.Errorf("no campaign counter for status %q", status)
	}

	guard := ""
	if status == domain.OutcomeSent {
		guard = " AND total_sent < total_recipients"
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE email_campaigns SET %s = %s + 1, updated_at = NOW()
		WHERE id = $1%s
	`, col, col, guard), campaignID)
	if err != nil {
		return false, fmt.Errorf("increment campaign %s: %w", col, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM email_campaigns WHERE id = $1)`, campaignID,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("check campaign: %w", err)
		}
		if !exists {
			return false, outcome.ErrNotFound
		}
		// Row exists but the sent guard blocked the write: at the cap.
		return true, nil
	}
	return false, nil
}

func (r *OutcomeRepo) GetDayByDate(ctx context.Context, campaignID, date string) (*domain.DaySchedule, error) {
	d := &domain.DaySchedule{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+dayColumns+` FROM warmup_schedule WHERE campaign_id = $1 AND scheduled_date = $2`,
		campaignID, date,
	).Scan(
		&d.ID, &d.CampaignID, &d.DayNumber, &d.ScheduledDate, &d.PlannedVolume, &d.Status,
		&d.ActualSent, &d.Delivered, &d.Opened, &d.Clicked, &d.Bounced, &d.Complained,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, outcome.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get day by date: %w", err)
	}
	return d, nil
}

func (r *OutcomeRepo) GetInProgressDay(ctx context.Context, campaignID string) (*domain.DaySchedule, error) {
	d := &domain.DaySchedule{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+dayColumns+` FROM warmup_schedule WHERE campaign_id = $1 AND status = 'in_progress'`,
		campaignID,
	).Scan(
		&d.ID, &d.CampaignID, &d.DayNumber, &d.ScheduledDate, &d.PlannedVolume, &d.Status,
		&d.ActualSent, &d.Delivered, &d.Opened, &d.Clicked, &d.Bounced, &d.Complained,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, outcome.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get in_progress day: %w", err)
	}
	return d, nil
}

func (r *OutcomeRepo) IncrementDayCounter(ctx context.Context, dayID string, status domain.OutcomeStatus) error {
	col, ok := dayCounterCols[status]
	if !ok {
		return fmt.Errorf("no day counter for status %q", status)
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE warmup_schedule SET %s = %s + 1, updated_at = NOW() WHERE id = $1
	`, col, col), dayID)
	if err != nil {
		return fmt.Errorf("increment day %s: %w", col, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return outcome.ErrNotFound
	}
	return nil
}

func (r *OutcomeRepo) IncrementDomainCounter(ctx context.Context, domainID string, status domain.OutcomeStatus) error {
	var col string
	switch status {
	case domain.OutcomeSent:
		col = "total_sent"
	case domain.OutcomeBounced:
		col = "total_bounced"
	case domain.OutcomeComplained:
		col = "total_complained"
	default:
		// Domain totals only track the signals that drive the score.
		return nil
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE email_domains SET %s = %s + 1 WHERE id = $1`, col, col), domainID)
	if err != nil {
		return fmt.Errorf("increment domain %s: %w", col, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return outcome.ErrNotFound
	}
	return nil
}

// StagedOutcome is one row of the at-least-once ingress buffer.
type StagedOutcome struct {
	ID      string
	Outcome domain.MessageOutcome
}

// StageOutcome buffers an incoming outcome and notifies the worker. The
// returned id identifies the staging row, not the message.
func (r *OutcomeRepo) StageOutcome(ctx context.Context, o domain.MessageOutcome) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		WITH ins AS (
			INSERT INTO warmup_outcome_events
				(id, message_id, campaign_id, status, event_at, processed, received_at)
			VALUES ($1, $2, $3, $4, $5, false, NOW())
			RETURNING id
		)
		SELECT pg_notify($6, id::text) FROM ins
	`, id, o.MessageID, o.CampaignID, o.Status, o.OccurredAt, OutcomeChannel)
	if err != nil {
		return "", fmt.Errorf("stage outcome: %w", err)
	}
	return id, nil
}

// ClaimUnprocessed returns up to limit unprocessed staging rows, oldest
// first. Overlapping claims are harmless: application downstream is
// idempotent per (message_id, status).
func (r *OutcomeRepo) ClaimUnprocessed(ctx context.Context, limit int) ([]StagedOutcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, campaign_id, status, event_at
		FROM warmup_outcome_events
		WHERE processed = false
		ORDER BY received_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outcomes: %w", err)
	}
	defer rows.Close()

	var out []StagedOutcome
	for rows.Next() {
		var s StagedOutcome
		var at time.Time
		if err := rows.Scan(&s.ID, &s.Outcome.MessageID, &s.Outcome.CampaignID,
			&s.Outcome.Status, &at); err != nil {
			return nil, fmt.Errorf("scan staged outcome: %w", err)
		}
		s.Outcome.OccurredAt = at
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkProcessed flags staging rows as drained. Rows stay for audit; a
// retention job prunes them out of band.
func (r *OutcomeRepo) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE warmup_outcome_events SET processed = true WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
