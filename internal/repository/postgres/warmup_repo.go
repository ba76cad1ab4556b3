package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/schedule"
	"github.com/clickmail/warmup-engine/internal/service/warmup"
)

// WarmupRepo implements warmup.Repository against PostgreSQL. Conditional
// status updates carry the expected current status in the WHERE clause, so
// a row that moved on affects zero rows and the caller sees
// ErrInvalidTransition instead of a lost update.
type WarmupRepo struct{ db *sql.DB }

// NewWarmupRepo creates a Postgres-backed warmup repository.
func NewWarmupRepo(db *sql.DB) *WarmupRepo { return &WarmupRepo{db: db} }

const campaignColumns = `
	id, name, domain_id, list_id, status, use_warmup,
	warmup_start_volume, warmup_increment_percent, warmup_max_daily,
	paused_from, total_recipients, total_sent, total_delivered,
	total_opened, total_clicked, total_bounced, total_complained,
	created_at, updated_at`

func scanCampaign(row *sql.Row) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var listID sql.NullString
	var pausedFrom sql.NullString
	err := row.Scan(
		&c.ID, &c.Name, &c.DomainID, &listID, &c.Status, &c.UseWarmup,
		&c.Warmup.StartVolume, &c.Warmup.IncrementPercent, &c.Warmup.MaxDaily,
		&pausedFrom, &c.TotalRecipients, &c.TotalSent, &c.TotalDelivered,
		&c.TotalOpened, &c.TotalClicked, &c.TotalBounced, &c.TotalComplained,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, warmup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	if listID.Valid {
		c.ListID = &listID.String
	}
	if pausedFrom.Valid {
		s := domain.CampaignStatus(pausedFrom.String)
		c.PausedFrom = &s
	}
	return c, nil
}

func (r *WarmupRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM email_campaigns WHERE id = $1`, id))
}

// ListActiveCampaigns returns campaigns in warming_up or sending, the set
// the day ticker walks every tick.
func (r *WarmupRepo) ListActiveCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, domain_id, status, use_warmup, total_recipients,
		       total_sent, total_bounced, total_complained
		FROM email_campaigns
		WHERE status IN ('warming_up', 'sending')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(
			&c.ID, &c.Name, &c.DomainID, &c.Status, &c.UseWarmup,
			&c.TotalRecipients, &c.TotalSent, &c.TotalBounced, &c.TotalComplained,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *WarmupRepo) UpdateCampaignStatus(ctx context.Context, id string, from, to domain.CampaignStatus, pausedFrom *domain.CampaignStatus) error {
	var pf sql.NullString
	if pausedFrom != nil {
		pf = sql.NullString{String: string(*pausedFrom), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_campaigns
		SET status = $1, paused_from = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, pf, id, from)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// The row either moved on or never existed.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM email_campaigns WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check campaign: %w", err)
		}
		if !exists {
			return warmup.ErrNotFound
		}
		return warmup.ErrInvalidTransition
	}
	return nil
}

func (r *WarmupRepo) HasPlan(ctx context.Context, campaignID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM warmup_schedule WHERE campaign_id = $1)`,
		campaignID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check plan: %w", err)
	}
	return exists, nil
}

func (r *WarmupRepo) CreatePlan(ctx context.Context, campaignID string, plan []schedule.DayPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan tx: %w", err)
	}
	defer tx.Rollback()

	for _, day := range plan {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO warmup_schedule
				(id, campaign_id, day_number, scheduled_date, planned_volume,
				 status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', NOW(), NOW())
		`, uuid.New().String(), campaignID, day.DayNumber, day.ScheduledDate, day.PlannedVolume)
		if err != nil {
			if isUniqueViolation(err) {
				return warmup.ErrPlanExists
			}
			return fmt.Errorf("insert plan day %d: %w", day.DayNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	return nil
}

const dayColumns = `
	id, campaign_id, day_number, scheduled_date, planned_volume, status,
	actual_sent, delivered, opened, clicked, bounced, complained,
	created_at, updated_at`

func (r *WarmupRepo) GetPlan(ctx context.Context, campaignID string) ([]domain.DaySchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dayColumns+` FROM warmup_schedule WHERE campaign_id = $1 ORDER BY day_number`,
		campaignID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	defer rows.Close()

	var out []domain.DaySchedule
	for rows.Next() {
		var d domain.DaySchedule
		if err := rows.Scan(
			&d.ID, &d.CampaignID, &d.DayNumber, &d.ScheduledDate, &d.PlannedVolume, &d.Status,
			&d.ActualSent, &d.Delivered, &d.Opened, &d.Clicked, &d.Bounced, &d.Complained,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *WarmupRepo) GetDayByDate(ctx context.Context, campaignID, date string) (*domain.DaySchedule, error) {
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
		return nil, warmup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get day by date: %w", err)
	}
	return d, nil
}

func (r *WarmupRepo) UpdateDayStatus(ctx context.Context, dayID string, from, to domain.DayStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE warmup_schedule SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, dayID, from)
	if err != nil {
		return fmt.Errorf("update day status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return warmup.ErrInvalidTransition
	}
	return nil
}

func (r *WarmupRepo) AdjustDayVolume(ctx context.Context, dayID string, volume int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE warmup_schedule SET planned_volume = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'in_progress') AND actual_sent <= $1
	`, volume, dayID)
	if err != nil {
		return fmt.Errorf("adjust day volume: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return warmup.ErrInvalidTransition
	}
	return nil
}

func (r *WarmupRepo) GetList(ctx context.Context, listID string) (*domain.EmailList, error) {
	l := &domain.EmailList{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, total_contacts, valid_contacts, invalid_contacts,
		       risky_contacts, verification_status, created_at
		FROM email_lists WHERE id = $1
	`, listID).Scan(
		&l.ID, &l.Name, &l.TotalContacts, &l.ValidContacts, &l.InvalidContacts,
		&l.RiskyContacts, &l.VerificationStatus, &l.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, warmup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

// MarkListVerificationPending flags a list for the external verification
// workflow and returns ErrNotFound for unknown lists.
func (r *WarmupRepo) MarkListVerificationPending(ctx context.Context, listID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE email_lists SET verification_status = 'pending' WHERE id = $1`, listID)
	if err != nil {
		return fmt.Errorf("mark list pending: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return warmup.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
