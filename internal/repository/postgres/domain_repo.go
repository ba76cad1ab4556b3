package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/service/reputation"
)

// DomainRepo implements reputation.Repository and carries the DNS
// verification writes.
type DomainRepo struct{ db *sql.DB }

// NewDomainRepo creates a Postgres-backed domain repository.
func NewDomainRepo(db *sql.DB) *DomainRepo { return &DomainRepo{db: db} }

func (r *DomainRepo) GetDomain(ctx context.Context, id string) (*domain.EmailDomain, error) {
	d := &domain.EmailDomain{}
	var spfRecord, dkimSelector, dmarcPolicy sql.NullString
	var lastChecked sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, domain, reputation_score, health_status,
		       spf_configured, dkim_configured, dmarc_configured,
		       spf_record, dkim_selector, dmarc_policy,
		       bounce_rate, complaint_rate,
		       total_sent, total_bounced, total_complained,
		       last_checked_at, created_at, updated_at
		FROM email_domains WHERE id = $1
	`, id).Scan(
		&d.ID, &d.Domain, &d.ReputationScore, &d.HealthStatus,
		&d.SPFConfigured, &d.DKIMConfigured, &d.DMARCConfigured,
		&spfRecord, &dkimSelector, &dmarcPolicy,
		&d.BounceRate, &d.ComplaintRate,
		&d.TotalSent, &d.TotalBounced, &d.TotalComplained,
		&lastChecked, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, reputation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get domain: %w", err)
	}
	d.SPFRecord = spfRecord.String
	d.DKIMSelector = dkimSelector.String
	d.DMARCPolicy = dmarcPolicy.String
	if lastChecked.Valid {
		d.LastCheckedAt = &lastChecked.Time
	}
	return d, nil
}

func (r *DomainRepo) UpdateDomainReputation(ctx context.Context, id string, score int, tier domain.HealthTier, bounceRate, complaintRate float64, checkedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_domains
		SET reputation_score = $1, health_status = $2,
		    bounce_rate = $3, complaint_rate = $4,
		    last_checked_at = $5, updated_at = NOW()
		WHERE id = $6
	`, score, tier, bounceRate, complaintRate, checkedAt, id)
	if err != nil {
		return fmt.Errorf("update domain reputation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return reputation.ErrNotFound
	}
	return nil
}

// UpdateAuthFlags persists the result of a DNS verification pass.
func (r *DomainRepo) UpdateAuthFlags(ctx context.Context, id string, spf, dkim, dmarc bool, spfRecord, dmarcPolicy string, checkedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_domains
		SET spf_configured = $1, dkim_configured = $2, dmarc_configured = $3,
		    spf_record = $4, dmarc_policy = $5,
		    last_checked_at = $6, updated_at = NOW()
		WHERE id = $7
	`, spf, dkim, dmarc, spfRecord, dmarcPolicy, checkedAt, id)
	if err != nil {
		return fmt.Errorf("update auth flags: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return reputation.ErrNotFound
	}
	return nil
}
