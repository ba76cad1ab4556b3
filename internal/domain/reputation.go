package domain

import (
	"time"
)

// HealthTier buckets a domain's reputation score into an operational state.
type HealthTier string

const (
	TierHealthy  HealthTier = "healthy"
	TierWarning  HealthTier = "warning"
	TierCritical HealthTier = "critical"
)

// TierForScore maps a 0-100 reputation score to its health tier.
func TierForScore(score int) HealthTier {
	switch {
	case score >= 70:
		return TierHealthy
	case score >= 40:
		return TierWarning
	default:
		return TierCritical
	}
}

// AlertSeverity is the weight of a reputation alert.
type AlertSeverity string

const (
	SeverityDanger  AlertSeverity = "danger"
	SeverityWarning AlertSeverity = "warning"
	SeverityInfo    AlertSeverity = "info"
	SeveritySuccess AlertSeverity = "success"
)

// Alert is a human-readable finding about a domain's current health.
// Alerts are a pure view over domain state, recomputed on demand and
// never persisted.
type Alert struct {
	Severity    AlertSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
}

// EmailDomain is a sending identity plus its reputation projection.
// The score, tier, and rates are derived by the scorer; operators never
// edit them directly.
type EmailDomain struct {
	ID     string `json:"id" db:"id"`
	Domain string `json:"domain" db:"domain"`

	ReputationScore int        `json:"reputation_score" db:"reputation_score"`
	HealthStatus    HealthTier `json:"health_status" db:"health_status"`

	SPFConfigured   bool   `json:"spf_configured" db:"spf_configured"`
	DKIMConfigured  bool   `json:"dkim_configured" db:"dkim_configured"`
	DMARCConfigured bool   `json:"dmarc_configured" db:"dmarc_configured"`
	SPFRecord       string `json:"spf_record,omitempty" db:"spf_record"`
	DKIMSelector    string `json:"dkim_selector,omitempty" db:"dkim_selector"`
	DMARCPolicy     string `json:"dmarc_policy,omitempty" db:"dmarc_policy"`

	BounceRate    float64 `json:"bounce_rate" db:"bounce_rate"`
	ComplaintRate float64 `json:"complaint_rate" db:"complaint_rate"`

	TotalSent       int `json:"total_sent" db:"total_sent"`
	TotalBounced    int `json:"total_bounced" db:"total_bounced"`
	TotalComplained int `json:"total_complained" db:"total_complained"`

	LastCheckedAt *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// AuthComplete reports whether all three DNS authentication checks pass.
func (d *EmailDomain) AuthComplete() bool {
	return d.SPFConfigured && d.DKIMConfigured && d.DMARCConfigured
}

// EmailList holds the verification counts for one recipient list. The
// engine only reads these; import and verification run elsewhere.
type EmailList struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	TotalContacts      int       `json:"total_contacts" db:"total_contacts"`
	ValidContacts      int       `json:"valid_contacts" db:"valid_contacts"`
	InvalidContacts    int       `json:"invalid_contacts" db:"invalid_contacts"`
	RiskyContacts      int       `json:"risky_contacts" db:"risky_contacts"`
	VerificationStatus string    `json:"verification_status" db:"verification_status"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}
