package reputation

import (
	"fmt"

	"github.com/clickmail/warmup-engine/internal/domain"
)

// healthyScoreFloor is the minimum score for the all-clear success alert.
const healthyScoreFloor = 80

// Alerts evaluates the alert rules against the domain's current state.
// The rule order is fixed so the list renders deterministically.
func Alerts(d *domain.EmailDomain) []domain.Alert {
	var alerts []domain.Alert

	if !d.DKIMConfigured {
		alerts = append(alerts, domain.Alert{
			Severity:    domain.SeverityDanger,
			Title:       "DKIM not configured",
			Description: "Without DKIM your emails may be marked as spam. Publish the three Amazon SES CNAME records in your DNS.",
		})
	}
	if !d.SPFConfigured {
		alerts = append(alerts, domain.Alert{
			Severity:    domain.SeverityDanger,
			Title:       "SPF not configured",
			Description: "Add the TXT record 'v=spf1 include:amazonses.com ~all' to your domain's DNS.",
		})
	}
	if !d.DMARCConfigured {
		alerts = append(alerts, domain.Alert{
			Severity:    domain.SeverityWarning,
			Title:       "DMARC not configured",
			Description: "DMARC protects against spoofing. Add: v=DMARC1; p=quarantine; rua=mailto:dmarc@" + d.Domain,
		})
	}

	if d.BounceRate > bounceDangerPct {
		alerts = append(alerts, domain.Alert{
			Severity:    domain.SeverityDanger,
			Title:       "High bounce rate",
			Description: fmt.Sprintf("Your bounce rate is at %.1f%%. Consider cleaning your contact list by removing invalid addresses.", d.BounceRate),
		})
	} else if d.BounceRate > bounceWarnPct {
		alerts = append(alerts, domain.Alert{
			Severity:    domain.SeverityWarning,
			Title:       "Bounce rate climbing",
			Description: fmt.Sprintf("Bounce rate at %.1f%%. Monitor it and consider re-verifying your list.", d.BounceRate),
		})
	}

	if d.ComplaintRate > complaintDangerPct {
		alerts = append(alerts, domain.Alert{
			Severity:    domain.SeverityDanger,
			Title:       "High complaint rate",
			Description: fmt.Sprintf("Complaint rate at %.2f%%. Review your email content and make sure you only send to recipients who opted in.", d.ComplaintRate),
		})
	}

	if d.ReputationScore >= healthyScoreFloor && d.AuthComplete() {
		alerts = append(alerts, domain.Alert{
			Severity:    domain.SeveritySuccess,
			Title:       "Domain healthy",
			Description: "Your DNS authentication is complete and reputation looks good. Keep monitoring the metrics.",
		})
	}

	return alerts
}
