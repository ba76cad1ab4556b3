// Package dnsverify checks a sending domain's SPF, DKIM, and DMARC
// configuration. SPF and DMARC come straight from DNS TXT lookups; DKIM is
// confirmed against SES identity verification when an SES client is wired,
// with a CNAME probe as fallback.
package dnsverify

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/clock"
	"github.com/clickmail/warmup-engine/internal/pkg/logger"
)

// Resolver is the DNS surface the verifier needs. *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// IdentityClient is the slice of the SES v2 API used for DKIM status.
type IdentityClient interface {
	GetEmailIdentity(ctx context.Context, params *sesv2.GetEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error)
}

// Result holds one verification pass over a domain's DNS.
type Result struct {
	SPFConfigured   bool   `json:"spf_configured"`
	SPFRecord       string `json:"spf_record,omitempty"`
	DKIMConfigured  bool   `json:"dkim_configured"`
	DMARCConfigured bool   `json:"dmarc_configured"`
	DMARCPolicy     string `json:"dmarc_policy,omitempty"`
}

// Verifier runs the DNS checks.
type Verifier struct {
	resolver Resolver
	ses      IdentityClient // optional
}

// NewVerifier creates a verifier. ses may be nil; DKIM then falls back to
// a selector CNAME probe.
func NewVerifier(resolver Resolver, ses IdentityClient) *Verifier {
	return &Verifier{resolver: resolver, ses: ses}
}

// Verify checks the three authentication mechanisms for a domain.
// dkimSelector is only consulted on the CNAME fallback path.
func (v *Verifier) Verify(ctx context.Context, domainName, dkimSelector string) Result {
	var res Result
	res.SPFConfigured, res.SPFRecord = v.checkSPF(ctx, domainName)
	res.DMARCConfigured, res.DMARCPolicy = v.checkDMARC(ctx, domainName)
	res.DKIMConfigured = v.checkDKIM(ctx, domainName, dkimSelector)
	return res
}

func (v *Verifier) checkSPF(ctx context.Context, domainName string) (bool, string) {
	records, err := v.resolver.LookupTXT(ctx, domainName)
	if err != nil {
		return false, ""
	}
	for _, r := range records {
		if strings.HasPrefix(strings.TrimSpace(r), "v=spf1") {
			return true, r
		}
	}
	return false, ""
}

func (v *Verifier) checkDMARC(ctx context.Context, domainName string) (bool, string) {
	records, err := v.resolver.LookupTXT(ctx, "_dmarc."+domainName)
	if err != nil {
		return false, ""
	}
	for _, r := range records {
		if !strings.HasPrefix(strings.TrimSpace(r), "v=DMARC1") {
			continue
		}
		return true, dmarcPolicy(r)
	}
	return false, ""
}

// dmarcPolicy pulls the p= tag out of a DMARC record.
func dmarcPolicy(record string) string {
	for _, tag := range strings.Split(record, ";") {
		tag = strings.TrimSpace(tag)
		if strings.HasPrefix(tag, "p=") {
			return strings.TrimPrefix(tag, "p=")
		}
	}
	return ""
}

func (v *Verifier) checkDKIM(ctx context.Context, domainName, selector string) bool {
	if v.ses != nil {
		out, err := v.ses.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
			EmailIdentity: aws.String(domainName),
		})
		if err != nil {
			logger.Warn("ses identity lookup failed, falling back to CNAME probe",
				"domain", domainName, "error", err.Error())
		} else {
			return out.DkimAttributes != nil &&
				out.DkimAttributes.Status == sestypes.DkimStatusSuccess
		}
	}
	if selector == "" {
		return false
	}
	cname, err := v.resolver.LookupCNAME(ctx, selector+"._domainkey."+domainName)
	if err != nil {
		return false
	}
	return strings.Contains(strings.TrimSuffix(cname, "."), "dkim.amazonses.com")
}

// AuthStore persists verification results.
type AuthStore interface {
	GetDomain(ctx context.Context, id string) (*domain.EmailDomain, error)
	UpdateAuthFlags(ctx context.Context, id string, spf, dkim, dmarc bool, spfRecord, dmarcPolicy string, checkedAt time.Time) error
}

// Service runs verification passes and persists the flags.
type Service struct {
	verifier *Verifier
	store    AuthStore
	clk      clock.Clock
}

// NewService creates the verification service.
func NewService(verifier *Verifier, store AuthStore, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{verifier: verifier, store: store, clk: clk}
}

// VerifyDomain re-runs the DNS checks for a stored domain and persists the
// outcome. Returns the fresh result.
func (s *Service) VerifyDomain(ctx context.Context, domainID string) (*Result, error) {
	d, err := s.store.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}

	res := s.verifier.Verify(ctx, d.Domain, d.DKIMSelector)
	if err := s.store.UpdateAuthFlags(ctx, domainID,
		res.SPFConfigured, res.DKIMConfigured, res.DMARCConfigured,
		res.SPFRecord, res.DMARCPolicy, s.clk.Now()); err != nil {
		return nil, err
	}

	logger.Info("dns verification completed",
		"domain", d.Domain,
		"spf", res.SPFConfigured,
		"dkim", res.DKIMConfigured,
		"dmarc", res.DMARCConfigured)
	return &res, nil
}
