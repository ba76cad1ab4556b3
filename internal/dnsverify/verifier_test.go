package dnsverify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/clock"
)

type fakeResolver struct {
	txt   map[string][]string
	cname map[string]string
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	records, ok := f.txt[name]
	if !ok {
		return nil, errors.New("no such host")
	}
	return records, nil
}

func (f *fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	cname, ok := f.cname[host]
	if !ok {
		return "", errors.New("no such host")
	}
	return cname, nil
}

func TestVerifyFullyConfigured(t *testing.T) {
	resolver := &fakeResolver{
		txt: map[string][]string{
			"example.com": {
				"google-site-verification=abc123",
				"v=spf1 include:amazonses.com ~all",
			},
			"_dmarc.example.com": {"v=DMARC1; p=quarantine; rua=mailto:dmarc@example.com"},
		},
		cname: map[string]string{
			"sel1._domainkey.example.com": "sel1.dkim.amazonses.com.",
		},
	}
	v := NewVerifier(resolver, nil)

	res := v.Verify(context.Background(), "example.com", "sel1")
	if !res.SPFConfigured {
		t.Error("SPF should verify")
	}
	if res.SPFRecord != "v=spf1 include:amazonses.com ~all" {
		t.Errorf("spf record = %q", res.SPFRecord)
	}
	if !res.DMARCConfigured || res.DMARCPolicy != "quarantine" {
		t.Errorf("dmarc = %v policy %q, want configured with quarantine", res.DMARCConfigured, res.DMARCPolicy)
	}
	if !res.DKIMConfigured {
		t.Error("DKIM should verify via the selector CNAME")
	}
}

func TestVerifyNothingConfigured(t *testing.T) {
	v := NewVerifier(&fakeResolver{}, nil)

	res := v.Verify(context.Background(), "example.com", "")
	if res.SPFConfigured || res.DKIMConfigured || res.DMARCConfigured {
		t.Errorf("nothing should verify on empty DNS, got %+v", res)
	}
}

func TestVerifyIgnoresUnrelatedTXT(t *testing.T) {
	resolver := &fakeResolver{
		txt: map[string][]string{
			"example.com":        {"some-unrelated-record"},
			"_dmarc.example.com": {"not a dmarc record"},
		},
	}
	v := NewVerifier(resolver, nil)

	res := v.Verify(context.Background(), "example.com", "")
	if res.SPFConfigured {
		t.Error("non-SPF TXT record must not count as SPF")
	}
	if res.DMARCConfigured {
		t.Error("non-DMARC TXT record must not count as DMARC")
	}
}

type fakeAuthStore struct {
	domain  *domain.EmailDomain
	updated bool
	spf     bool
	dkim    bool
	dmarc   bool
}

func (s *fakeAuthStore) GetDomain(_ context.Context, id string) (*domain.EmailDomain, error) {
	if s.domain == nil || s.domain.ID != id {
		return nil, errors.New("domain not found")
	}
	return s.domain, nil
}

func (s *fakeAuthStore) UpdateAuthFlags(_ context.Context, _ string, spf, dkim, dmarc bool, _, _ string, _ time.Time) error {
	s.updated = true
	s.spf, s.dkim, s.dmarc = spf, dkim, dmarc
	return nil
}

func TestServiceVerifyDomainPersists(t *testing.T) {
	resolver := &fakeResolver{
		txt: map[string][]string{
			"example.com": {"v=spf1 include:amazonses.com ~all"},
		},
	}
	store := &fakeAuthStore{domain: &domain.EmailDomain{ID: "dom-1", Domain: "example.com"}}
	svc := NewService(NewVerifier(resolver, nil), store, &clock.Fixed{T: time.Now()})

	res, err := svc.VerifyDomain(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !store.updated {
		t.Fatal("flags should be persisted")
	}
	if !store.spf || store.dkim || store.dmarc {
		t.Errorf("persisted flags = spf %v dkim %v dmarc %v, want only spf", store.spf, store.dkim, store.dmarc)
	}
	if !res.SPFConfigured {
		t.Error("result should report SPF configured")
	}
}
