package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clickmail/warmup-engine/internal/dnsverify"
	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/service/reputation"
	"github.com/clickmail/warmup-engine/internal/service/warmup"
)

type fakeCampaigns struct {
	err    error
	lastOp string
	volume int
	snap   *warmup.PlanSnapshot
}

func (f *fakeCampaigns) op(name string) error {
	f.lastOp = name
	return f.err
}

func (f *fakeCampaigns) Start(context.Context, string) error  { return f.op("start") }
func (f *fakeCampaigns) Pause(context.Context, string) error  { return f.op("pause") }
func (f *fakeCampaigns) Resume(context.Context, string) error { return f.op("resume") }
func (f *fakeCampaigns) Cancel(context.Context, string) error { return f.op("cancel") }
func (f *fakeCampaigns) SkipToday(context.Context, string) error {
	return f.op("skip")
}
func (f *fakeCampaigns) AdjustToday(_ context.Context, _ string, v int) error {
	f.volume = v
	return f.op("adjust")
}
func (f *fakeCampaigns) Snapshot(context.Context, string) (*warmup.PlanSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type fakeIngestor struct {
	staged    int
	err       error
	failAfter int // >0 makes staging fail once this many rows are staged
}

func (f *fakeIngestor) StageOutcome(context.Context, domain.MessageOutcome) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.failAfter > 0 && f.staged >= f.failAfter {
		return "", errors.New("insert failed")
	}
	f.staged++
	return "staged-id", nil
}

type fakeReputation struct {
	snap *reputation.Snapshot
	err  error
}

func (f *fakeReputation) Snapshot(context.Context, string) (*reputation.Snapshot, error) {
	return f.snap, f.err
}

type fakeDNS struct{ res *dnsverify.Result }

func (f *fakeDNS) VerifyDomain(context.Context, string) (*dnsverify.Result, error) {
	return f.res, nil
}

type fakeLists struct {
	requested []string
	err       error
}

func (f *fakeLists) RequestVerification(_ context.Context, listID string) error {
	if f.err != nil {
		return f.err
	}
	f.requested = append(f.requested, listID)
	return nil
}

func testServer(campaigns *fakeCampaigns, ingestor *fakeIngestor) (*httptest.Server, func()) {
	h := NewHandlers(campaigns, ingestor,
		&fakeReputation{snap: &reputation.Snapshot{Score: 85, Tier: domain.TierHealthy}},
		&fakeDNS{res: &dnsverify.Result{SPFConfigured: true}},
		&fakeLists{})
	srv := httptest.NewServer(SetupRoutes(h))
	return srv, srv.Close
}

func TestCampaignActionStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{warmup.ErrNotFound, http.StatusNotFound},
		{warmup.ErrInvalidTransition, http.StatusConflict},
		{warmup.ErrInvalidParameters, http.StatusBadRequest},
	}
	for _, tc := range cases {
		campaigns := &fakeCampaigns{err: tc.err}
		srv, done := testServer(campaigns, &fakeIngestor{})

		resp, err := http.Post(srv.URL+"/api/campaigns/camp-1/pause", "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("err %v: status = %d, want %d", tc.err, resp.StatusCode, tc.want)
		}
		if campaigns.lastOp != "pause" {
			t.Errorf("dispatched %q, want pause", campaigns.lastOp)
		}
		done()
	}
}

func TestAdjustTodayParsesVolume(t *testing.T) {
	campaigns := &fakeCampaigns{}
	srv, done := testServer(campaigns, &fakeIngestor{})
	defer done()

	resp, err := http.Post(srv.URL+"/api/campaigns/camp-1/warmup/adjust-today",
		"application/json", strings.NewReader(`{"volume": 120}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if campaigns.volume != 120 {
		t.Errorf("volume = %d, want 120", campaigns.volume)
	}
}

func TestIngestSingleOutcome(t *testing.T) {
	ingestor := &fakeIngestor{}
	srv, done := testServer(&fakeCampaigns{}, ingestor)
	defer done()

	body := `{"message_id":"m1","campaign_id":"camp-1","status":"delivered","occurred_at":"2026-03-01T12:00:00Z"}`
	resp, err := http.Post(srv.URL+"/api/outcomes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if ingestor.staged != 1 {
		t.Errorf("staged = %d, want 1", ingestor.staged)
	}
}

func TestIngestBatchCountsRejects(t *testing.T) {
	ingestor := &fakeIngestor{}
	srv, done := testServer(&fakeCampaigns{}, ingestor)
	defer done()

	body := `[
		{"message_id":"m1","campaign_id":"camp-1","status":"sent","occurred_at":"2026-03-01T12:00:00Z"},
		{"message_id":"","campaign_id":"camp-1","status":"sent","occurred_at":"2026-03-01T12:00:00Z"},
		{"message_id":"m2","campaign_id":"camp-1","status":"bounced","occurred_at":"2026-03-01T12:00:00Z"}
	]`
	resp, err := http.Post(srv.URL+"/api/outcomes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["staged"] != 2 || out["rejected"] != 1 {
		t.Errorf("response = %v, want staged 2 rejected 1", out)
	}
}

func TestIngestReportsPartialBatchOnFailure(t *testing.T) {
	// A mid-batch staging failure cannot be a bare 500: the rows before
	// it are already staged and the producer needs to know how many.
	ingestor := &fakeIngestor{failAfter: 1}
	srv, done := testServer(&fakeCampaigns{}, ingestor)
	defer done()

	body := `[
		{"message_id":"m1","campaign_id":"camp-1","status":"sent","occurred_at":"2026-03-01T12:00:00Z"},
		{"message_id":"m2","campaign_id":"camp-1","status":"sent","occurred_at":"2026-03-01T12:00:00Z"}
	]`
	resp, err := http.Post(srv.URL+"/api/outcomes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var out struct {
		Error   string         `json:"error"`
		Details map[string]int `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Details["staged"] != 1 {
		t.Errorf("details = %v, want staged 1", out.Details)
	}
}

func TestIngestRejectsGarbage(t *testing.T) {
	srv, done := testServer(&fakeCampaigns{}, &fakeIngestor{})
	defer done()

	resp, err := http.Post(srv.URL+"/api/outcomes", "application/json", strings.NewReader(`"nope"`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetReputation(t *testing.T) {
	srv, done := testServer(&fakeCampaigns{}, &fakeIngestor{})
	defer done()

	resp, err := http.Get(srv.URL + "/api/domains/dom-1/reputation")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap reputation.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Score != 85 || snap.Tier != domain.TierHealthy {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestVerifyListAccepted(t *testing.T) {
	srv, done := testServer(&fakeCampaigns{}, &fakeIngestor{})
	defer done()

	resp, err := http.Post(srv.URL+"/api/lists/list-1/verify", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, done := testServer(&fakeCampaigns{}, &fakeIngestor{})
	defer done()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
