package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clickmail/warmup-engine/internal/dnsverify"
	"github.com/clickmail/warmup-engine/internal/domain"
	"github.com/clickmail/warmup-engine/internal/pkg/httputil"
	"github.com/clickmail/warmup-engine/internal/service/reputation"
	"github.com/clickmail/warmup-engine/internal/service/warmup"
)

// CampaignService is the warmup control surface the API exposes.
type CampaignService interface {
	Start(ctx context.Context, campaignID string) error
	Pause(ctx context.Context, campaignID string) error
	Resume(ctx context.Context, campaignID string) error
	Cancel(ctx context.Context, campaignID string) error
	SkipToday(ctx context.Context, campaignID string) error
	AdjustToday(ctx context.Context, campaignID string, newVolume int) error
	Snapshot(ctx context.Context, campaignID string) (*warmup.PlanSnapshot, error)
}

// OutcomeIngestor buffers incoming outcomes for the drain worker.
type OutcomeIngestor interface {
	StageOutcome(ctx context.Context, o domain.MessageOutcome) (string, error)
}

// ReputationService serves reputation snapshots.
type ReputationService interface {
	Snapshot(ctx context.Context, domainID string) (*reputation.Snapshot, error)
}

// DNSService re-runs domain authentication checks.
type DNSService interface {
	VerifyDomain(ctx context.Context, domainID string) (*dnsverify.Result, error)
}

// ListVerifier flags recipient lists and triggers the external
// verification workflow.
type ListVerifier interface {
	RequestVerification(ctx context.Context, listID string) error
}

// Handlers carries the HTTP handlers and their dependencies.
type Handlers struct {
	campaigns CampaignService
	outcomes  OutcomeIngestor
	rep       ReputationService
	dns       DNSService
	lists     ListVerifier
}

// NewHandlers creates the handler set. dns may be nil; its route then
// reports 503.
func NewHandlers(campaigns CampaignService, outcomes OutcomeIngestor, rep ReputationService, dns DNSService, lists ListVerifier) *Handlers {
	return &Handlers{campaigns: campaigns, outcomes: outcomes, rep: rep, dns: dns, lists: lists}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// writeServiceError maps service sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, warmup.ErrNotFound) || errors.Is(err, reputation.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, warmup.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, warmup.ErrInvalidParameters):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

type campaignOp func(ctx context.Context, campaignID string) error

func (h *Handlers) campaignAction(op campaignOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := op(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		httputil.OK(w, map[string]string{"campaign_id": id, "result": "ok"})
	}
}

// AdjustToday handles POST /api/campaigns/{id}/warmup/adjust-today.
func (h *Handlers) AdjustToday(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume int `json:"volume"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.campaigns.AdjustToday(r.Context(), id, req.Volume); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaign_id": id, "volume": req.Volume})
}

// GetWarmupPlan handles GET /api/campaigns/{id}/warmup.
func (h *Handlers) GetWarmupPlan(w http.ResponseWriter, r *http.Request) {
	snap, err := h.campaigns.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, snap)
}

// IngestOutcomes handles POST /api/outcomes. The body is one outcome
// object or an array of them; everything valid is staged for the worker
// and acknowledged with 202.
func (h *Handlers) IngestOutcomes(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !httputil.Decode(w, r, &raw) {
		return
	}

	var outcomes []domain.MessageOutcome
	if err := json.Unmarshal(raw, &outcomes); err != nil {
		var single domain.MessageOutcome
		if err := json.Unmarshal(raw, &single); err != nil {
			httputil.BadRequest(w, "body must be an outcome object or array")
			return
		}
		outcomes = []domain.MessageOutcome{single}
	}
	if len(outcomes) == 0 {
		httputil.BadRequest(w, "empty outcome batch")
		return
	}

	staged := 0
	rejected := 0
	for _, o := range outcomes {
		if err := o.Validate(); err != nil {
			rejected++
			continue
		}
		if _, err := h.outcomes.StageOutcome(r.Context(), o); err != nil {
			// Earlier rows are already staged. Report how far the batch
			// got so the producer can resubmit only the remainder.
			log.Printf("[api] outcome staging failed after %d rows: %v", staged, err)
			httputil.JSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
				Error:   "outcome staging failed",
				Details: map[string]int{"staged": staged, "rejected": rejected},
			})
			return
		}
		staged++
	}
	httputil.Accepted(w, map[string]int{"staged": staged, "rejected": rejected})
}

// GetReputation handles GET /api/domains/{id}/reputation.
func (h *Handlers) GetReputation(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rep.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, snap)
}

// VerifyDNS handles POST /api/domains/{id}/verify-dns.
func (h *Handlers) VerifyDNS(w http.ResponseWriter, r *http.Request) {
	if h.dns == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "dns verification not configured")
		return
	}
	res, err := h.dns.VerifyDomain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// VerifyList handles POST /api/lists/{id}/verify. The actual verification
// runs in an external workflow; this flags the list and notifies the
// workflow's webhook.
func (h *Handlers) VerifyList(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.lists.RequestVerification(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"list_id": id, "verification": "pending"})
}
