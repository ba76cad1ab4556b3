// Package listverify flags recipient lists for re-verification and
// notifies the external verification workflow over its webhook.
package listverify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clickmail/warmup-engine/internal/pkg/logger"
)

// Store persists the list's verification state.
type Store interface {
	MarkListVerificationPending(ctx context.Context, listID string) error
}

// Service marks lists pending and posts the trigger to the configured
// webhook. Verification results come back through the lists table, not
// through this service.
type Service struct {
	store      Store
	webhookURL string
	client     *http.Client
}

// NewService creates a list verification service. An empty webhookURL
// disables the notification; the pending flag is then the only signal.
func NewService(store Store, webhookURL string) *Service {
	return &Service{
		store:      store,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// RequestVerification flags the list and notifies the workflow webhook.
// The webhook call is best effort: once the flag is persisted, a failed
// notification is logged and the request still succeeds, since the
// workflow can be re-triggered at any time.
func (s *Service) RequestVerification(ctx context.Context, listID string) error {
	if err := s.store.MarkListVerificationPending(ctx, listID); err != nil {
		return err
	}
	if s.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"list_id": listID})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warn("list verification webhook unreachable",
			"list_id", listID, "error", err.Error())
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		logger.Warn("list verification webhook rejected request",
			"list_id", listID, "status", fmt.Sprintf("%d", resp.StatusCode))
		return nil
	}

	logger.Info("list verification requested", "list_id", listID)
	return nil
}
