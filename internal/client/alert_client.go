package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/observability"
)

// WebhookAlertSender delivers alerts to a notifications webhook.
//
// All sends are non-fatal: delivery is retried a few times and the error is
// logged and swallowed, so alerting failures never interrupt the workflow.
type WebhookAlertSender struct {
	url     string
	http    *http.Client
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewWebhookAlertSender creates an alert sender posting to the given URL.
// metrics may be nil.
func NewWebhookAlertSender(url string, metrics *observability.Metrics, log zerolog.Logger) *WebhookAlertSender {
	return &WebhookAlertSender{
		url:     url,
		http:    &http.Client{Timeout: 10 * time.Second},
		metrics: metrics,
		log:     log.With().Str("component", "alert_sender").Logger(),
	}
}

type alertPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
}

// SendAlert posts the alert. The returned error is informational only;
// callers may ignore it.
func (s *WebhookAlertSender) SendAlert(ctx context.Context, recipient, subject, message string) error {
	if s.url == "" {
		s.log.Debug().Str("recipient", recipient).Msg("alert webhook not configured, dropping alert")
		return nil
	}

	body, err := json.Marshal(alertPayload{Recipient: recipient, Subject: subject, Message: message})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to marshal alert")
		return nil
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
	)
	attempt := 0
	err = r.Do(func() error {
		if attempt > 0 && s.metrics != nil {
			s.metrics.RecordAlertRetry()
		}
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("recipient", recipient).
			Str("subject", subject).
			Msg("failed to deliver alert (non-fatal)")
		return err
	}

	s.log.Debug().Str("recipient", recipient).Str("subject", subject).Msg("alert delivered")
	return nil
}
