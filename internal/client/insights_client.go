package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
)

// InsightsConfig describes the insights service endpoint and breaker
// thresholds.
type InsightsConfig struct {
	BaseURL             string
	APIKey              string
	Timeout             time.Duration
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	ConsecutiveFailures uint32
	Metrics             *observability.Metrics
}

// InsightsClient talks to the LLM-backed insights service over HTTP JSON. A
// circuit breaker guards every call so a wedged model endpoint fails fast
// instead of stalling the stage worker on each message.
//
// It implements DocumentExtractor, BudgetClassifier, ImpactAnalyzer and
// AIValidator.
type InsightsClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewInsightsClient creates a client for the given endpoint.
func NewInsightsClient(cfg InsightsConfig, log zerolog.Logger) *InsightsClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "insights",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("state", to.String()).Msg("insights breaker state changed")
			if cfg.Metrics != nil {
				cfg.Metrics.SetInsightsCircuitBreakerState(name, breakerStateValue(to))
			}
		},
	})

	return &InsightsClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
		metrics: cfg.Metrics,
		log:     log.With().Str("component", "insights_client").Logger(),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// ExtractDocument asks the insights service to parse a stored document.
func (c *InsightsClient) ExtractDocument(ctx context.Context, fileURL string) (*ExtractionOutcome, error) {
	var out ExtractionOutcome
	err := c.post(ctx, "extract", "/v1/extract", map[string]any{"file_url": fileURL}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClassifyBudgetCategory classifies an invoice's spend.
func (c *InsightsClient) ClassifyBudgetCategory(ctx context.Context, invoice *model.Invoice) (*ClassificationOutcome, error) {
	var out ClassificationOutcome
	err := c.post(ctx, "classify", "/v1/classify", map[string]any{"invoice": invoice}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeBudgetImpact runs impact/anomaly analysis.
func (c *InsightsClient) AnalyzeBudgetImpact(ctx context.Context, invoice *model.Invoice, budget *model.Budget) (*ImpactOutcome, error) {
	var out ImpactOutcome
	err := c.post(ctx, "impact", "/v1/impact", map[string]any{"invoice": invoice, "budget": budget}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateWithAI runs model-assisted validation.
func (c *InsightsClient) ValidateWithAI(ctx context.Context, invoice *model.Invoice, vendor *model.Vendor) (*ValidationOutcome, error) {
	var out ValidationOutcome
	err := c.post(ctx, "validate", "/v1/validate", map[string]any{"invoice": invoice, "vendor": vendor}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *InsightsClient) post(ctx context.Context, op, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal insights request")
	}

	result, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("insights %s returned %d: %s", path, resp.StatusCode, data)
		}
		return data, nil
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordInsightsRequest(op, "error")
		}
		c.log.Warn().Err(err).Str("path", path).Msg("insights call failed")
		return errors.Wrap(err, errors.ErrCodeUnavailable, "insights call "+path+" failed")
	}
	if c.metrics != nil {
		c.metrics.RecordInsightsRequest(op, "ok")
	}

	if err := json.Unmarshal(result.([]byte), out); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to decode insights response")
	}
	return nil
}
