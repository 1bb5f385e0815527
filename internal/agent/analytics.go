package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/model"
)

// AnalyticsProcessor observes every lifecycle subject. It emits structured
// logs for downstream analytics but never advances an invoice or publishes
// events.
type AnalyticsProcessor struct {
	log zerolog.Logger
}

func NewAnalyticsProcessor(log zerolog.Logger) *AnalyticsProcessor {
	return &AnalyticsProcessor{
		log: log.With().Str("agent", "analytics-agent").Logger(),
	}
}

func (p *AnalyticsProcessor) Name() string         { return "analytics-agent" }
func (p *AnalyticsProcessor) Subscription() string { return model.SubscriptionAnalytics }

func (p *AnalyticsProcessor) Process(ctx context.Context, env bus.Envelope) (*Outcome, error) {
	p.log.Info().
		Str("subject", env.Subject).
		Str("event_type", env.Body.EventType).
		Str("invoice_id", env.Body.InvoiceID).
		Str("department_id", env.Body.DepartmentID).
		Str("correlation_id", env.CorrelationID).
		Msg("lifecycle event observed")
	return &Outcome{}, nil
}
