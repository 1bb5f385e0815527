package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// SettlementProcessor consumes invoice.payment_scheduled events and marks
// the invoice PAID. In production the settlement confirmation arrives from
// the payment rail; here the scheduled payment settles immediately.
type SettlementProcessor struct {
	invoices *repository.InvoiceRepository
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewSettlementProcessor(invoices *repository.InvoiceRepository, metrics *observability.Metrics, log zerolog.Logger) *SettlementProcessor {
	return &SettlementProcessor{
		invoices: invoices,
		metrics:  metrics,
		log:      log.With().Str("agent", "settlement-agent").Logger(),
	}
}

func (p *SettlementProcessor) Name() string         { return "settlement-agent" }
func (p *SettlementProcessor) Subscription() string { return model.SubscriptionSettlement }

func (p *SettlementProcessor) Process(ctx context.Context, env bus.Envelope) (*Outcome, error) {
	inv, ok, err := loadForStage(ctx, p.invoices, env, model.StatePaymentScheduled, p.log)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{}, nil
	}

	if err := inv.TransitionTo(model.StatePaid, p.Name()); err != nil {
		return nil, err
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	recordTransition(p.metrics, model.StatePaymentScheduled, model.StatePaid)

	p.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("payment_reference", inv.PaymentReference).
		Msg("payment settled")

	return &Outcome{Next: successor(env, model.SubjectPaid, model.EventPaymentSettled)}, nil
}
