package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// defaultNetDays applies when the invoice carries no parseable payment terms.
const defaultNetDays = 30

// PaymentProcessor consumes invoice.approved events, schedules the payment
// according to the vendor's NET terms and assigns a payment reference.
type PaymentProcessor struct {
	invoices *repository.InvoiceRepository
	metrics  *observability.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewPaymentProcessor(invoices *repository.InvoiceRepository, metrics *observability.Metrics, log zerolog.Logger) *PaymentProcessor {
	return &PaymentProcessor{
		invoices: invoices,
		metrics:  metrics,
		log:      log.With().Str("agent", "payment-agent").Logger(),
		now:      time.Now,
	}
}

func (p *PaymentProcessor) Name() string         { return "payment-agent" }
func (p *PaymentProcessor) Subscription() string { return model.SubscriptionPayment }

func (p *PaymentProcessor) Process(ctx context.Context, env bus.Envelope) (*Outcome, error) {
	inv, ok, err := loadForStage(ctx, p.invoices, env, model.StateApproved, p.log)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{}, nil
	}

	scheduled := scheduledDate(inv, p.now().UTC())
	inv.PaymentScheduledDate = &scheduled
	inv.PaymentReference = fmt.Sprintf("PAY-%s", uuid.NewString())

	if err := inv.TransitionTo(model.StatePaymentScheduled, p.Name()); err != nil {
		return nil, err
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	recordTransition(p.metrics, model.StateApproved, model.StatePaymentScheduled)

	p.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("payment_reference", inv.PaymentReference).
		Time("scheduled_date", scheduled).
		Msg("payment scheduled")

	return &Outcome{Next: successor(env, model.SubjectPaymentScheduled, model.EventPaymentScheduled)}, nil
}

// scheduledDate derives the payment date from the invoice terms: the due
// date when one is set, otherwise issue date (or today) plus the NET days.
func scheduledDate(inv *model.Invoice, now time.Time) time.Time {
	if inv.DueDate != nil {
		return *inv.DueDate
	}
	base := now
	if inv.IssuedDate != nil {
		base = *inv.IssuedDate
	}
	return base.AddDate(0, 0, netDays(inv.PaymentTerms))
}

// netDays parses terms like "NET30" or "net 45". Unparseable terms fall
// back to the default.
func netDays(terms string) int {
	t := strings.TrimSpace(strings.ToUpper(terms))
	if !strings.HasPrefix(t, "NET") {
		return defaultNetDays
	}
	days, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(t, "NET")))
	if err != nil || days <= 0 {
		return defaultNetDays
	}
	return days
}
