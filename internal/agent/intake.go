package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/client"
	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// IntakeProcessor consumes invoice.created events: it runs document
// extraction over the submitted file, fills in the fields the submitter left
// blank and moves the invoice to EXTRACTED.
type IntakeProcessor struct {
	invoices  *repository.InvoiceRepository
	extractor client.DocumentExtractor
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewIntakeProcessor(invoices *repository.InvoiceRepository, extractor client.DocumentExtractor, metrics *observability.Metrics, log zerolog.Logger) *IntakeProcessor {
	return &IntakeProcessor{
		invoices:  invoices,
		extractor: extractor,
		metrics:   metrics,
		log:       log.With().Str("agent", "intake-agent").Logger(),
	}
}

func (p *IntakeProcessor) Name() string         { return "intake-agent" }
func (p *IntakeProcessor) Subscription() string { return model.SubscriptionIntake }

func (p *IntakeProcessor) Process(ctx context.Context, env bus.Envelope) (*Outcome, error) {
	inv, ok, err := loadForStage(ctx, p.invoices, env, model.StateCreated, p.log)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{}, nil
	}

	extracted, err := p.extractor.ExtractDocument(ctx, inv.RawFileURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "document extraction failed")
	}

	applyExtraction(inv, extracted)

	if err := inv.TransitionTo(model.StateExtracted, p.Name()); err != nil {
		return nil, err
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	recordTransition(p.metrics, model.StateCreated, model.StateExtracted)

	return &Outcome{Next: successor(env, model.SubjectExtracted, model.EventDocumentExtracted)}, nil
}

// applyExtraction merges extraction output into the invoice. Submitted
// values win over extracted ones; extraction only fills gaps.
func applyExtraction(inv *model.Invoice, out *client.ExtractionOutcome) {
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = out.InvoiceNumber
	}
	if inv.VendorName == "" {
		inv.VendorName = out.VendorName
	}
	if inv.Amount == 0 {
		inv.Amount = out.Amount
	}
	if inv.Currency == "" {
		inv.Currency = out.Currency
	}
	if inv.TaxAmount == 0 {
		inv.TaxAmount = out.TaxAmount
	}
	if inv.IssuedDate == nil {
		inv.IssuedDate = out.IssuedDate
	}
	if inv.DueDate == nil {
		inv.DueDate = out.DueDate
	}
	if len(out.Fields) > 0 {
		inv.ExtractedData = out.Fields
	}
	inv.ExtractionConfidence = out.Confidence
}
