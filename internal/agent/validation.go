package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/client"
	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// ValidationProcessor consumes invoice.extracted events. It runs the
// deterministic field checks and duplicate detection first, then the
// AI-assisted validator. Any failure records the issues on the invoice,
// moves it to FAILED and announces invoice.failed; the workflow does not
// dead-letter for business-rule failures.
type ValidationProcessor struct {
	invoices  *repository.InvoiceRepository
	vendors   *repository.VendorRepository
	validator client.AIValidator
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewValidationProcessor(invoices *repository.InvoiceRepository, vendors *repository.VendorRepository, validator client.AIValidator, metrics *observability.Metrics, log zerolog.Logger) *ValidationProcessor {
	return &ValidationProcessor{
		invoices:  invoices,
		vendors:   vendors,
		validator: validator,
		metrics:   metrics,
		log:       log.With().Str("agent", "validation-agent").Logger(),
	}
}

func (p *ValidationProcessor) Name() string         { return "validation-agent" }
func (p *ValidationProcessor) Subscription() string { return model.SubscriptionValidation }

func (p *ValidationProcessor) Process(ctx context.Context, env bus.Envelope) (*Outcome, error) {
	inv, ok, err := loadForStage(ctx, p.invoices, env, model.StateExtracted, p.log)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{}, nil
	}

	issues := deterministicChecks(inv)

	dupes, err := p.invoices.FindDuplicates(ctx, inv)
	if err != nil {
		return nil, err
	}
	if len(dupes) > 0 {
		issues = append(issues, issue{
			code:    "DUPLICATE_INVOICE",
			message: fmt.Sprintf("invoice number %s from %s already exists (%s)", inv.InvoiceNumber, inv.VendorName, dupes[0].InvoiceID),
		})
	}

	// The AI validator only runs on structurally sound invoices.
	if len(issues) == 0 {
		vendor, err := p.lookupVendor(ctx, inv)
		if err != nil {
			return nil, err
		}
		out, err := p.validator.ValidateWithAI(ctx, inv, vendor)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "invoice validation failed")
		}
		for _, msg := range out.Errors {
			issues = append(issues, issue{code: "AI_VALIDATION", message: msg})
		}
		for _, action := range out.RecommendedActions {
			inv.AppendWarning(p.Name(), action, "RECOMMENDED_ACTION")
		}
		if !out.Passed && len(out.Errors) == 0 {
			issues = append(issues, issue{code: "AI_VALIDATION", message: "validator rejected invoice without details"})
		}
	}

	if len(issues) > 0 {
		for _, iss := range issues {
			inv.AppendError(p.Name(), iss.message, iss.code)
		}
		if err := inv.TransitionTo(model.StateFailed, p.Name()); err != nil {
			return nil, err
		}
		if err := p.invoices.Upsert(ctx, inv); err != nil {
			return nil, err
		}
		recordTransition(p.metrics, model.StateExtracted, model.StateFailed)
		p.log.Info().
			Str("invoice_id", inv.InvoiceID).
			Int("issue_count", len(issues)).
			Msg("validation failed")
		return &Outcome{Next: successor(env, model.SubjectFailed, model.EventValidationFailed)}, nil
	}

	if err := inv.TransitionTo(model.StateValidated, p.Name()); err != nil {
		return nil, err
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	recordTransition(p.metrics, model.StateExtracted, model.StateValidated)

	return &Outcome{Next: successor(env, model.SubjectValidated, model.EventInvoiceValidated)}, nil
}

// lookupVendor resolves the vendor for AI validation. An unknown vendor is
// passed as the zero vendor; validation still runs on the invoice fields.
func (p *ValidationProcessor) lookupVendor(ctx context.Context, inv *model.Invoice) (*model.Vendor, error) {
	if inv.VendorName != "" {
		v, err := p.vendors.FindByName(ctx, inv.VendorName)
		if err == nil {
			inv.VendorID = v.VendorID
			return v, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}
	return &model.Vendor{Name: inv.VendorName}, nil
}

type issue struct {
	code    string
	message string
}

// deterministicChecks applies the non-negotiable field rules.
func deterministicChecks(inv *model.Invoice) []issue {
	var issues []issue
	if inv.InvoiceNumber == "" {
		issues = append(issues, issue{code: "MISSING_FIELD", message: "invoice_number is required"})
	}
	if inv.VendorName == "" {
		issues = append(issues, issue{code: "MISSING_FIELD", message: "vendor_name is required"})
	}
	if inv.Amount <= 0 {
		issues = append(issues, issue{code: "INVALID_AMOUNT", message: fmt.Sprintf("amount must be positive, got %v", inv.Amount)})
	}
	if inv.Currency == "" {
		issues = append(issues, issue{code: "MISSING_FIELD", message: "currency is required"})
	}
	if inv.DepartmentID == "" {
		issues = append(issues, issue{code: "MISSING_FIELD", message: "department_id is required"})
	}
	if inv.IssuedDate != nil && inv.DueDate != nil && inv.DueDate.Before(*inv.IssuedDate) {
		issues = append(issues, issue{code: "INVALID_DATES", message: "due_date precedes issued_date"})
	}
	return issues
}
