package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/decision"
	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// ApprovalProcessor consumes invoice.budget_checked events and runs the
// approval threshold tree. Auto-approval consumes the budget; a rejected
// decision fails the invoice (retryable through the retry endpoint); every
// other outcome is routed to MANUAL_REVIEW for a human decision.
type ApprovalProcessor struct {
	invoices *repository.InvoiceRepository
	vendors  *repository.VendorRepository
	budgets  *repository.BudgetRepository
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewApprovalProcessor(invoices *repository.InvoiceRepository, vendors *repository.VendorRepository, budgets *repository.BudgetRepository, metrics *observability.Metrics, log zerolog.Logger) *ApprovalProcessor {
	return &ApprovalProcessor{
		invoices: invoices,
		vendors:  vendors,
		budgets:  budgets,
		metrics:  metrics,
		log:      log.With().Str("agent", "approval-agent").Logger(),
	}
}

func (p *ApprovalProcessor) Name() string         { return "approval-agent" }
func (p *ApprovalProcessor) Subscription() string { return model.SubscriptionApproval }

func (p *ApprovalProcessor) Process(ctx context.Context, env bus.Envelope) (*Outcome, error) {
	inv, ok, err := loadForStage(ctx, p.invoices, env, model.StateBudgetChecked, p.log)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{}, nil
	}

	vendor, err := p.lookupVendor(ctx, inv)
	if err != nil {
		return nil, err
	}

	budget, err := p.budgets.Find(ctx, inv.BudgetYear, inv.DepartmentID, inv.ProjectID, inv.Category)
	if err != nil {
		return nil, err
	}

	d := decision.Decide(inv, vendor, budget)
	inv.ApprovalDecision = &d

	p.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("decision", string(d.Status)).
		Str("reason", d.Reason).
		Msg("approval decided")

	switch d.Status {
	case model.AutoApproved:
		return p.approve(ctx, env, inv, budget)
	case model.Rejected:
		return p.reject(ctx, env, inv, d.Reason)
	default:
		return p.parkForReview(ctx, env, inv)
	}
}

// approve persists the APPROVED invoice before consuming the budget. If the
// consumption write fails the message dead-letters with the invoice already
// APPROVED and the state check keeps a re-drive from consuming twice; the
// reverse order would double-consume on every re-drive.
func (p *ApprovalProcessor) approve(ctx context.Context, env bus.Envelope, inv *model.Invoice, budget *model.Budget) (*Outcome, error) {
	if err := inv.TransitionTo(model.StateApproved, p.Name()); err != nil {
		return nil, err
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	budget.Consume(inv.Amount, p.Name())
	if err := p.budgets.Upsert(ctx, budget); err != nil {
		return nil, err
	}
	recordTransition(p.metrics, model.StateBudgetChecked, model.StateApproved)
	return &Outcome{Next: successor(env, model.SubjectApproved, model.EventInvoiceApproved)}, nil
}

// reject fails the invoice with the decision's reason. FAILED invoices
// re-enter the workflow only through the explicit retry endpoint.
func (p *ApprovalProcessor) reject(ctx context.Context, env bus.Envelope, inv *model.Invoice, reason string) (*Outcome, error) {
	inv.AppendError(p.Name(), reason, "AUTO_REJECTION")
	if err := inv.TransitionTo(model.StateFailed, p.Name()); err != nil {
		return nil, err
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	recordTransition(p.metrics, model.StateBudgetChecked, model.StateFailed)
	return &Outcome{Next: successor(env, model.SubjectFailed, model.EventApprovalRejected)}, nil
}

func (p *ApprovalProcessor) parkForReview(ctx context.Context, env bus.Envelope, inv *model.Invoice) (*Outcome, error) {
	if err := inv.TransitionTo(model.StateManualReview, p.Name()); err != nil {
		return nil, err
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	recordTransition(p.metrics, model.StateBudgetChecked, model.StateManualReview)
	return &Outcome{Next: successor(env, model.SubjectManualReview, model.EventManualReviewRequired)}, nil
}

// lookupVendor resolves the vendor by id, falling back to name. An unknown
// vendor is not an error: the zero vendor fails the auto-approval criteria
// and the decision tree routes the invoice to review.
func (p *ApprovalProcessor) lookupVendor(ctx context.Context, inv *model.Invoice) (*model.Vendor, error) {
	if inv.VendorID != "" {
		v, err := p.vendors.Get(ctx, inv.VendorID)
		if err == nil {
			return v, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}
	if inv.VendorName != "" {
		v, err := p.vendors.FindByName(ctx, inv.VendorName)
		if err == nil {
			return v, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}
	p.log.Warn().
		Str("invoice_id", inv.InvoiceID).
		Str("vendor_name", inv.VendorName).
		Msg("vendor not found, treating as unapproved")
	return &model.Vendor{Name: inv.VendorName}, nil
}
