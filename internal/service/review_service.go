package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// Review actions accepted by Resolve.
const (
	ReviewActionApprove = "approve"
	ReviewActionReject  = "reject"
)

// ReviewService resolves invoices parked in MANUAL_REVIEW. Approval rejoins
// the workflow by publishing invoice.approved; rejection is terminal.
type ReviewService struct {
	invoices *repository.InvoiceRepository
	budgets  *repository.BudgetRepository
	pub      bus.Publisher
	metrics  *observability.Metrics
	log      zerolog.Logger
}

// NewReviewService creates the review service. metrics may be nil.
func NewReviewService(invoices *repository.InvoiceRepository, budgets *repository.BudgetRepository, pub bus.Publisher, metrics *observability.Metrics, log zerolog.Logger) *ReviewService {
	return &ReviewService{
		invoices: invoices,
		budgets:  budgets,
		pub:      pub,
		metrics:  metrics,
		log:      log.With().Str("component", "review_service").Logger(),
	}
}

// ReviewRequest is a human decision on a MANUAL_REVIEW invoice.
type ReviewRequest struct {
	DepartmentID string
	InvoiceID    string
	Action       string
	Reviewer     string
	Notes        string
}

// Resolve applies the reviewer's decision. Approving consumes the budget,
// exactly as auto-approval would have.
func (s *ReviewService) Resolve(ctx context.Context, req ReviewRequest) (*model.Invoice, error) {
	if req.Reviewer == "" {
		return nil, errors.InvalidInput("reviewer", "must not be empty")
	}

	inv, err := s.invoices.Get(ctx, req.DepartmentID, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.State != model.StateManualReview {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"invoice %s is %s, only MANUAL_REVIEW invoices can be reviewed", req.InvoiceID, inv.State)
	}

	switch req.Action {
	case ReviewActionApprove:
		return s.approve(ctx, inv, req)
	case ReviewActionReject:
		return s.reject(ctx, inv, req)
	default:
		return nil, errors.InvalidInput("action", "must be approve or reject")
	}
}

func (s *ReviewService) approve(ctx context.Context, inv *model.Invoice, req ReviewRequest) (*model.Invoice, error) {
	if err := inv.TransitionTo(model.StateApproved, req.Reviewer); err != nil {
		return nil, err
	}
	inv.AppendWarning(req.Reviewer, noteOr(req.Notes, "approved after manual review"), "MANUAL_APPROVAL")

	budget, err := s.budgets.Find(ctx, inv.BudgetYear, inv.DepartmentID, inv.ProjectID, inv.Category)
	if err != nil {
		return nil, err
	}
	// Persist the APPROVED invoice before consuming the budget so a retried
	// approval cannot consume twice.
	if err := s.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	budget.Consume(inv.Amount, req.Reviewer)
	if err := s.budgets.Upsert(ctx, budget); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(model.StateManualReview), string(model.StateApproved))
	}

	correlationID := uuid.NewString()
	err = s.pub.Publish(ctx, bus.Envelope{
		Subject:       model.SubjectApproved,
		CorrelationID: correlationID,
		Body: bus.EventBody{
			InvoiceID:     inv.InvoiceID,
			DepartmentID:  inv.DepartmentID,
			EventType:     model.EventInvoiceApproved,
			CorrelationID: correlationID,
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("invoice_id", inv.InvoiceID).Msg("approval publish failed")
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "invoice approved but workflow not resumed")
	}

	s.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("reviewer", req.Reviewer).
		Msg("invoice approved after review")
	return inv, nil
}

func (s *ReviewService) reject(ctx context.Context, inv *model.Invoice, req ReviewRequest) (*model.Invoice, error) {
	if err := inv.TransitionTo(model.StateRejected, req.Reviewer); err != nil {
		return nil, err
	}
	inv.AppendError(req.Reviewer, noteOr(req.Notes, "rejected after manual review"), "MANUAL_REJECTION")
	if err := s.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(model.StateManualReview), string(model.StateRejected))
	}

	s.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("reviewer", req.Reviewer).
		Msg("invoice rejected after review")
	return inv, nil
}

func noteOr(note, fallback string) string {
	if note != "" {
		return note
	}
	return fallback
}
