// Package service holds the operations exposed over the API surface:
// invoice intake and retry, manual review resolution and budget management.
// The stage agents live in internal/agent; services only start, inspect or
// re-kick the workflow.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// Choreographer starts the workflow: it persists a freshly submitted
// invoice and announces invoice.created. From there the stage agents carry
// the invoice without any central coordination.
type Choreographer struct {
	invoices *repository.InvoiceRepository
	pub      bus.Publisher
	metrics  *observability.Metrics
	log      zerolog.Logger
}

// NewChoreographer creates the intake service. metrics may be nil.
func NewChoreographer(invoices *repository.InvoiceRepository, pub bus.Publisher, metrics *observability.Metrics, log zerolog.Logger) *Choreographer {
	return &Choreographer{
		invoices: invoices,
		pub:      pub,
		metrics:  metrics,
		log:      log.With().Str("component", "choreographer").Logger(),
	}
}

// SubmitInvoiceRequest is an invoice as submitted through the intake API.
// Everything beyond the department is optional; extraction fills the gaps.
type SubmitInvoiceRequest struct {
	DepartmentID  string
	InvoiceNumber string
	VendorName    string
	Amount        float64
	Currency      string
	Description   string

	ProjectID  string
	Category   string
	BudgetYear string

	PaymentTerms string
	RawFileURL   string
	FileName     string
	FileType     string
	FileSize     int64

	SubmittedBy string
}

// HandleIntake persists a new CREATED invoice and publishes invoice.created.
// A publish failure is returned to the caller; the invoice stays persisted
// and can be re-kicked through RetryFailed once the bus recovers.
func (c *Choreographer) HandleIntake(ctx context.Context, req SubmitInvoiceRequest) (*model.Invoice, error) {
	if req.DepartmentID == "" {
		return nil, errors.InvalidInput("department_id", "must not be empty")
	}

	now := time.Now().UTC()
	inv := &model.Invoice{
		InvoiceID:      uuid.NewString(),
		DepartmentID:   req.DepartmentID,
		InvoiceNumber:  req.InvoiceNumber,
		VendorName:     req.VendorName,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
		ProjectID:      req.ProjectID,
		Category:       req.Category,
		BudgetYear:     req.BudgetYear,
		PaymentTerms:   req.PaymentTerms,
		RawFileURL:     req.RawFileURL,
		FileName:       req.FileName,
		FileType:       req.FileType,
		FileSize:       req.FileSize,
		State:          model.StateCreated,
		StateChangedAt: now,
		StateChangedBy: req.SubmittedBy,
		CreatedDate:    now,
		UpdatedDate:    now,
	}

	if err := c.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}

	if err := c.announce(ctx, inv); err != nil {
		c.log.Error().Err(err).Str("invoice_id", inv.InvoiceID).Msg("intake publish failed")
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "invoice stored but workflow not started")
	}

	c.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("department_id", inv.DepartmentID).
		Msg("invoice accepted")
	return inv, nil
}

// GetInvoice loads one invoice.
func (c *Choreographer) GetInvoice(ctx context.Context, departmentID, invoiceID string) (*model.Invoice, error) {
	return c.invoices.Get(ctx, departmentID, invoiceID)
}

// ListInvoices returns all invoices of a department.
func (c *Choreographer) ListInvoices(ctx context.Context, departmentID string) ([]*model.Invoice, error) {
	return c.invoices.ListByDepartment(ctx, departmentID)
}

// RetryFailed moves a FAILED invoice back to CREATED and republishes
// invoice.created. Retry is always an explicit external action; the agents
// never retry on their own.
func (c *Choreographer) RetryFailed(ctx context.Context, departmentID, invoiceID, requestedBy string) (*model.Invoice, error) {
	inv, err := c.invoices.Get(ctx, departmentID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.State != model.StateFailed {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"invoice %s is %s, only FAILED invoices can be retried", invoiceID, inv.State)
	}

	if err := inv.TransitionTo(model.StateCreated, requestedBy); err != nil {
		return nil, err
	}
	inv.AppendWarning(requestedBy, "retry requested", "RETRY")
	if err := c.invoices.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordTransition(string(model.StateFailed), string(model.StateCreated))
	}

	if err := c.announce(ctx, inv); err != nil {
		c.log.Error().Err(err).Str("invoice_id", inv.InvoiceID).Msg("retry publish failed")
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "invoice reset but workflow not restarted")
	}
	return inv, nil
}

func (c *Choreographer) announce(ctx context.Context, inv *model.Invoice) error {
	correlationID := uuid.NewString()
	return c.pub.Publish(ctx, bus.Envelope{
		Subject:       model.SubjectCreated,
		CorrelationID: correlationID,
		Body: bus.EventBody{
			InvoiceID:     inv.InvoiceID,
			DepartmentID:  inv.DepartmentID,
			EventType:     model.EventAPIInvoiceGenerated,
			CorrelationID: correlationID,
		},
	})
}
