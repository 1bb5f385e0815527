package repository

import (
	"context"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

// InvoiceRepository handles invoice persistence.
// Partition key: department id. Sort key: invoice id.
type InvoiceRepository struct {
	table store.TableStore
}

// NewInvoiceRepository creates a new invoice repository.
func NewInvoiceRepository(table store.TableStore) *InvoiceRepository {
	return &InvoiceRepository{table: table}
}

// Get loads one invoice. Returns a NOT_FOUND domain error when absent.
func (r *InvoiceRepository) Get(ctx context.Context, departmentID, invoiceID string) (*model.Invoice, error) {
	e, err := r.table.Get(ctx, departmentID, invoiceID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound("invoice", invoiceID)
		}
		return nil, err
	}

	var inv model.Invoice
	if err := fromEntity(e, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Upsert writes the invoice, last-writer-wins. Replaying the same write is
// safe: the row is keyed by invoice id, not appended.
func (r *InvoiceRepository) Upsert(ctx context.Context, inv *model.Invoice) error {
	if inv.DepartmentID == "" || inv.InvoiceID == "" {
		return errors.InvalidInput("invoice", "department_id and invoice_id are required")
	}
	e, err := toEntity(inv)
	if err != nil {
		return err
	}
	_, err = r.table.Upsert(ctx, e, inv.DepartmentID, inv.InvoiceID)
	return err
}

// ListByDepartment returns every invoice in a department, ordered by id.
func (r *InvoiceRepository) ListByDepartment(ctx context.Context, departmentID string) ([]*model.Invoice, error) {
	// The sort key space is open-ended; "\x7f" sorts above any printable id.
	entities, err := r.table.QueryRange(ctx, departmentID, "", "\x7f")
	if err != nil {
		return nil, err
	}
	return decodeInvoices(entities)
}

// FindDuplicates returns stored invoices with the same invoice number and
// vendor name within a department, excluding the given invoice id.
func (r *InvoiceRepository) FindDuplicates(ctx context.Context, inv *model.Invoice) ([]*model.Invoice, error) {
	entities, err := r.table.QueryByFilters(ctx, []store.Filter{
		store.Eq("invoice_number", inv.InvoiceNumber),
		store.Eq("vendor_name", inv.VendorName),
		store.Eq("department_id", inv.DepartmentID),
	}, store.JoinAnd)
	if err != nil {
		return nil, err
	}

	invoices, err := decodeInvoices(entities)
	if err != nil {
		return nil, err
	}

	out := invoices[:0]
	for _, candidate := range invoices {
		if candidate.InvoiceID != inv.InvoiceID {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func decodeInvoices(entities []store.Entity) ([]*model.Invoice, error) {
	out := make([]*model.Invoice, 0, len(entities))
	for _, e := range entities {
		var inv model.Invoice
		if err := fromEntity(e, &inv); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, nil
}
