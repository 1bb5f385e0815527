package agent

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

// flakyTable wraps a TableStore and fails Upsert while armed. Reads pass
// through so state checks still work against the real table.
type flakyTable struct {
	store.TableStore
	failUpserts bool
}

func (f *flakyTable) Upsert(ctx context.Context, entity store.Entity, partitionKey, sortKey string) (string, error) {
	if f.failUpserts {
		return "", errors.New(errors.ErrCodeUnavailable, "invoice table unavailable")
	}
	return f.TableStore.Upsert(ctx, entity, partitionKey, sortKey)
}

// Auto-approval persists the invoice before touching the budget. When the
// invoice write fails mid-stage the budget must be untouched, and the
// redelivered event must consume it exactly once.
func TestApprovalInvoiceWriteFailureLeavesBudgetUntouched(t *testing.T) {
	ctx := context.Background()

	table := &flakyTable{TableStore: store.NewMemory(store.TableNameInvoices)}
	invoices := repository.NewInvoiceRepository(table)
	vendors := repository.NewVendorRepository(store.NewMemory(store.TableNameVendors))
	budgets := repository.NewBudgetRepository(store.NewMemory(store.TableNameBudgets))

	err := vendors.Upsert(ctx, &model.Vendor{
		VendorID:         "v-1",
		Name:             "Acme Corp",
		Active:           true,
		Approved:         true,
		AutoApprove:      true,
		AutoApproveLimit: 5000,
	})
	if err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	err = budgets.Upsert(ctx, &model.Budget{
		FiscalYear:           "FY2024",
		DepartmentID:         "IT",
		ProjectID:            "PROJ-3001",
		Category:             "Software",
		AllocatedAmount:      100000,
		RemainingAmount:      100000,
		Status:               model.BudgetActive,
		AutoApproveUnder:     2000,
		ApprovalRequiredOver: 5000,
	})
	if err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	err = invoices.Upsert(ctx, &model.Invoice{
		InvoiceID:    "inv-1",
		DepartmentID: "IT",
		VendorName:   "Acme Corp",
		Amount:       1000,
		ProjectID:    "PROJ-3001",
		Category:     "Software",
		BudgetYear:   "FY2024",
		State:        model.StateBudgetChecked,
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	proc := NewApprovalProcessor(invoices, vendors, budgets, nil, zerolog.Nop())
	env := bus.Envelope{
		Subject:       model.SubjectBudgetChecked,
		CorrelationID: "corr-1",
		Body: bus.EventBody{
			InvoiceID:     "inv-1",
			DepartmentID:  "IT",
			EventType:     model.EventBudgetChecked,
			CorrelationID: "corr-1",
		},
	}

	table.failUpserts = true
	if _, err := proc.Process(ctx, env); err == nil {
		t.Fatal("Process succeeded with a failing invoice table")
	}

	budget, err := budgets.Find(ctx, "FY2024", "IT", "PROJ-3001", "Software")
	if err != nil {
		t.Fatalf("Find budget: %v", err)
	}
	if budget.ConsumedAmount != 0 {
		t.Fatalf("consumed = %v after failed write, want 0", budget.ConsumedAmount)
	}

	// Redelivery after the table recovers consumes exactly once.
	table.failUpserts = false
	outcome, err := proc.Process(ctx, env)
	if err != nil {
		t.Fatalf("Process after recovery: %v", err)
	}
	if outcome == nil || outcome.Next == nil || outcome.Next.Subject != model.SubjectApproved {
		t.Fatalf("outcome = %+v, want invoice.approved successor", outcome)
	}

	budget, _ = budgets.Find(ctx, "FY2024", "IT", "PROJ-3001", "Software")
	if budget.ConsumedAmount != 1000 {
		t.Errorf("consumed = %v, want 1000", budget.ConsumedAmount)
	}

	inv, err := invoices.Get(ctx, "IT", "inv-1")
	if err != nil {
		t.Fatalf("Get invoice: %v", err)
	}
	if inv.State != model.StateApproved {
		t.Errorf("state = %s, want APPROVED", inv.State)
	}
}
