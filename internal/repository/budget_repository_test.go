package repository

import (
	"context"
	"testing"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

func seedBudgets(t *testing.T) *BudgetRepository {
	t.Helper()
	repo := NewBudgetRepository(store.NewMemory(store.TableNameBudgets))
	ctx := context.Background()

	for _, key := range [][3]string{
		{"IT", "PROJ-3001", "Software"},
		{"IT", "PROJ-3001", "Hardware"},
		{"IT", "PROJ-3002", "Software"},
		{"IT", "PROJ-30011", "Software"},
		{"MARKETING", "PROJ-9001", "Software"},
	} {
		err := repo.Upsert(ctx, &model.Budget{
			FiscalYear:      "FY2024",
			DepartmentID:    key[0],
			ProjectID:       key[1],
			Category:        key[2],
			AllocatedAmount: 10000,
			Status:          model.BudgetActive,
		})
		if err != nil {
			t.Fatalf("Upsert %v: %v", key, err)
		}
	}
	return repo
}

func TestBudgetFind(t *testing.T) {
	repo := seedBudgets(t)
	ctx := context.Background()

	b, err := repo.Find(ctx, "FY2024", "IT", "PROJ-3001", "Software")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if b.CompoundKey != "IT:PROJ-3001:Software" {
		t.Errorf("compound key = %q", b.CompoundKey)
	}

	_, err = repo.Find(ctx, "FY2024", "IT", "PROJ-3001", "Travel")
	if !errors.IsNotFound(err) {
		t.Errorf("unknown category: err = %v, want not found", err)
	}
	_, err = repo.Find(ctx, "FY2025", "IT", "PROJ-3001", "Software")
	if !errors.IsNotFound(err) {
		t.Errorf("other fiscal year: err = %v, want not found", err)
	}
}

func TestBudgetSearchPrefixes(t *testing.T) {
	repo := seedBudgets(t)
	ctx := context.Background()

	byDept, err := repo.Search(ctx, "FY2024", "IT")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(byDept) != 4 {
		t.Errorf("department prefix returned %d, want 4", len(byDept))
	}

	// PROJ-3001 must not match PROJ-30011.
	byProject, err := repo.Search(ctx, "FY2024", "IT", "PROJ-3001")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(byProject) != 2 {
		t.Fatalf("project prefix returned %d, want 2", len(byProject))
	}
	for _, b := range byProject {
		if b.ProjectID != "PROJ-3001" {
			t.Errorf("project prefix matched %q", b.CompoundKey)
		}
	}

	// Three parts degenerate to an exact lookup.
	exact, err := repo.Search(ctx, "FY2024", "IT", "PROJ-3001", "Hardware")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(exact) != 1 || exact[0].Category != "Hardware" {
		t.Errorf("exact search = %+v", exact)
	}
	missing, err := repo.Search(ctx, "FY2024", "IT", "PROJ-3001", "Travel")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("exact search for missing key = %+v", missing)
	}

	if _, err := repo.Search(ctx, "FY2024"); errors.CodeOf(err) != errors.ErrCodeInvalidInput {
		t.Errorf("no parts: err = %v", err)
	}
}

func TestBudgetUpsertRejectsSeparatorInKeyParts(t *testing.T) {
	repo := NewBudgetRepository(store.NewMemory(store.TableNameBudgets))
	ctx := context.Background()

	bad := []*model.Budget{
		{FiscalYear: "FY2024", DepartmentID: "IT:OPS", ProjectID: "P1", Category: "Software", AllocatedAmount: 1},
		{FiscalYear: "FY2024", DepartmentID: "IT", ProjectID: "P:1", Category: "Software", AllocatedAmount: 1},
		{FiscalYear: "FY2024", DepartmentID: "IT", ProjectID: "P1", Category: "", AllocatedAmount: 1},
		{DepartmentID: "IT", ProjectID: "P1", Category: "Software", AllocatedAmount: 1},
	}
	for _, b := range bad {
		if err := repo.Upsert(ctx, b); errors.CodeOf(err) != errors.ErrCodeInvalidInput {
			t.Errorf("budget %+v: err = %v, want INVALID_INPUT", b, err)
		}
	}
}

func TestInvoiceFindDuplicates(t *testing.T) {
	repo := NewInvoiceRepository(store.NewMemory(store.TableNameInvoices))
	ctx := context.Background()

	seed := []*model.Invoice{
		{InvoiceID: "inv-1", DepartmentID: "IT", InvoiceNumber: "INV-1001", VendorName: "Acme Corp"},
		{InvoiceID: "inv-2", DepartmentID: "IT", InvoiceNumber: "INV-1001", VendorName: "Acme Corp"},
		{InvoiceID: "inv-3", DepartmentID: "IT", InvoiceNumber: "INV-1001", VendorName: "Globex"},
		{InvoiceID: "inv-4", DepartmentID: "MARKETING", InvoiceNumber: "INV-1001", VendorName: "Acme Corp"},
	}
	for _, inv := range seed {
		inv.State = model.StateCreated
		if err := repo.Upsert(ctx, inv); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	dups, err := repo.FindDuplicates(ctx, seed[0])
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(dups) != 1 || dups[0].InvoiceID != "inv-2" {
		t.Fatalf("duplicates = %+v", dups)
	}
}

func TestVendorFindByName(t *testing.T) {
	repo := NewVendorRepository(store.NewMemory(store.TableNameVendors))
	ctx := context.Background()

	err := repo.Upsert(ctx, &model.Vendor{VendorID: "v-1", Name: "Acme Corp", Active: true})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	v, err := repo.FindByName(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if v.VendorID != "v-1" {
		t.Errorf("vendor = %+v", v)
	}

	if _, err := repo.FindByName(ctx, "Globex"); !errors.IsNotFound(err) {
		t.Errorf("unknown vendor: err = %v", err)
	}
}
