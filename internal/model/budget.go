package model

import "time"

// BudgetStatus gates whether a budget can accept new spend.
type BudgetStatus string

const (
	BudgetActive BudgetStatus = "ACTIVE"
	BudgetFrozen BudgetStatus = "FROZEN"
	BudgetClosed BudgetStatus = "CLOSED"
)

// Budget tracks an allocation for one (department, project, category) within
// a fiscal year. Partition key: FiscalYear (e.g. "FY2024"). Sort key:
// CompoundKey (department:project:category).
type Budget struct {
	BudgetID       string `json:"budget_id"`
	FiscalYear     string `json:"fiscal_year"`
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name,omitempty"`
	ProjectID      string `json:"project_id"`
	Category       string `json:"category"`
	CompoundKey    string `json:"compound_key"`

	AllocatedAmount float64 `json:"allocated_amount"`
	ConsumedAmount  float64 `json:"consumed_amount"`
	RemainingAmount float64 `json:"remaining_amount"`

	Status BudgetStatus `json:"status"`

	// Zero means the threshold is not configured.
	AutoApproveUnder     float64 `json:"auto_approve_under,omitempty"`
	ApprovalRequiredOver float64 `json:"approval_required_over,omitempty"`

	Approver      string `json:"approver,omitempty"`
	ApproverEmail string `json:"approver_email,omitempty"`

	InvoiceCount    int        `json:"invoice_count,omitempty"`
	LastInvoiceDate *time.Time `json:"last_invoice_date,omitempty"`
	LastUpdateBy    string     `json:"last_update_by,omitempty"`

	CreatedDate time.Time `json:"created_date"`
	UpdatedDate time.Time `json:"updated_date"`
}

// Recalculate restores the remaining = allocated - consumed invariant.
// Call after any change to ConsumedAmount or AllocatedAmount.
func (b *Budget) Recalculate() {
	b.RemainingAmount = b.AllocatedAmount - b.ConsumedAmount
}

// Consume applies an invoice amount against the budget and updates the
// derived fields.
func (b *Budget) Consume(amount float64, by string) {
	now := time.Now().UTC()
	b.ConsumedAmount += amount
	b.InvoiceCount++
	b.LastInvoiceDate = &now
	b.LastUpdateBy = by
	b.UpdatedDate = now
	b.Recalculate()
}
