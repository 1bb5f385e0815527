package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// BudgetService manages budget records and reporting.
type BudgetService struct {
	budgets *repository.BudgetRepository
	log     zerolog.Logger
}

func NewBudgetService(budgets *repository.BudgetRepository, log zerolog.Logger) *BudgetService {
	return &BudgetService{
		budgets: budgets,
		log:     log.With().Str("component", "budget_service").Logger(),
	}
}

// CreateBudgetRequest allocates a budget line for one fiscal year and
// department/project/category triple.
type CreateBudgetRequest struct {
	FiscalYear   string
	DepartmentID string
	ProjectID    string
	Category     string

	AllocatedAmount      float64
	AutoApproveUnder     float64
	ApprovalRequiredOver float64

	Approver      string
	ApproverEmail string
	CreatedBy     string
}

// CreateBudget validates and stores a budget line. The repository rejects
// key parts containing the compound-key separator.
func (s *BudgetService) CreateBudget(ctx context.Context, req CreateBudgetRequest) (*model.Budget, error) {
	if req.FiscalYear == "" {
		return nil, errors.InvalidInput("fiscal_year", "must not be empty")
	}
	if req.AllocatedAmount <= 0 {
		return nil, errors.InvalidInput("allocated_amount", "must be positive")
	}

	now := time.Now().UTC()
	b := &model.Budget{
		FiscalYear:           req.FiscalYear,
		DepartmentID:         req.DepartmentID,
		ProjectID:            req.ProjectID,
		Category:             req.Category,
		AllocatedAmount:      req.AllocatedAmount,
		Status:               model.BudgetActive,
		AutoApproveUnder:     req.AutoApproveUnder,
		ApprovalRequiredOver: req.ApprovalRequiredOver,
		Approver:             req.Approver,
		ApproverEmail:        req.ApproverEmail,
		LastUpdateBy:         req.CreatedBy,
		CreatedDate:          now,
		UpdatedDate:          now,
	}

	if err := s.budgets.Upsert(ctx, b); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("fiscal_year", b.FiscalYear).
		Str("compound_key", b.CompoundKey).
		Float64("allocated", b.AllocatedAmount).
		Msg("budget created")
	return b, nil
}

// GetBudget loads one exact budget line.
func (s *BudgetService) GetBudget(ctx context.Context, fiscalYear, departmentID, projectID, category string) (*model.Budget, error) {
	return s.budgets.Find(ctx, fiscalYear, departmentID, projectID, category)
}

// SearchBudgets returns the budget lines under a key prefix: all of a
// department, or all of a department's project.
func (s *BudgetService) SearchBudgets(ctx context.Context, fiscalYear string, parts ...string) ([]*model.Budget, error) {
	return s.budgets.Search(ctx, fiscalYear, parts...)
}

// ConsumptionLine is one budget's slice of the consumption report.
type ConsumptionLine struct {
	CompoundKey     string             `json:"compound_key"`
	Status          model.BudgetStatus `json:"status"`
	AllocatedAmount float64            `json:"allocated_amount"`
	ConsumedAmount  float64            `json:"consumed_amount"`
	RemainingAmount float64            `json:"remaining_amount"`
	UtilizationPct  float64            `json:"utilization_pct"`
	InvoiceCount    int                `json:"invoice_count"`
}

// ConsumptionReport aggregates allocation versus consumption across a
// department's budget lines for one fiscal year.
type ConsumptionReport struct {
	FiscalYear      string            `json:"fiscal_year"`
	DepartmentID    string            `json:"department_id"`
	AllocatedAmount float64           `json:"allocated_amount"`
	ConsumedAmount  float64           `json:"consumed_amount"`
	RemainingAmount float64           `json:"remaining_amount"`
	UtilizationPct  float64           `json:"utilization_pct"`
	Lines           []ConsumptionLine `json:"lines"`
}

// Consumption builds the department's consumption report.
func (s *BudgetService) Consumption(ctx context.Context, fiscalYear, departmentID string) (*ConsumptionReport, error) {
	budgets, err := s.budgets.Search(ctx, fiscalYear, departmentID)
	if err != nil {
		return nil, err
	}

	report := &ConsumptionReport{
		FiscalYear:   fiscalYear,
		DepartmentID: departmentID,
		Lines:        make([]ConsumptionLine, 0, len(budgets)),
	}
	for _, b := range budgets {
		line := ConsumptionLine{
			CompoundKey:     b.CompoundKey,
			Status:          b.Status,
			AllocatedAmount: b.AllocatedAmount,
			ConsumedAmount:  b.ConsumedAmount,
			RemainingAmount: b.RemainingAmount,
			InvoiceCount:    b.InvoiceCount,
		}
		if b.AllocatedAmount > 0 {
			line.UtilizationPct = 100 * b.ConsumedAmount / b.AllocatedAmount
		}
		report.Lines = append(report.Lines, line)
		report.AllocatedAmount += b.AllocatedAmount
		report.ConsumedAmount += b.ConsumedAmount
		report.RemainingAmount += b.RemainingAmount
	}
	if report.AllocatedAmount > 0 {
		report.UtilizationPct = 100 * report.ConsumedAmount / report.AllocatedAmount
	}
	return report, nil
}
