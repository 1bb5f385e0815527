package repository

import (
	"context"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

// BudgetRepository handles budget persistence. Partition key: fiscal year
// (e.g. "FY2024"). Sort key: the compound key department:project:category.
type BudgetRepository struct {
	table store.TableStore
}

// NewBudgetRepository creates a new budget repository.
func NewBudgetRepository(table store.TableStore) *BudgetRepository {
	return &BudgetRepository{table: table}
}

// Find loads the budget for an exact (fiscal year, department, project,
// category) address. Returns NOT_FOUND when no budget is allocated there.
func (r *BudgetRepository) Find(ctx context.Context, fiscalYear, departmentID, projectID, category string) (*model.Budget, error) {
	key, err := store.BuildCompoundKey(departmentID, projectID, category)
	if err != nil {
		return nil, err
	}

	e, err := r.table.Get(ctx, fiscalYear, key)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound("budget", fiscalYear+"/"+key)
		}
		return nil, err
	}

	var b model.Budget
	if err := fromEntity(e, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Search returns all budgets whose compound key extends the given prefix
// parts within a fiscal year: (department) or (department, project). With all
// three parts it degenerates to an exact lookup.
func (r *BudgetRepository) Search(ctx context.Context, fiscalYear string, parts ...string) ([]*model.Budget, error) {
	if len(parts) == 0 || len(parts) > 3 {
		return nil, errors.InvalidInput("search", "between one and three key parts are required")
	}

	if len(parts) == 3 {
		b, err := r.Find(ctx, fiscalYear, parts[0], parts[1], parts[2])
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return []*model.Budget{b}, nil
	}

	lower, upper, err := store.PrefixRange(parts...)
	if err != nil {
		return nil, err
	}

	entities, err := r.table.QueryRange(ctx, fiscalYear, lower, upper)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Budget, 0, len(entities))
	for _, e := range entities {
		var b model.Budget
		if err := fromEntity(e, &b); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, nil
}

// Upsert writes the budget under its compound key, validating every key
// component so a reserved separator can never corrupt the addressing scheme.
func (r *BudgetRepository) Upsert(ctx context.Context, b *model.Budget) error {
	if b.FiscalYear == "" {
		return errors.InvalidInput("budget", "fiscal_year is required")
	}
	key, err := store.BuildCompoundKey(b.DepartmentID, b.ProjectID, b.Category)
	if err != nil {
		return err
	}
	b.CompoundKey = key
	b.Recalculate()

	e, err := toEntity(b)
	if err != nil {
		return err
	}
	_, err = r.table.Upsert(ctx, e, b.FiscalYear, key)
	return err
}
