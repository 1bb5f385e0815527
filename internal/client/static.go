package client

import (
	"context"

	"github.com/luminapay/invoice-lifecycle/internal/model"
)

// Static collaborators are deterministic in-process implementations used when
// no insights endpoint is configured (local development) and by tests. They
// approximate the external service with simple rules.

// StaticExtractor trusts the fields already captured at intake.
type StaticExtractor struct{}

func (StaticExtractor) ExtractDocument(_ context.Context, fileURL string) (*ExtractionOutcome, error) {
	return &ExtractionOutcome{
		Fields:     map[string]any{"source": fileURL},
		Confidence: 1.0,
	}, nil
}

// StaticClassifier echoes the invoice's declared department and category.
type StaticClassifier struct{}

func (StaticClassifier) ClassifyBudgetCategory(_ context.Context, invoice *model.Invoice) (*ClassificationOutcome, error) {
	return &ClassificationOutcome{
		Department: invoice.DepartmentID,
		Category:   invoice.Category,
		Confidence: 1.0,
		Reasoning:  "declared fields accepted without model review",
	}, nil
}

// StaticAnalyzer rates impact by the share of remaining budget the invoice
// consumes.
type StaticAnalyzer struct{}

func (StaticAnalyzer) AnalyzeBudgetImpact(_ context.Context, invoice *model.Invoice, budget *model.Budget) (*ImpactOutcome, error) {
	out := &ImpactOutcome{Impact: model.ImpactLow, Risk: model.RiskNone, Confidence: 1.0}
	if budget.RemainingAmount <= 0 || invoice.Amount > budget.RemainingAmount {
		out.Impact = model.ImpactHigh
		out.Risk = model.RiskHigh
		out.Explanation = "invoice exceeds remaining budget"
		return out, nil
	}
	if invoice.Amount > budget.RemainingAmount/2 {
		out.Impact = model.ImpactModerate
		out.Risk = model.RiskWarning
		out.Explanation = "invoice consumes more than half of the remaining budget"
	}
	return out, nil
}

// StaticValidator passes every invoice; deterministic validation still runs
// ahead of it in the validation stage.
type StaticValidator struct{}

func (StaticValidator) ValidateWithAI(_ context.Context, _ *model.Invoice, _ *model.Vendor) (*ValidationOutcome, error) {
	return &ValidationOutcome{Passed: true}, nil
}
