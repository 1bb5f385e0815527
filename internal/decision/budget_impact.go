package decision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/client"
	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// ImpactEvaluator orchestrates the budget-check stage: classify the invoice,
// look up its budget, run impact/anomaly analysis, persist the combined
// snapshot and raise a non-blocking alert on high impact or high risk.
type ImpactEvaluator struct {
	invoices   *repository.InvoiceRepository
	budgets    *repository.BudgetRepository
	classifier client.BudgetClassifier
	analyzer   client.ImpactAnalyzer
	alerts     client.AlertSender
	agentName  string
	metrics    *observability.Metrics
	log        zerolog.Logger
}

// NewImpactEvaluator wires the evaluator's collaborators. metrics may be nil.
func NewImpactEvaluator(
	invoices *repository.InvoiceRepository,
	budgets *repository.BudgetRepository,
	classifier client.BudgetClassifier,
	analyzer client.ImpactAnalyzer,
	alerts client.AlertSender,
	agentName string,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *ImpactEvaluator {
	return &ImpactEvaluator{
		invoices:   invoices,
		budgets:    budgets,
		classifier: classifier,
		analyzer:   analyzer,
		alerts:     alerts,
		agentName:  agentName,
		metrics:    metrics,
		log:        log.With().Str("component", "impact_evaluator").Logger(),
	}
}

// Evaluate runs the full budget check for an invoice already loaded by the
// stage. On success the invoice has been transitioned to BUDGET_CHECKED and
// persisted. A classifier or analyzer failure propagates without persisting
// any partial state.
func (e *ImpactEvaluator) Evaluate(ctx context.Context, invoice *model.Invoice, correlationID string) (*model.BudgetAnalysis, error) {
	classification, err := e.classifier.ClassifyBudgetCategory(ctx, invoice)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "budget classification failed")
	}

	if classification.Category != "" && classification.Category != invoice.Category {
		invoice.AppendWarning(e.agentName,
			fmt.Sprintf("classifier suggests category %q, invoice declares %q",
				classification.Category, invoice.Category),
			"CATEGORY_MISMATCH")
	}

	budget, err := e.budgets.Find(ctx, invoice.BudgetYear, invoice.DepartmentID, invoice.ProjectID, invoice.Category)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound,
				"no budget allocated for %s %s/%s/%s",
				invoice.BudgetYear, invoice.DepartmentID, invoice.ProjectID, invoice.Category)
		}
		return nil, err
	}

	impact, err := e.analyzer.AnalyzeBudgetImpact(ctx, invoice, budget)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "budget impact analysis failed")
	}

	analysis := &model.BudgetAnalysis{
		ClassifiedDepartment: classification.Department,
		ClassifiedCategory:   classification.Category,
		Impact:               impact.Impact,
		Risk:                 impact.Risk,
		Confidence:           impact.Confidence,
		Explanation:          impact.Explanation,
	}

	invoice.BudgetAnalysis = analysis
	if err := invoice.TransitionTo(model.StateBudgetChecked, e.agentName); err != nil {
		return nil, err
	}
	if err := e.invoices.Upsert(ctx, invoice); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordTransition(string(model.StateValidated), string(model.StateBudgetChecked))
	}

	if analysis.Impact == model.ImpactHigh || analysis.Risk == model.RiskHigh {
		e.raiseAlert(ctx, invoice, budget, analysis, correlationID)
	}

	return analysis, nil
}

// raiseAlert notifies the budget approver. Failures are logged and swallowed;
// an undeliverable alert never fails the stage.
func (e *ImpactEvaluator) raiseAlert(ctx context.Context, invoice *model.Invoice, budget *model.Budget, analysis *model.BudgetAnalysis, correlationID string) {
	if e.metrics != nil {
		e.metrics.RecordBudgetAlert(string(analysis.Impact), string(analysis.Risk))
	}

	recipient := budget.ApproverEmail
	if recipient == "" {
		recipient = budget.Approver
	}

	subject := fmt.Sprintf("Budget alert: invoice %s (%s)", invoice.InvoiceID, invoice.DepartmentID)
	message := fmt.Sprintf("Invoice %s for %.2f %s against budget %s/%s: impact=%s risk=%s. %s",
		invoice.InvoiceID, invoice.Amount, invoice.Currency,
		budget.FiscalYear, budget.CompoundKey,
		analysis.Impact, analysis.Risk, analysis.Explanation)

	if err := e.alerts.SendAlert(ctx, recipient, subject, message); err != nil {
		e.log.Warn().Err(err).
			Str("invoice_id", invoice.InvoiceID).
			Str("correlation_id", correlationID).
			Msg("budget alert delivery failed (non-fatal)")
	}
}
