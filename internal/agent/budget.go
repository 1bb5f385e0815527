package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/decision"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// BudgetProcessor consumes invoice.validated events and delegates the whole
// stage to the impact evaluator. A missing budget is a processing error: the
// message dead-letters and the invoice stays VALIDATED for operator action.
type BudgetProcessor struct {
	invoices  *repository.InvoiceRepository
	evaluator *decision.ImpactEvaluator
	log       zerolog.Logger
}

func NewBudgetProcessor(invoices *repository.InvoiceRepository, evaluator *decision.ImpactEvaluator, log zerolog.Logger) *BudgetProcessor {
	return &BudgetProcessor{
		invoices:  invoices,
		evaluator: evaluator,
		log:       log.With().Str("agent", "budget-agent").Logger(),
	}
}

func (p *BudgetProcessor) Name() string         { return "budget-agent" }
func (p *BudgetProcessor) Subscription() string { return model.SubscriptionBudget }

func (p *BudgetProcessor) Process(ctx context.Context, env bus.Envelope) (*Outcome, error) {
	inv, ok, err := loadForStage(ctx, p.invoices, env, model.StateValidated, p.log)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{}, nil
	}

	analysis, err := p.evaluator.Evaluate(ctx, inv, env.CorrelationID)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("impact", string(analysis.Impact)).
		Str("risk", string(analysis.Risk)).
		Msg("budget check complete")

	return &Outcome{Next: successor(env, model.SubjectBudgetChecked, model.EventBudgetChecked)}, nil
}
