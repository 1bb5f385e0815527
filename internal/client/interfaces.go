// Package client holds clients for external collaborators: the LLM-backed
// insights service (extraction, classification, impact analysis, AI
// validation) and the alerting webhook. The workflow treats every
// collaborator as an opaque function returning a structured outcome.
package client

import (
	"context"

	"github.com/luminapay/invoice-lifecycle/internal/model"
)

// DocumentExtractor extracts structured invoice fields from a stored
// document.
type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, fileURL string) (*ExtractionOutcome, error)
}

// BudgetClassifier classifies which department/category an invoice belongs
// to.
type BudgetClassifier interface {
	ClassifyBudgetCategory(ctx context.Context, invoice *model.Invoice) (*ClassificationOutcome, error)
}

// ImpactAnalyzer judges the budget impact and anomaly risk of an invoice
// against its budget.
type ImpactAnalyzer interface {
	AnalyzeBudgetImpact(ctx context.Context, invoice *model.Invoice, budget *model.Budget) (*ImpactOutcome, error)
}

// AIValidator runs model-assisted validation of an invoice against its
// vendor.
type AIValidator interface {
	ValidateWithAI(ctx context.Context, invoice *model.Invoice, vendor *model.Vendor) (*ValidationOutcome, error)
}

// AlertSender delivers an alert. Best-effort: implementations log and swallow
// failures, the returned error exists only for instrumentation.
type AlertSender interface {
	SendAlert(ctx context.Context, recipient, subject, message string) error
}
