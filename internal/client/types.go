package client

import (
	"time"

	"github.com/luminapay/invoice-lifecycle/internal/model"
)

// ExtractionOutcome is the structured result of document extraction.
type ExtractionOutcome struct {
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	VendorName    string         `json:"vendor_name,omitempty"`
	Amount        float64        `json:"amount,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	TaxAmount     float64        `json:"tax_amount,omitempty"`
	IssuedDate    *time.Time     `json:"issued_date,omitempty"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
	Confidence    float64        `json:"confidence"`
}

// ClassificationOutcome is the classifier's view of an invoice.
type ClassificationOutcome struct {
	Department string  `json:"department"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// ImpactOutcome is the impact/anomaly analysis of an invoice against its
// budget.
type ImpactOutcome struct {
	Impact      model.BudgetImpact `json:"impact"`
	Risk        model.RiskLevel    `json:"risk"`
	Confidence  float64            `json:"confidence"`
	Explanation string             `json:"explanation,omitempty"`
}

// ValidationOutcome is the result of AI-assisted validation.
type ValidationOutcome struct {
	Passed             bool     `json:"passed"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
	Errors             []string `json:"errors,omitempty"`
}
