package model

// ApprovalStatus is the outcome class of the approval decision tree.
type ApprovalStatus string

const (
	AutoApproved           ApprovalStatus = "Auto-Approved"
	ManualApprovalRequired ApprovalStatus = "Manual Approval Required"
	Rejected               ApprovalStatus = "Rejected"
)

// ApprovalDecision is the result of evaluating an invoice against vendor and
// budget policy. It is snapshotted onto the invoice, never stored on its own.
type ApprovalDecision struct {
	Status            ApprovalStatus `json:"status"`
	Reason            string         `json:"reason,omitempty"`
	SuggestedApprover string         `json:"suggested_approver,omitempty"`
}

// BudgetImpact classifies how hard an invoice hits its budget.
type BudgetImpact string

const (
	ImpactLow      BudgetImpact = "Low"
	ImpactModerate BudgetImpact = "Moderate"
	ImpactHigh     BudgetImpact = "High"
)

// RiskLevel classifies the anomaly signal from the analyzer.
type RiskLevel string

const (
	RiskNone    RiskLevel = "None"
	RiskWarning RiskLevel = "Warning"
	RiskHigh    RiskLevel = "High"
)

// BudgetAnalysis is the combined outcome of the budget-check stage:
// the classifier's view of the invoice plus the impact/anomaly analysis.
// Snapshotted onto the invoice.
type BudgetAnalysis struct {
	ClassifiedDepartment string       `json:"classified_department,omitempty"`
	ClassifiedCategory   string       `json:"classified_category,omitempty"`
	Impact               BudgetImpact `json:"impact"`
	Risk                 RiskLevel    `json:"risk"`
	Confidence           float64      `json:"confidence"`
	Explanation          string       `json:"explanation,omitempty"`
}
