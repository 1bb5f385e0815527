package model

// Bus subjects for invoice state changes. The subject is carried both as
// message metadata (used by subscription filters) and as the event_type hint
// inside the body.
const (
	SubjectCreated          = "invoice.created"
	SubjectExtracted        = "invoice.extracted"
	SubjectValidated        = "invoice.validated"
	SubjectBudgetChecked    = "invoice.budget_checked"
	SubjectApproved         = "invoice.approved"
	SubjectPaymentScheduled = "invoice.payment_scheduled"
	SubjectPaid             = "invoice.paid"
	SubjectFailed           = "invoice.failed"
	SubjectManualReview     = "invoice.manual_review"
)

// SubjectWildcard matches every invoice subject. Used by the analytics
// subscription, which observes the whole workflow.
const SubjectWildcard = "invoice.*"

// Event type hints carried in the body, one per lifecycle announcement.
const (
	EventAPIInvoiceGenerated  = "APIInvoiceGenerated"
	EventDocumentExtracted    = "DocumentExtracted"
	EventInvoiceValidated     = "InvoiceValidated"
	EventBudgetChecked        = "BudgetChecked"
	EventInvoiceApproved      = "InvoiceApproved"
	EventManualReviewRequired = "ManualReviewRequired"
	EventPaymentScheduled     = "PaymentScheduled"
	EventPaymentSettled       = "PaymentSettled"
	EventValidationFailed     = "ValidationFailed"
	EventApprovalRejected     = "ApprovalRejected"
)

// Subscription names, one per agent stage.
const (
	SubscriptionIntake     = "intake-agent-subscription"
	SubscriptionValidation = "validation-agent-subscription"
	SubscriptionBudget     = "budget-agent-subscription"
	SubscriptionApproval   = "approval-agent-subscription"
	SubscriptionPayment    = "payment-agent-subscription"
	SubscriptionSettlement = "settlement-agent-subscription"
	SubscriptionAnalytics  = "analytics-agent-subscription"
)

// SubscriptionFilters maps every subscription to its filter subject. Used
// to provision the bus.
func SubscriptionFilters() map[string]string {
	return map[string]string{
		SubscriptionIntake:     SubjectCreated,
		SubscriptionValidation: SubjectExtracted,
		SubscriptionBudget:     SubjectValidated,
		SubscriptionApproval:   SubjectBudgetChecked,
		SubscriptionPayment:    SubjectApproved,
		SubscriptionSettlement: SubjectPaymentScheduled,
		SubscriptionAnalytics:  SubjectWildcard,
	}
}

// VendorPartition is the fixed partition key under which all vendors live.
const VendorPartition = "VENDOR"
