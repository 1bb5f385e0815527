package model

import (
	"time"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
)

// InvoiceState is a node in the invoice lifecycle state machine.
type InvoiceState string

const (
	StateCreated          InvoiceState = "CREATED"
	StateExtracted        InvoiceState = "EXTRACTED"
	StateValidated        InvoiceState = "VALIDATED"
	StateBudgetChecked    InvoiceState = "BUDGET_CHECKED"
	StateApproved         InvoiceState = "APPROVED"
	StateManualReview     InvoiceState = "MANUAL_REVIEW"
	StatePaymentScheduled InvoiceState = "PAYMENT_SCHEDULED"
	StatePaid             InvoiceState = "PAID"
	StateFailed           InvoiceState = "FAILED"
	StateRejected         InvoiceState = "REJECTED"
)

// validTransitions is the legal-transition table. PAID is terminal.
// MANUAL_REVIEW fans out to the states a human reviewer may place an invoice
// in; FAILED only goes back to CREATED (external retry).
var validTransitions = map[InvoiceState][]InvoiceState{
	StateCreated:          {StateExtracted, StateFailed},
	StateExtracted:        {StateValidated, StateFailed},
	StateValidated:        {StateBudgetChecked, StateFailed},
	StateBudgetChecked:    {StateApproved, StateManualReview, StateFailed},
	StateApproved:         {StatePaymentScheduled, StateFailed},
	StatePaymentScheduled: {StatePaid, StateFailed},
	StateManualReview: {
		StateCreated, StateExtracted, StateValidated,
		StateBudgetChecked, StateApproved, StateFailed, StateRejected,
	},
	StateFailed:   {StateCreated},
	StateRejected: {},
	StatePaid:     {},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s InvoiceState) CanTransitionTo(next InvoiceState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InternalMessage is a structured note appended to an invoice by an agent.
type InternalMessage struct {
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInternalMessage stamps a message with the current UTC time.
func NewInternalMessage(agent, message, code string) InternalMessage {
	return InternalMessage{
		Agent:     agent,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
}

// Invoice is the invoice record persisted in the entity store.
// Partition key: DepartmentID. Sort key: InvoiceID.
type Invoice struct {
	InvoiceID     string `json:"invoice_id"`
	DepartmentID  string `json:"department_id"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	VendorID      string `json:"vendor_id,omitempty"`
	VendorName    string `json:"vendor_name,omitempty"`

	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	TaxAmount float64 `json:"tax_amount,omitempty"`
	Subtotal  float64 `json:"subtotal,omitempty"`

	IssuedDate  *time.Time `json:"issued_date,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedDate time.Time  `json:"created_date"`
	UpdatedDate time.Time  `json:"updated_date"`

	State          InvoiceState `json:"state"`
	PreviousState  InvoiceState `json:"previous_state,omitempty"`
	StateChangedAt time.Time    `json:"state_changed_at"`
	StateChangedBy string       `json:"state_changed_by,omitempty"`

	Description          string         `json:"description,omitempty"`
	RawFileURL           string         `json:"raw_file_url,omitempty"`
	FileName             string         `json:"file_name,omitempty"`
	FileType             string         `json:"file_type,omitempty"`
	FileSize             int64          `json:"file_size,omitempty"`
	ExtractedData        map[string]any `json:"extracted_data,omitempty"`
	ExtractionConfidence float64        `json:"extraction_confidence,omitempty"`

	ProjectID  string `json:"project_id,omitempty"`
	CostCenter string `json:"cost_center,omitempty"`
	Category   string `json:"category,omitempty"`
	BudgetYear string `json:"budget_year,omitempty"`

	PaymentTerms         string     `json:"payment_terms,omitempty"`
	PaymentScheduledDate *time.Time `json:"payment_scheduled_date,omitempty"`
	PaymentReference     string     `json:"payment_reference,omitempty"`

	ApprovalDecision *ApprovalDecision `json:"approval_decision,omitempty"`
	BudgetAnalysis   *BudgetAnalysis   `json:"budget_analysis,omitempty"`

	Errors   []InternalMessage `json:"errors,omitempty"`
	Warnings []InternalMessage `json:"warnings,omitempty"`
}

// TransitionTo moves the invoice to next, recording the previous state and
// who made the change. It fails with an INVALID_STATE error and leaves the
// invoice untouched when the transition is not in the legal set.
func (i *Invoice) TransitionTo(next InvoiceState, changedBy string) error {
	if !i.State.CanTransitionTo(next) {
		return errors.Newf(errors.ErrCodeInvalidState,
			"invalid state transition %s -> %s for invoice %s", i.State, next, i.InvoiceID)
	}
	now := time.Now().UTC()
	i.PreviousState = i.State
	i.State = next
	i.StateChangedAt = now
	i.StateChangedBy = changedBy
	i.UpdatedDate = now
	return nil
}

// AppendError records a structured processing error on the invoice.
func (i *Invoice) AppendError(agent, message, code string) {
	i.Errors = append(i.Errors, NewInternalMessage(agent, message, code))
}

// AppendWarning records a structured, non-fatal note on the invoice.
func (i *Invoice) AppendWarning(agent, message, code string) {
	i.Warnings = append(i.Warnings, NewInternalMessage(agent, message, code))
}
