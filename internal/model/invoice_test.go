package model

import "testing"

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to InvoiceState
		want     bool
	}{
		{StateCreated, StateExtracted, true},
		{StateCreated, StateFailed, true},
		{StateCreated, StateValidated, false},
		{StateExtracted, StateValidated, true},
		{StateValidated, StateBudgetChecked, true},
		{StateBudgetChecked, StateApproved, true},
		{StateBudgetChecked, StateManualReview, true},
		{StateBudgetChecked, StateRejected, false},
		{StateApproved, StatePaymentScheduled, true},
		{StatePaymentScheduled, StatePaid, true},
		{StateFailed, StateCreated, true},
		{StateFailed, StateExtracted, false},
		{StateManualReview, StateApproved, true},
		{StateManualReview, StateRejected, true},
		{StateManualReview, StateCreated, true},
		{StatePaid, StateFailed, false},
		{StatePaid, StateCreated, false},
		{StateRejected, StateCreated, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionTo(t *testing.T) {
	inv := &Invoice{InvoiceID: "inv-1", State: StateCreated}

	if err := inv.TransitionTo(StateExtracted, "intake-agent"); err != nil {
		t.Fatalf("TransitionTo: %v", err)
	}
	if inv.State != StateExtracted {
		t.Errorf("state = %s, want %s", inv.State, StateExtracted)
	}
	if inv.PreviousState != StateCreated {
		t.Errorf("previous_state = %s, want %s", inv.PreviousState, StateCreated)
	}
	if inv.StateChangedBy != "intake-agent" {
		t.Errorf("state_changed_by = %s", inv.StateChangedBy)
	}
	if inv.StateChangedAt.IsZero() {
		t.Error("state_changed_at not set")
	}
}

func TestTransitionToIllegalLeavesInvoiceUntouched(t *testing.T) {
	inv := &Invoice{InvoiceID: "inv-1", State: StatePaid, PreviousState: StatePaymentScheduled}

	err := inv.TransitionTo(StateCreated, "anyone")
	if err == nil {
		t.Fatal("expected error for PAID -> CREATED")
	}
	if inv.State != StatePaid {
		t.Errorf("state mutated to %s on failed transition", inv.State)
	}
	if inv.PreviousState != StatePaymentScheduled {
		t.Errorf("previous_state mutated to %s on failed transition", inv.PreviousState)
	}
}

func TestAppendErrorAndWarning(t *testing.T) {
	inv := &Invoice{InvoiceID: "inv-1", State: StateCreated}
	inv.AppendError("validation-agent", "amount must be positive", "INVALID_AMOUNT")
	inv.AppendWarning("budget-agent", "category mismatch", "CATEGORY_MISMATCH")

	if len(inv.Errors) != 1 || inv.Errors[0].Code != "INVALID_AMOUNT" {
		t.Errorf("errors = %+v", inv.Errors)
	}
	if len(inv.Warnings) != 1 || inv.Warnings[0].Agent != "budget-agent" {
		t.Errorf("warnings = %+v", inv.Warnings)
	}
	if inv.Errors[0].Timestamp.IsZero() {
		t.Error("error timestamp not set")
	}
}
