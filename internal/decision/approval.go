// Package decision holds the deterministic engines gating invoice state
// transitions: the approval threshold tree and the budget impact evaluator.
package decision

import (
	"fmt"

	"github.com/luminapay/invoice-lifecycle/internal/model"
)

// Decide evaluates the approval threshold tree. It is a pure function of its
// inputs; branch order is fixed and the first matching branch wins:
//
//  1. vendor not (active && approved && auto_approve)  -> Rejected
//  2. budget not ACTIVE                                -> Rejected
//  3. vendor limit configured and amount above it      -> Manual approval
//  4. budget limit configured and amount above it      -> Manual approval
//  5. auto-approve threshold configured, amount below  -> Auto-Approved
//  6. otherwise                                        -> Rejected
//
// A threshold of zero means "not configured" and skips its branch.
// Comparisons are strict, so an amount equal to a limit falls through.
func Decide(invoice *model.Invoice, vendor *model.Vendor, budget *model.Budget) model.ApprovalDecision {
	if !(vendor.Active && vendor.Approved && vendor.AutoApprove) {
		return model.ApprovalDecision{
			Status: model.Rejected,
			Reason: "Vendor does not meet auto-approval criteria (active, approved, auto_approve)",
		}
	}

	if budget.Status != model.BudgetActive {
		return model.ApprovalDecision{
			Status: model.Rejected,
			Reason: fmt.Sprintf("Budget status is %s, not active", budget.Status),
		}
	}

	if vendor.AutoApproveLimit != 0 && invoice.Amount > vendor.AutoApproveLimit {
		return model.ApprovalDecision{
			Status:            model.ManualApprovalRequired,
			Reason:            fmt.Sprintf("Amount exceeds vendor auto-approval limit of %v", vendor.AutoApproveLimit),
			SuggestedApprover: budget.Approver,
		}
	}

	if budget.ApprovalRequiredOver != 0 && invoice.Amount > budget.ApprovalRequiredOver {
		return model.ApprovalDecision{
			Status:            model.ManualApprovalRequired,
			Reason:            fmt.Sprintf("Amount exceeds budget approval required limit of %v", budget.ApprovalRequiredOver),
			SuggestedApprover: budget.Approver,
		}
	}

	if budget.AutoApproveUnder != 0 && invoice.Amount < budget.AutoApproveUnder {
		return model.ApprovalDecision{
			Status: model.AutoApproved,
			Reason: fmt.Sprintf("Amount is below budget auto-approval threshold of %v", budget.AutoApproveUnder),
		}
	}

	return model.ApprovalDecision{
		Status: model.Rejected,
		Reason: "Amount does not meet auto-approval criteria based on vendor and budget thresholds",
	}
}
