package agent

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/client"
	"github.com/luminapay/invoice-lifecycle/internal/decision"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

// pipeline wires every stage against in-memory infrastructure and steps
// messages through deterministically.
type pipeline struct {
	bus      *bus.MemoryBus
	invoices *repository.InvoiceRepository
	vendors  *repository.VendorRepository
	budgets  *repository.BudgetRepository
	metrics  *observability.Metrics
	runners  map[string]*Runner
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	b := bus.NewMemoryBus()
	for sub, filter := range model.SubscriptionFilters() {
		b.Provision(sub, filter)
	}

	p := &pipeline{
		bus:      b,
		invoices: repository.NewInvoiceRepository(store.NewMemory(store.TableNameInvoices)),
		vendors:  repository.NewVendorRepository(store.NewMemory(store.TableNameVendors)),
		budgets:  repository.NewBudgetRepository(store.NewMemory(store.TableNameBudgets)),
		metrics:  observability.InitMetrics(prometheus.NewRegistry()),
		runners:  make(map[string]*Runner),
	}

	log := zerolog.Nop()
	alerts := client.NewWebhookAlertSender("", p.metrics, log)
	evaluator := decision.NewImpactEvaluator(
		p.invoices, p.budgets, client.StaticClassifier{}, client.StaticAnalyzer{}, alerts, "budget-agent", p.metrics, log)

	processors := []Processor{
		NewIntakeProcessor(p.invoices, client.StaticExtractor{}, p.metrics, log),
		NewValidationProcessor(p.invoices, p.vendors, client.StaticValidator{}, p.metrics, log),
		NewBudgetProcessor(p.invoices, evaluator, log),
		NewApprovalProcessor(p.invoices, p.vendors, p.budgets, p.metrics, log),
		NewPaymentProcessor(p.invoices, p.metrics, log),
		NewSettlementProcessor(p.invoices, p.metrics, log),
	}
	for _, proc := range processors {
		p.runners[proc.Subscription()] = NewRunner(proc, b, nil, log)
	}
	return p
}

func (p *pipeline) seed(t *testing.T, amount float64, vendorLimit float64) *model.Invoice {
	t.Helper()
	ctx := context.Background()

	err := p.vendors.Upsert(ctx, &model.Vendor{
		VendorID:         "v-1",
		Name:             "Acme Corp",
		Active:           true,
		Approved:         true,
		AutoApprove:      true,
		AutoApproveLimit: vendorLimit,
	})
	if err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	err = p.budgets.Upsert(ctx, &model.Budget{
		FiscalYear:           "FY2024",
		DepartmentID:         "IT",
		ProjectID:            "PROJ-3001",
		Category:             "Software",
		AllocatedAmount:      100000,
		RemainingAmount:      100000,
		Status:               model.BudgetActive,
		AutoApproveUnder:     2000,
		ApprovalRequiredOver: 5000,
		Approver:             "jordan.reyes",
	})
	if err != nil {
		t.Fatalf("seed budget: %v", err)
	}

	inv := &model.Invoice{
		InvoiceID:     "inv-1",
		DepartmentID:  "IT",
		InvoiceNumber: "INV-1001",
		VendorName:    "Acme Corp",
		Amount:        amount,
		Currency:      "USD",
		ProjectID:     "PROJ-3001",
		Category:      "Software",
		BudgetYear:    "FY2024",
		PaymentTerms:  "NET30",
		State:         model.StateCreated,
		CreatedDate:   time.Now().UTC(),
	}
	if err := p.invoices.Upsert(ctx, inv); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func (p *pipeline) announce(t *testing.T) {
	t.Helper()
	err := p.bus.Publish(context.Background(), bus.Envelope{
		Subject:       model.SubjectCreated,
		CorrelationID: "corr-1",
		Body: bus.EventBody{
			InvoiceID:     "inv-1",
			DepartmentID:  "IT",
			EventType:     model.EventAPIInvoiceGenerated,
			CorrelationID: "corr-1",
		},
	})
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
}

// step delivers the next pending message on one subscription through its
// runner. Returns false when the subscription is empty.
func (p *pipeline) step(t *testing.T, subscription string) bool {
	t.Helper()
	recv, err := p.bus.Receiver(subscription)
	if err != nil {
		t.Fatalf("Receiver(%s): %v", subscription, err)
	}
	msg, err := recv.Receive(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive(%s): %v", subscription, err)
	}
	if msg == nil {
		return false
	}
	p.runners[subscription].handle(context.Background(), msg)
	return true
}

// drain runs every stage in lifecycle order until no subscription has
// pending messages.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	order := []string{
		model.SubscriptionIntake,
		model.SubscriptionValidation,
		model.SubscriptionBudget,
		model.SubscriptionApproval,
		model.SubscriptionPayment,
		model.SubscriptionSettlement,
	}
	for range [20]int{} {
		progressed := false
		for _, sub := range order {
			for p.step(t, sub) {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
	t.Fatal("pipeline did not quiesce")
}

func (p *pipeline) invoice(t *testing.T) *model.Invoice {
	t.Helper()
	inv, err := p.invoices.Get(context.Background(), "IT", "inv-1")
	if err != nil {
		t.Fatalf("Get invoice: %v", err)
	}
	return inv
}

func TestPipelineAutoApproveToPaid(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, 1000, 5000)
	p.announce(t)
	p.drain(t)

	inv := p.invoice(t)
	if inv.State != model.StatePaid {
		t.Fatalf("state = %s, want PAID (errors: %+v)", inv.State, inv.Errors)
	}
	if inv.ApprovalDecision == nil || inv.ApprovalDecision.Status != model.AutoApproved {
		t.Errorf("approval decision = %+v", inv.ApprovalDecision)
	}
	if inv.BudgetAnalysis == nil {
		t.Error("budget analysis not persisted")
	}
	if inv.PaymentReference == "" || inv.PaymentScheduledDate == nil {
		t.Errorf("payment not scheduled: ref=%q date=%v", inv.PaymentReference, inv.PaymentScheduledDate)
	}

	budget, err := p.budgets.Find(context.Background(), "FY2024", "IT", "PROJ-3001", "Software")
	if err != nil {
		t.Fatalf("Find budget: %v", err)
	}
	if budget.ConsumedAmount != 1000 {
		t.Errorf("consumed = %v, want 1000", budget.ConsumedAmount)
	}
	if budget.RemainingAmount != 99000 {
		t.Errorf("remaining = %v, want 99000", budget.RemainingAmount)
	}

	for _, sub := range []string{
		model.SubscriptionIntake, model.SubscriptionValidation, model.SubscriptionBudget,
		model.SubscriptionApproval, model.SubscriptionPayment, model.SubscriptionSettlement,
	} {
		if dls := p.bus.DeadLetters(sub); len(dls) != 0 {
			t.Errorf("%s dead letters: %+v", sub, dls)
		}
	}

	// Every persisted transition shows up in the lifecycle counter.
	transitions := [][2]model.InvoiceState{
		{model.StateCreated, model.StateExtracted},
		{model.StateExtracted, model.StateValidated},
		{model.StateValidated, model.StateBudgetChecked},
		{model.StateBudgetChecked, model.StateApproved},
		{model.StateApproved, model.StatePaymentScheduled},
		{model.StatePaymentScheduled, model.StatePaid},
	}
	for _, tr := range transitions {
		c := p.metrics.InvoiceTransitionsTotal.WithLabelValues(string(tr[0]), string(tr[1]))
		if got := testutil.ToFloat64(c); got != 1 {
			t.Errorf("transition counter %s->%s = %v, want 1", tr[0], tr[1], got)
		}
	}
}

func TestPipelineLargeAmountParksInManualReview(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, 7500, 10000)
	p.announce(t)
	p.drain(t)

	inv := p.invoice(t)
	if inv.State != model.StateManualReview {
		t.Fatalf("state = %s, want MANUAL_REVIEW", inv.State)
	}
	if inv.ApprovalDecision == nil || inv.ApprovalDecision.Status != model.ManualApprovalRequired {
		t.Fatalf("approval decision = %+v", inv.ApprovalDecision)
	}
	if inv.ApprovalDecision.Reason != "Amount exceeds budget approval required limit of 5000" {
		t.Errorf("reason = %q", inv.ApprovalDecision.Reason)
	}

	budget, _ := p.budgets.Find(context.Background(), "FY2024", "IT", "PROJ-3001", "Software")
	if budget.ConsumedAmount != 0 {
		t.Errorf("consumed = %v, budget consumed without approval", budget.ConsumedAmount)
	}

	// The analytics subscription observed invoice.manual_review.
	if got := p.bus.Pending(model.SubscriptionAnalytics); got == 0 {
		t.Error("no events observed by analytics subscription")
	}
}

func TestPipelineFrozenBudgetFailsInvoice(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, 1000, 5000)

	budget, _ := p.budgets.Find(context.Background(), "FY2024", "IT", "PROJ-3001", "Software")
	budget.Status = model.BudgetFrozen
	if err := p.budgets.Upsert(context.Background(), budget); err != nil {
		t.Fatalf("freeze budget: %v", err)
	}

	p.announce(t)
	p.drain(t)

	inv := p.invoice(t)
	if inv.State != model.StateFailed {
		t.Fatalf("state = %s, want FAILED", inv.State)
	}
	if inv.ApprovalDecision.Status != model.Rejected {
		t.Errorf("decision = %+v, want Rejected", inv.ApprovalDecision)
	}
	if inv.ApprovalDecision.Reason != "Budget status is FROZEN, not active" {
		t.Errorf("reason = %q", inv.ApprovalDecision.Reason)
	}
	if len(inv.Errors) == 0 || inv.Errors[len(inv.Errors)-1].Code != "AUTO_REJECTION" {
		t.Errorf("errors = %+v, want trailing AUTO_REJECTION", inv.Errors)
	}
}

// An amount sitting between auto_approve_under and approval_required_over
// satisfies neither branch of the threshold tree. The decision is Rejected
// and the invoice fails; it can only re-enter through the retry endpoint.
func TestPipelineThresholdGapFailsInvoice(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, 3000, 5000)
	p.announce(t)
	p.drain(t)

	inv := p.invoice(t)
	if inv.State != model.StateFailed {
		t.Fatalf("state = %s, want FAILED", inv.State)
	}
	if inv.ApprovalDecision == nil || inv.ApprovalDecision.Status != model.Rejected {
		t.Fatalf("decision = %+v, want Rejected", inv.ApprovalDecision)
	}

	budget, _ := p.budgets.Find(context.Background(), "FY2024", "IT", "PROJ-3001", "Software")
	if budget.ConsumedAmount != 0 {
		t.Errorf("consumed = %v, budget consumed by a rejected invoice", budget.ConsumedAmount)
	}

	// The analytics subscription observed invoice.failed.
	if got := p.bus.Pending(model.SubscriptionAnalytics); got == 0 {
		t.Error("no events observed by analytics subscription")
	}
}

// Redelivered events for an invoice that already moved on are completed
// without re-processing: replaying the whole run must not consume the
// budget twice.
func TestPipelineReplayIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, 1000, 5000)
	p.announce(t)
	p.drain(t)

	p.announce(t)
	p.drain(t)

	inv := p.invoice(t)
	if inv.State != model.StatePaid {
		t.Fatalf("state = %s after replay, want PAID", inv.State)
	}

	budget, _ := p.budgets.Find(context.Background(), "FY2024", "IT", "PROJ-3001", "Software")
	if budget.ConsumedAmount != 1000 {
		t.Errorf("consumed = %v after replay, want 1000", budget.ConsumedAmount)
	}
}

func TestPipelineValidationFailureGoesToFailed(t *testing.T) {
	p := newPipeline(t)
	inv := p.seed(t, 1000, 5000)

	inv.Amount = -50
	if err := p.invoices.Upsert(context.Background(), inv); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	p.announce(t)
	p.drain(t)

	got := p.invoice(t)
	if got.State != model.StateFailed {
		t.Fatalf("state = %s, want FAILED", got.State)
	}
	if len(got.Errors) == 0 {
		t.Error("no errors recorded on failed invoice")
	}
}
