package bus

import (
	"context"
	"testing"
	"time"
)

func newTestBus() *MemoryBus {
	b := NewMemoryBus()
	b.Provision("validation-sub", "invoice.extracted")
	b.Provision("analytics-sub", "invoice.*")
	return b
}

func publish(t *testing.T, b *MemoryBus, subject, invoiceID string) {
	t.Helper()
	err := b.Publish(context.Background(), Envelope{
		Subject:       subject,
		CorrelationID: "corr-1",
		Body:          EventBody{InvoiceID: invoiceID, DepartmentID: "IT", EventType: "test"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func receiveOne(t *testing.T, b *MemoryBus, subscription string) Message {
	t.Helper()
	recv, err := b.Receiver(subscription)
	if err != nil {
		t.Fatalf("Receiver(%s): %v", subscription, err)
	}
	msg, err := recv.Receive(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg == nil {
		t.Fatalf("no message on %s", subscription)
	}
	return msg
}

func TestPublishFansOutToMatchingSubscriptions(t *testing.T) {
	b := newTestBus()
	publish(t, b, "invoice.extracted", "inv-1")

	if got := b.Pending("validation-sub"); got != 1 {
		t.Errorf("validation-sub pending = %d, want 1", got)
	}
	if got := b.Pending("analytics-sub"); got != 1 {
		t.Errorf("analytics-sub pending = %d, want 1", got)
	}
}

func TestFilterExcludesOtherSubjects(t *testing.T) {
	b := newTestBus()
	publish(t, b, "invoice.created", "inv-1")

	if got := b.Pending("validation-sub"); got != 0 {
		t.Errorf("validation-sub pending = %d, want 0", got)
	}
	if got := b.Pending("analytics-sub"); got != 1 {
		t.Errorf("analytics-sub pending = %d, want 1", got)
	}
}

func TestReceiveTimesOutEmpty(t *testing.T) {
	b := newTestBus()
	recv, err := b.Receiver("validation-sub")
	if err != nil {
		t.Fatalf("Receiver: %v", err)
	}
	msg, err := recv.Receive(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg != nil {
		t.Fatalf("unexpected message: %+v", msg.Envelope())
	}
}

func TestAbandonRedelivers(t *testing.T) {
	b := newTestBus()
	publish(t, b, "invoice.extracted", "inv-1")

	msg := receiveOne(t, b, "validation-sub")
	if err := msg.Abandon(context.Background()); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	again := receiveOne(t, b, "validation-sub")
	if again.Envelope().Body.InvoiceID != "inv-1" {
		t.Errorf("redelivered wrong message: %+v", again.Envelope())
	}
}

func TestCompleteRemoves(t *testing.T) {
	b := newTestBus()
	publish(t, b, "invoice.extracted", "inv-1")

	msg := receiveOne(t, b, "validation-sub")
	if err := msg.Complete(context.Background()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := b.Pending("validation-sub"); got != 0 {
		t.Errorf("pending = %d after complete, want 0", got)
	}
}

func TestDeadLetterRecordsReason(t *testing.T) {
	b := newTestBus()
	publish(t, b, "invoice.extracted", "inv-1")

	msg := receiveOne(t, b, "validation-sub")
	if err := msg.DeadLetter(context.Background(), ReasonProcessingError, "extraction blew up"); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	dls := b.DeadLetters("validation-sub")
	if len(dls) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dls))
	}
	if dls[0].Reason != ReasonProcessingError || dls[0].Description != "extraction blew up" {
		t.Errorf("dead letter = %+v", dls[0])
	}
	if dls[0].Envelope.Body.InvoiceID != "inv-1" {
		t.Errorf("dead letter envelope = %+v", dls[0].Envelope)
	}
}

// A second disposition on the same delivery is a no-op.
func TestDispositionIsIdempotent(t *testing.T) {
	b := newTestBus()
	publish(t, b, "invoice.extracted", "inv-1")

	msg := receiveOne(t, b, "validation-sub")
	if err := msg.Complete(context.Background()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := msg.Abandon(context.Background()); err != nil {
		t.Fatalf("Abandon after Complete: %v", err)
	}
	if got := b.Pending("validation-sub"); got != 0 {
		t.Errorf("pending = %d, abandon after complete requeued", got)
	}
	if err := msg.DeadLetter(context.Background(), ReasonProcessingError, "late"); err != nil {
		t.Fatalf("DeadLetter after Complete: %v", err)
	}
	if got := len(b.DeadLetters("validation-sub")); got != 0 {
		t.Errorf("dead letters = %d, dead-letter after complete recorded", got)
	}
}
