// Package bus provides publish/subscribe primitives for the invoice
// workflow: a structured envelope published to one topic, and filtered
// subscription receivers yielding one message at a time with three terminal
// dispositions (complete, abandon, dead-letter). Delivery is at-least-once;
// consumers are expected to be idempotent per invoice id.
package bus

import (
	"context"
	"time"
)

// EventBody is the JSON payload of every workflow event.
type EventBody struct {
	InvoiceID     string         `json:"invoice_id"`
	DepartmentID  string         `json:"department_id"`
	EventType     string         `json:"event_type"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Envelope is the unit of publication. Subject and CorrelationID are carried
// as first-class message metadata so subscriptions can filter without parsing
// the body.
type Envelope struct {
	Subject       string
	CorrelationID string
	Body          EventBody
}

// DeadLetterReason codes used by the agent runtime.
const (
	ReasonProcessingError      = "ProcessingError"
	ReasonProcessingIncomplete = "ProcessingIncomplete"
)

// Message is one delivery. Exactly one disposition method must be called;
// calling a second is a no-op on the in-memory bus and an error surfaced by
// the broker otherwise.
type Message interface {
	Envelope() Envelope
	// Complete removes the message from the subscription.
	Complete(ctx context.Context) error
	// Abandon makes the message eligible for redelivery.
	Abandon(ctx context.Context) error
	// DeadLetter moves the message to the subscription's dead-letter queue
	// with a machine reason code and a free-text description.
	DeadLetter(ctx context.Context, reason, description string) error
}

// Receiver yields messages for one subscription.
type Receiver interface {
	// Receive blocks up to wait for one message. A nil message with a nil
	// error means the wait elapsed with nothing to deliver.
	Receive(ctx context.Context, wait time.Duration) (Message, error)
	Close() error
}

// Publisher publishes envelopes to the workflow topic.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Bus combines publishing with subscription access.
type Bus interface {
	Publisher
	// Receiver returns the receiver bound to a pre-provisioned subscription.
	Receiver(subscription string) (Receiver, error)
	Close() error
}
