package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/repository"
)

// recordTransition counts a persisted state transition. metrics may be nil.
func recordTransition(m *observability.Metrics, from, to model.InvoiceState) {
	if m != nil {
		m.RecordTransition(string(from), string(to))
	}
}

// successor builds the next lifecycle event, carrying the correlation id
// through unchanged.
func successor(env bus.Envelope, subject, eventType string) *bus.Envelope {
	return &bus.Envelope{
		Subject:       subject,
		CorrelationID: env.CorrelationID,
		Body: bus.EventBody{
			InvoiceID:     env.Body.InvoiceID,
			DepartmentID:  env.Body.DepartmentID,
			EventType:     eventType,
			CorrelationID: env.CorrelationID,
		},
	}
}

// loadForStage fetches the invoice named by the event and checks it is in
// the state the stage consumes. Delivery is at-least-once, so a redelivered
// event for an invoice that has already moved on is not an error: the stage
// skips it (second return false) and the runner completes the message
// without publishing.
func loadForStage(ctx context.Context, repo *repository.InvoiceRepository, env bus.Envelope, expected model.InvoiceState, log zerolog.Logger) (*model.Invoice, bool, error) {
	inv, err := repo.Get(ctx, env.Body.DepartmentID, env.Body.InvoiceID)
	if err != nil {
		return nil, false, err
	}
	if inv.State != expected {
		log.Warn().
			Str("invoice_id", inv.InvoiceID).
			Str("state", string(inv.State)).
			Str("expected_state", string(expected)).
			Msg("invoice not in expected state, skipping redelivery")
		return nil, false, nil
	}
	return inv, true, nil
}
