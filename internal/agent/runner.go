// Package agent implements the choreography runtime: a generic receive loop
// shared by every stage, plus one processor per lifecycle stage. Each
// processor consumes its filtered subscription, advances the invoice and
// publishes the successor event; there is no central coordinator.
package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/bus"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
)

// defaultWait bounds each poll so shutdown is observed promptly.
const defaultWait = 5 * time.Second

// Outcome is what a processor hands back to the runner on success. A nil
// Next means the stage has nothing further to announce.
type Outcome struct {
	Next *bus.Envelope
}

// Processor is one lifecycle stage. Process returns:
//   - (outcome, nil): the message is completed; outcome.Next, if set, is
//     published afterwards.
//   - (nil, err): the message is dead-lettered with reason ProcessingError.
//   - (nil, nil): contract violation; the message is dead-lettered with
//     reason ProcessingIncomplete.
type Processor interface {
	Name() string
	Subscription() string
	Process(ctx context.Context, env bus.Envelope) (*Outcome, error)
}

// Runner drives one processor against its subscription until the context is
// cancelled.
type Runner struct {
	processor Processor
	b         bus.Bus
	metrics   *observability.Metrics
	wait      time.Duration
	log       zerolog.Logger
}

// NewRunner binds a processor to the bus. metrics may be nil.
func NewRunner(p Processor, b bus.Bus, metrics *observability.Metrics, log zerolog.Logger) *Runner {
	return &Runner{
		processor: p,
		b:         b,
		metrics:   metrics,
		wait:      defaultWait,
		log:       log.With().Str("agent", p.Name()).Logger(),
	}
}

// WithWait overrides the receive poll bound.
func (r *Runner) WithWait(d time.Duration) *Runner {
	if d > 0 {
		r.wait = d
	}
	return r
}

// Run polls the subscription until ctx is done. Receive errors are logged
// and the loop continues; only context cancellation stops it.
func (r *Runner) Run(ctx context.Context) error {
	recv, err := r.b.Receiver(r.processor.Subscription())
	if err != nil {
		return err
	}
	defer recv.Close()

	r.log.Info().Str("subscription", r.processor.Subscription()).Msg("agent started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("agent stopping")
			return nil
		default:
		}

		msg, err := recv.Receive(ctx, r.wait)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info().Msg("agent stopping")
				return nil
			}
			r.log.Error().Err(err).Msg("receive failed")
			continue
		}
		if msg == nil {
			continue
		}

		r.handle(ctx, msg)
	}
}

func (r *Runner) handle(ctx context.Context, msg bus.Message) {
	env := msg.Envelope()
	start := time.Now()

	if r.metrics != nil {
		r.metrics.RecordMessageReceived(r.processor.Name())
	}
	log := r.log.With().
		Str("subject", env.Subject).
		Str("invoice_id", env.Body.InvoiceID).
		Str("correlation_id", env.CorrelationID).
		Logger()
	log.Info().Msg("processing message")

	outcome, err := r.processor.Process(ctx, env)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("processing failed, dead-lettering")
		if dlErr := msg.DeadLetter(ctx, bus.ReasonProcessingError, err.Error()); dlErr != nil {
			log.Error().Err(dlErr).Msg("dead-letter failed")
		}
		if r.metrics != nil {
			r.metrics.RecordMessageDeadLettered(r.processor.Name(), bus.ReasonProcessingError)
		}
		return

	case outcome == nil:
		log.Error().Msg("processor returned no outcome, dead-lettering")
		if dlErr := msg.DeadLetter(ctx, bus.ReasonProcessingIncomplete, "stage produced no outcome"); dlErr != nil {
			log.Error().Err(dlErr).Msg("dead-letter failed")
		}
		if r.metrics != nil {
			r.metrics.RecordMessageDeadLettered(r.processor.Name(), bus.ReasonProcessingIncomplete)
		}
		return
	}

	if err := msg.Complete(ctx); err != nil {
		log.Error().Err(err).Msg("complete failed")
		return
	}
	if r.metrics != nil {
		r.metrics.RecordMessageCompleted(r.processor.Name(), time.Since(start))
	}

	if outcome.Next != nil {
		if err := r.b.Publish(ctx, *outcome.Next); err != nil {
			// The message is already completed; publication is best-effort
			// and a stuck invoice is recovered through the retry endpoint.
			log.Error().Err(err).Str("next_subject", outcome.Next.Subject).Msg("publish failed")
			return
		}
		if r.metrics != nil {
			r.metrics.RecordEventPublished(r.processor.Name(), outcome.Next.Subject)
		}
		log.Info().Str("next_subject", outcome.Next.Subject).Msg("stage complete, event published")
	} else {
		log.Info().Msg("stage complete")
	}
}
