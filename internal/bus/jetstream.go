package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
)

// Message headers carried alongside the JSON body.
const (
	headerCorrelationID = "Correlation-Id"
	headerReason        = "Dead-Letter-Reason"
	headerDescription   = "Dead-Letter-Description"
	headerOrigSubject   = "Original-Subject"
)

const deadLetterPrefix = "dlq."

// JetStreamBus is the NATS JetStream implementation of Bus. One stream holds
// every invoice subject plus the dead-letter subjects; each agent stage binds
// a durable pull consumer filtered to its subject. JetStream has no
// server-side dead-letter queue per consumer, so DeadLetter republishes the
// message under dlq.<subscription> with reason headers and acks the original.
type JetStreamBus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	stream string
	// subscription name -> filter subject
	filters map[string]string
	log     zerolog.Logger
}

// JetStreamConfig describes the stream and its subscriptions.
type JetStreamConfig struct {
	URL    string
	Stream string
	// Subscriptions maps durable consumer names to their filter subject.
	Subscriptions map[string]string
}

// NewJetStreamBus connects to NATS and provisions the stream and durable
// consumers idempotently.
func NewJetStreamBus(cfg JetStreamConfig, log zerolog.Logger) (*JetStreamBus, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to connect to NATS")
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to open JetStream context")
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{"invoice.*", deadLetterPrefix + ">"},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !stderrors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to provision stream")
	}

	b := &JetStreamBus{
		conn:    conn,
		js:      js,
		stream:  cfg.Stream,
		filters: cfg.Subscriptions,
		log:     log.With().Str("component", "jetstream_bus").Logger(),
	}

	for durable, filter := range cfg.Subscriptions {
		_, err := js.AddConsumer(cfg.Stream, &nats.ConsumerConfig{
			Durable:       durable,
			FilterSubject: filter,
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       60 * time.Second,
			MaxAckPending: 1,
		})
		if err != nil && !stderrors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
			conn.Close()
			return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to provision consumer "+durable)
		}
	}

	return b, nil
}

func (b *JetStreamBus) Publish(ctx context.Context, env Envelope) error {
	if env.Subject == "" {
		return errors.InvalidInput("subject", "must not be empty")
	}

	data, err := json.Marshal(env.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal event body")
	}

	msg := nats.NewMsg(env.Subject)
	msg.Data = data
	if env.CorrelationID != "" {
		msg.Header.Set(headerCorrelationID, env.CorrelationID)
	}

	if _, err := b.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to publish "+env.Subject)
	}
	return nil
}

func (b *JetStreamBus) Receiver(subscription string) (Receiver, error) {
	filter, ok := b.filters[subscription]
	if !ok {
		return nil, errors.NotFound("subscription", subscription)
	}

	sub, err := b.js.PullSubscribe(filter, subscription, nats.BindStream(b.stream))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to bind consumer "+subscription)
	}
	return &jetStreamReceiver{bus: b, sub: sub, subscription: subscription}, nil
}

func (b *JetStreamBus) Close() error {
	b.conn.Close()
	return nil
}

type jetStreamReceiver struct {
	bus          *JetStreamBus
	sub          *nats.Subscription
	subscription string
}

func (r *jetStreamReceiver) Receive(ctx context.Context, wait time.Duration) (Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	msgs, err := r.sub.Fetch(1, nats.Context(fetchCtx))
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		if stderrors.Is(err, context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to fetch message")
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	raw := msgs[0]
	var body EventBody
	if err := json.Unmarshal(raw.Data, &body); err != nil {
		// Undecodable payloads can never be processed; park them for
		// inspection instead of redelivering forever.
		r.bus.log.Error().Err(err).Str("subject", raw.Subject).Msg("undecodable event body, dead-lettering")
		m := &jetStreamMessage{bus: r.bus, raw: raw, subscription: r.subscription}
		_ = m.DeadLetter(ctx, ReasonProcessingError, "undecodable event body: "+err.Error())
		return nil, nil
	}

	return &jetStreamMessage{
		bus:          r.bus,
		raw:          raw,
		subscription: r.subscription,
		env: Envelope{
			Subject:       raw.Subject,
			CorrelationID: raw.Header.Get(headerCorrelationID),
			Body:          body,
		},
	}, nil
}

func (r *jetStreamReceiver) Close() error {
	return r.sub.Unsubscribe()
}

type jetStreamMessage struct {
	bus          *JetStreamBus
	raw          *nats.Msg
	subscription string
	env          Envelope
}

func (m *jetStreamMessage) Envelope() Envelope { return m.env }

func (m *jetStreamMessage) Complete(context.Context) error {
	return m.raw.Ack()
}

func (m *jetStreamMessage) Abandon(context.Context) error {
	return m.raw.Nak()
}

func (m *jetStreamMessage) DeadLetter(ctx context.Context, reason, description string) error {
	dl := nats.NewMsg(deadLetterPrefix + m.subscription)
	dl.Data = m.raw.Data
	dl.Header.Set(headerReason, reason)
	dl.Header.Set(headerDescription, description)
	dl.Header.Set(headerOrigSubject, m.raw.Subject)
	if cid := m.raw.Header.Get(headerCorrelationID); cid != "" {
		dl.Header.Set(headerCorrelationID, cid)
	}

	if _, err := m.bus.js.PublishMsg(dl, nats.Context(ctx)); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to publish dead letter")
	}
	return m.raw.Ack()
}
