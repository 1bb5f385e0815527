package bus

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
)

// DeadLetter is an entry in a subscription's dead-letter queue.
type DeadLetter struct {
	Envelope    Envelope
	Reason      string
	Description string
}

// MemoryBus is an in-process Bus for tests and local development. Each
// subscription holds its own queue of envelopes matching its subject filter;
// publishing fans out to every matching subscription.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]*memorySubscription
}

type memorySubscription struct {
	filter      string
	queue       []Envelope
	deadLetters []DeadLetter
	notify      chan struct{}
	closed      bool
}

// NewMemoryBus creates a bus with no subscriptions.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]*memorySubscription)}
}

// Provision registers a subscription with a subject filter. The filter is a
// literal subject or a single-level wildcard pattern such as "invoice.*".
func (b *MemoryBus) Provision(subscription, filter string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[subscription] = &memorySubscription{
		filter: filter,
		notify: make(chan struct{}, 1),
	}
}

func (b *MemoryBus) Publish(_ context.Context, env Envelope) error {
	if env.Subject == "" {
		return errors.InvalidInput("subject", "must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.closed || !subjectMatches(sub.filter, env.Subject) {
			continue
		}
		sub.queue = append(sub.queue, env)
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Receiver(subscription string) (Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[subscription]
	if !ok {
		return nil, errors.NotFound("subscription", subscription)
	}
	return &memoryReceiver{bus: b, sub: sub}, nil
}

// DeadLetters returns a copy of the dead-letter queue for a subscription.
func (b *MemoryBus) DeadLetters(subscription string) []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[subscription]
	if !ok {
		return nil
	}
	out := make([]DeadLetter, len(sub.deadLetters))
	copy(out, sub.deadLetters)
	return out
}

// Pending returns the number of undelivered envelopes on a subscription.
func (b *MemoryBus) Pending(subscription string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[subscription]
	if !ok {
		return 0
	}
	return len(sub.queue)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.closed = true
	}
	return nil
}

// subjectMatches supports literal subjects and "prefix.*" filters, the two
// filter shapes the workflow provisions.
func subjectMatches(filter, subject string) bool {
	ok, err := path.Match(filter, subject)
	return err == nil && ok
}

type memoryReceiver struct {
	bus *MemoryBus
	sub *memorySubscription
}

func (r *memoryReceiver) Receive(ctx context.Context, wait time.Duration) (Message, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		r.bus.mu.Lock()
		if r.sub.closed {
			r.bus.mu.Unlock()
			return nil, errors.New(errors.ErrCodeUnavailable, "receiver is closed")
		}
		if len(r.sub.queue) > 0 {
			env := r.sub.queue[0]
			r.sub.queue = r.sub.queue[1:]
			r.bus.mu.Unlock()
			return &memoryMessage{bus: r.bus, sub: r.sub, env: env}, nil
		}
		r.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-r.sub.notify:
		}
	}
}

func (r *memoryReceiver) Close() error {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	r.sub.closed = true
	return nil
}

type memoryMessage struct {
	bus  *MemoryBus
	sub  *memorySubscription
	env  Envelope
	done bool
}

func (m *memoryMessage) Envelope() Envelope { return m.env }

func (m *memoryMessage) Complete(context.Context) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	m.done = true
	return nil
}

func (m *memoryMessage) Abandon(context.Context) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if m.done {
		return nil
	}
	m.done = true
	m.sub.queue = append(m.sub.queue, m.env)
	select {
	case m.sub.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *memoryMessage) DeadLetter(_ context.Context, reason, description string) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if m.done {
		return nil
	}
	m.done = true
	m.sub.deadLetters = append(m.sub.deadLetters, DeadLetter{
		Envelope:    m.env,
		Reason:      reason,
		Description: description,
	})
	return nil
}
