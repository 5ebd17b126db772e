package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
)

// ChannelCapacity bounds each subscriber's buffered receive channel. A
// subscriber whose buffer is full misses each newly published event
// (already-buffered events are kept) rather than blocking the publisher,
// mirroring the teacher's
// ParallelExecutor semaphore-channel pattern: a bounded channel guards a
// shared resource (here, publisher throughput) rather than serializing on
// a slow consumer.
const ChannelCapacity = 256

// Receiver is a subscriber's live tail of the event stream.
type Receiver <-chan contracts.DomainEvent

// EventBus is a broadcast event bus with back-pressure: every publish is
// persisted to an EventStore under a single monotone sequence counter and
// fanned out to all live subscribers, each isolated by its own bounded
// channel so one lagging subscriber cannot stall another or the
// publisher.
type EventBus struct {
	store *EventStore

	seqMu sync.Mutex
	seq   contracts.Sequence

	subMu       sync.Mutex
	subscribers map[int64]chan contracts.DomainEvent
	nextSubID   int64
}

// NewEventBus creates an EventBus backed by store. Pass nil to run without
// persistence (events are only broadcast, never durable) — useful for
// tests.
func NewEventBus(store *EventStore) *EventBus {
	return &EventBus{store: store, subscribers: make(map[int64]chan contracts.DomainEvent)}
}

// Publish assigns the next sequence number, attaches ctx's correlation id
// if present, persists the event (when a store is configured), and
// broadcasts it to every live subscriber without blocking on any of them.
func (b *EventBus) Publish(ctx context.Context, event contracts.DomainEvent) contracts.DomainEvent {
	b.seqMu.Lock()
	b.seq++
	event.Sequence = b.seq
	b.seqMu.Unlock()

	if event.ID == "" {
		event.ID = contracts.EventID(uuid.NewString())
	}
	if event.CorrelationID == "" {
		if cid, ok := FromContext(ctx); ok {
			event.CorrelationID = cid
		}
	}
	if event.Timestamp == 0 {
		event.Timestamp = contracts.Timestamp(time.Now().UnixMilli())
	}

	if b.store != nil {
		if err := b.store.Append(ctx, event); err != nil {
			audit.Log("event=event_store_append_failed sequence=%d error=%s", event.Sequence, err.Error())
		}
	}

	b.broadcast(event)
	return event
}

// broadcast fans event out to every subscriber, dropping it for any whose
// buffer is full instead of blocking.
func (b *EventBus) broadcast(event contracts.DomainEvent) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			audit.Log("event=subscriber_lagged subscriber_id=%d dropped_sequence=%d", id, event.Sequence)
		}
	}
}

// Subscribe registers a new live-tail receiver. Callers must range over
// the returned channel and call the cancel function to unsubscribe.
func (b *EventBus) Subscribe() (Receiver, func()) {
	ch := make(chan contracts.DomainEvent, ChannelCapacity)

	b.subMu.Lock()
	id := atomic.AddInt64(&b.nextSubID, 1)
	b.subscribers[id] = ch
	b.subMu.Unlock()

	cancel := func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// StartCorrelation begins a correlation scope via scope and returns the
// derived context plus the new id, for callers that want Publish calls
// within the returned context auto-attributed.
func (b *EventBus) StartCorrelation(ctx context.Context, scope *CorrelationScope) (context.Context, contracts.CorrelationID) {
	return scope.Start(ctx)
}
