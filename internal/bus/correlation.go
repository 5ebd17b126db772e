package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/anthropics/convergence-engine/contracts"
)

// correlationKey is the context.Value key under which the active
// correlation id is stored.
type correlationKey struct{}

// CorrelationScope owns the process-wide mapping from a logical operation
// (one convergence iteration, one command dispatch) to the correlation id
// every event published inside it inherits. Encapsulated behind this type
// per spec.md §9's "do not leak raw counters" rule for global mutable
// state.
type CorrelationScope struct {
	mu     sync.Mutex
	active map[contracts.CorrelationID]struct{}
}

// NewCorrelationScope creates an empty correlation tracker.
func NewCorrelationScope() *CorrelationScope {
	return &CorrelationScope{active: make(map[contracts.CorrelationID]struct{})}
}

// Start begins a new correlation scope, returning a context carrying the
// new id and the id itself.
func (c *CorrelationScope) Start(ctx context.Context) (context.Context, contracts.CorrelationID) {
	id := contracts.CorrelationID(uuid.NewString())
	c.mu.Lock()
	c.active[id] = struct{}{}
	c.mu.Unlock()
	return context.WithValue(ctx, correlationKey{}, id), id
}

// End closes a correlation scope by removing id from the active set. It
// does not alter contexts already carrying id: FromContext on such a
// context still returns id, so events published with it are still
// attributed to id.
func (c *CorrelationScope) End(id contracts.CorrelationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// FromContext extracts the active correlation id, if any.
func FromContext(ctx context.Context) (contracts.CorrelationID, bool) {
	id, ok := ctx.Value(correlationKey{}).(contracts.CorrelationID)
	return id, ok
}
