package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/convergence-engine/contracts"
)

func TestEventStore_AppendAndLen(t *testing.T) {
	store := NewEventStore()
	require.NoError(t, store.Append(context.Background(), contracts.DomainEvent{Sequence: 1}))
	require.NoError(t, store.Append(context.Background(), contracts.DomainEvent{Sequence: 2}))
	assert.Equal(t, 2, store.Len())
}

func TestEventStore_ReadSinceReturnsOnlyNewer(t *testing.T) {
	store := NewEventStore()
	for i := 1; i <= 5; i++ {
		_ = store.Append(context.Background(), contracts.DomainEvent{Sequence: contracts.Sequence(i)})
	}

	got, err := store.ReadSince(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, contracts.Sequence(3), got[0].Sequence)
	assert.Equal(t, contracts.Sequence(5), got[2].Sequence)
}

func TestEventStore_ReadSinceRespectsLimit(t *testing.T) {
	store := NewEventStore()
	for i := 1; i <= 5; i++ {
		_ = store.Append(context.Background(), contracts.DomainEvent{Sequence: contracts.Sequence(i)})
	}

	got, err := store.ReadSince(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
