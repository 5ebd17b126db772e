package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationScope_StartAndFromContext(t *testing.T) {
	scope := NewCorrelationScope()
	ctx, id := scope.Start(context.Background())

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestCorrelationScope_FromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestCorrelationScope_EndDoesNotInvalidateContext(t *testing.T) {
	scope := NewCorrelationScope()
	ctx, id := scope.Start(context.Background())
	scope.End(id)

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestCorrelationScope_DistinctStartsProduceDistinctIDs(t *testing.T) {
	scope := NewCorrelationScope()
	_, id1 := scope.Start(context.Background())
	_, id2 := scope.Start(context.Background())
	assert.NotEqual(t, id1, id2)
}
