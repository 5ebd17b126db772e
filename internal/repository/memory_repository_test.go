package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/convergence-engine/contracts"
)

func TestMemoryRepository_AddGetRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, contracts.MemoryEntry{Namespace: "ns", Key: "k1", Value: "v1"}))

	got, err := repo.Get(ctx, "ns", "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got.Value)
}

func TestMemoryRepository_GetMissingReturnsNil(t *testing.T) {
	repo := NewMemoryRepository()
	got, err := repo.Get(context.Background(), "ns", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepository_SearchFiltersByPrefixAndKind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, contracts.MemoryEntry{Namespace: "ns", Key: "lesson/1", Type: "lesson"}))
	require.NoError(t, repo.Add(ctx, contracts.MemoryEntry{Namespace: "ns", Key: "lesson/2", Type: "lesson"}))
	require.NoError(t, repo.Add(ctx, contracts.MemoryEntry{Namespace: "ns", Key: "fact/1", Type: "fact"}))

	lessons, err := repo.Search(ctx, "lesson/", "lesson")
	require.NoError(t, err)
	assert.Len(t, lessons, 2)

	all, err := repo.Search(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryRepository_UpdateRequiresExistingEntry(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.Update(context.Background(), contracts.MemoryEntry{Namespace: "ns", Key: "missing"})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestMemoryRepository_DeleteRemovesEntry(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, contracts.MemoryEntry{Namespace: "ns", Key: "k1", Value: "v1"}))
	require.NoError(t, repo.Delete(ctx, "ns", "k1"))

	got, err := repo.Get(ctx, "ns", "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
