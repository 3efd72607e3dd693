package memstore

import (
	"context"
	"testing"

	"github.com/riverline-labs/tenor/pkg/store"
	"github.com/stretchr/testify/require"
)

func TestMemstore_GetEntityState_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetEntityState(context.Background(), "Order", "order-1")
	require.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestMemstore_ListEntityStatesFilteredByState(t *testing.T) {
	s := New()
	ctx := context.Background()

	snap, _ := s.BeginSnapshot(ctx)
	require.NoError(t, snap.InitializeEntity(ctx, "Order", "order-1", "pending"))
	require.NoError(t, snap.InitializeEntity(ctx, "Order", "order-2", "approved"))
	require.NoError(t, snap.Commit(ctx))

	pending, err := s.ListEntityStates(ctx, "Order", "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "order-1", pending[0].Instance)

	all, err := s.ListEntityStates(ctx, "Order", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestMemstore_AbortIsInvisible(t *testing.T) {
	s := New()
	ctx := context.Background()

	snap, _ := s.BeginSnapshot(ctx)
	require.NoError(t, snap.InitializeEntity(ctx, "Order", "order-1", "pending"))
	require.NoError(t, snap.Abort(ctx))

	_, err := s.GetEntityState(ctx, "Order", "order-1")
	require.ErrorIs(t, err, store.ErrEntityNotFound)
}
