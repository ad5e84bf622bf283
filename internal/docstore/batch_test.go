package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchCommitIsAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "inbox", "a", map[string]any{"read": false}))

	batch := store.Batch().
		Update("inbox", "a", map[string]any{"read": true}).
		Update("inbox", "missing", map[string]any{"read": true})
	require.Equal(t, 2, batch.Len())
	require.ErrorIs(t, batch.Commit(ctx), ErrNotFound)

	snap, err := store.Get(ctx, "inbox", "a")
	require.NoError(t, err)
	require.Equal(t, false, snap.Data["read"], "failed batch must roll back")
}

func TestBatchMixedOperations(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "inbox", "old", map[string]any{"read": true}))

	err := store.Batch().
		Set("inbox", "new", map[string]any{"read": false}).
		Delete("inbox", "old").
		Commit(ctx)
	require.NoError(t, err)

	docs, err := store.Collection("inbox").Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "new", docs[0].ID)
}

func TestBatchRejectsTooManyOperations(t *testing.T) {
	store, _ := newTestStore(t)
	batch := store.Batch()
	for i := 0; i <= MaxBatchOps; i++ {
		batch.Delete("inbox", fmt.Sprintf("doc-%d", i))
	}
	require.ErrorIs(t, batch.Commit(context.Background()), ErrBatchTooLarge)
}

func TestBatchSurfacesInvalidOperation(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Batch().Update("inbox", "a", nil).Commit(context.Background())
	require.ErrorIs(t, err, ErrEmptyUpdate)

	require.NoError(t, store.Batch().Commit(context.Background()))
}
