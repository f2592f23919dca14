package store

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotency(t *testing.T) {
	ctx := context.Background()
	keys := NewMemoryIdempotency()

	rec, err := keys.Reserve(ctx, "k1", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, rec, "first reservation owns the key")

	_, err = keys.Reserve(ctx, "k1", "hash-a")
	assert.ErrorIs(t, err, ErrIdempotencyInProgress)

	_, err = keys.Reserve(ctx, "k1", "hash-b")
	assert.ErrorIs(t, err, ErrIdempotencyMismatch)

	require.NoError(t, keys.Complete(ctx, "k1", http.StatusCreated, []byte(`{"ok":true}`)))

	rec, err = keys.Reserve(ctx, "k1", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Completed)
	assert.Equal(t, http.StatusCreated, rec.ResponseStatus)
	assert.JSONEq(t, `{"ok":true}`, string(rec.ResponseBody))

	// a completed key is never released
	require.NoError(t, keys.Release(ctx, "k1"))
	rec, err = keys.Reserve(ctx, "k1", "hash-a")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestMemoryIdempotency_Release(t *testing.T) {
	ctx := context.Background()
	keys := NewMemoryIdempotency()

	_, err := keys.Reserve(ctx, "k2", "hash")
	require.NoError(t, err)
	require.NoError(t, keys.Release(ctx, "k2"))

	rec, err := keys.Reserve(ctx, "k2", "other-hash")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Error(t, keys.Complete(ctx, "missing", http.StatusOK, nil))
}
