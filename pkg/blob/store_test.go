package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "ws1/doc1/original", strings.NewReader("hello")))
	require.NoError(t, store.Put(ctx, "ws1/doc1/text", strings.NewReader("extracted")))

	rc, err := store.Get(ctx, "ws1/doc1/original")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, "ws1/doc1/original"))
	_, err = store.Get(ctx, "ws1/doc1/original")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.DeletePrefix(ctx, "ws1"))
	_, err = store.Get(ctx, "ws1/doc1/text")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside", strings.NewReader("x"))
	assert.Error(t, err)
	assert.NoError(t, store.Delete(context.Background(), "missing/key"))
}
