package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ListStore {
	t.Helper()
	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewListStore(db)
}

func TestListStore_AppendRangeLen(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, "chat-memory:a", "one", "two"))
	require.NoError(t, store.Append(ctx, "chat-memory:b", "other"))
	require.NoError(t, store.Append(ctx, "chat-memory:a", "three"))

	values, err := store.Range(ctx, "chat-memory:a")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, values)

	n, err := store.Len(ctx, "chat-memory:a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestListStore_Keys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, "chat-memory:b", "x"))
	require.NoError(t, store.Append(ctx, "chat-memory:a", "x", "y"))
	require.NoError(t, store.Append(ctx, "chat_memory:z", "x"))
	require.NoError(t, store.Append(ctx, "other", "x"))

	keys, err := store.Keys(ctx, "chat-memory:")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat-memory:a", "chat-memory:b"}, keys)

	// underscore must not act as a wildcard
	keys, err = store.Keys(ctx, "chat_")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat_memory:z"}, keys)
}

func TestListStore_ReplaceDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, "k", "1", "2", "3"))
	require.NoError(t, store.Replace(ctx, "k", []string{"summary", "3"}))

	values, err := store.Range(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"summary", "3"}, values)

	require.NoError(t, store.Delete(ctx, "k"))
	values, err = store.Range(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
