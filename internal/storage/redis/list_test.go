package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ListStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewListStore(client), mr
}

func TestListStore_AppendRange(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Append(ctx, "chat-memory:a", "one", "two"))
	require.NoError(t, store.Append(ctx, "chat-memory:a", "three"))
	require.NoError(t, store.Append(ctx, "chat-memory:a"))

	values, err := store.Range(ctx, "chat-memory:a")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, values)

	n, err := store.Len(ctx, "chat-memory:a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestListStore_MissingKey(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	values, err := store.Range(ctx, "chat-memory:none")
	require.NoError(t, err)
	assert.Empty(t, values)

	n, err := store.Len(ctx, "chat-memory:none")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, store.Delete(ctx, "chat-memory:none"))
}

func TestListStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.Append(ctx, "k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestListStore_Keys(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.Append(ctx, "chat-memory:b", "x"))
	require.NoError(t, store.Append(ctx, "chat-memory:a", "x"))
	require.NoError(t, store.Append(ctx, "chat-memory:temp-1", "x"))
	require.NoError(t, mr.Set("other:key", "x"))

	keys, err := store.Keys(ctx, "chat-memory:")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat-memory:a", "chat-memory:b", "chat-memory:temp-1"}, keys)
}

func TestListStore_Replace(t *testing.T) {
	tests := []struct {
		name    string
		initial []string
		replace []string
		want    []string
	}{
		{name: "shrink", initial: []string{"1", "2", "3"}, replace: []string{"s", "3"}, want: []string{"s", "3"}},
		{name: "missing key", replace: []string{"a"}, want: []string{"a"}},
		{name: "empty clears", initial: []string{"1"}, replace: nil, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newTestStore(t)

			require.NoError(t, store.Append(ctx, "k", tt.initial...))
			require.NoError(t, store.Replace(ctx, "k", tt.replace))

			got, err := store.Range(ctx, "k")
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
