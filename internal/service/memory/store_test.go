package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLists is an in-memory core.ListStore without atomic replacement.
type fakeLists struct {
	mu      sync.Mutex
	lists   map[string][]string
	deletes int
}

func newFakeLists() *fakeLists {
	return &fakeLists{lists: make(map[string][]string)}
}

func (f *fakeLists) Append(ctx context.Context, key string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func (f *fakeLists) Range(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...), nil
}

func (f *fakeLists) Len(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.lists[key])), nil
}

func (f *fakeLists) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.lists, key)
	return nil
}

func (f *fakeLists) Keys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.lists {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

type atomicLists struct {
	*fakeLists
	replaces int
}

func (a *atomicLists) Replace(ctx context.Context, key string, values []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replaces++
	a.lists[key] = append([]string(nil), values...)
	return nil
}

func msg(role, content string) core.StoredMessage {
	return core.StoredMessage{Message: core.Message{Role: role, Content: content}}
}

func TestStore_ReplaceRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		messages []core.StoredMessage
	}{
		{name: "empty", messages: nil},
		{name: "single", messages: []core.StoredMessage{msg(core.RoleUser, "hi")}},
		{
			name: "all roles in order",
			messages: []core.StoredMessage{
				msg(core.RoleSummary, "earlier we talked"),
				msg(core.RoleUser, "list pods"),
				msg(core.RoleAssistant, "calling tool"),
				msg(core.RoleSystem, "be brief"),
				msg(core.RoleAssistant, "done"),
			},
		},
		{
			name: "unicode and quotes",
			messages: []core.StoredMessage{
				msg(core.RoleUser, `olá "mundo"`),
				msg(core.RoleAssistant, "line1\nline2"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(newFakeLists())

			require.NoError(t, store.AppendMessage(ctx, "s1", core.Message{Role: core.RoleUser, Content: "stale"}))
			require.NoError(t, store.ReplaceMessages(ctx, "s1", tt.messages))

			got, err := store.GetMessages(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, got, len(tt.messages))
			for i := range tt.messages {
				assert.Equal(t, tt.messages[i].Role, got[i].Role)
				assert.Equal(t, tt.messages[i].Content, got[i].Content)
				assert.False(t, got[i].StoredAt.IsZero())
			}
		})
	}
}

func TestStore_ReplaceKeepsTimestamps(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeLists())
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed.Add(time.Hour) }

	old := msg(core.RoleUser, "old")
	old.StoredAt = fixed

	require.NoError(t, store.ReplaceMessages(ctx, "s1", []core.StoredMessage{old, msg(core.RoleAssistant, "new")}))

	got, err := store.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, fixed.Equal(got[0].StoredAt))
	assert.True(t, fixed.Add(time.Hour).Equal(got[1].StoredAt))
}

func TestStore_ReplaceUsesAtomicStore(t *testing.T) {
	ctx := context.Background()
	lists := &atomicLists{fakeLists: newFakeLists()}
	store := NewStore(lists)

	require.NoError(t, store.AppendMessage(ctx, "s1", core.Message{Role: core.RoleUser, Content: "a"}))
	require.NoError(t, store.ReplaceMessages(ctx, "s1", []core.StoredMessage{msg(core.RoleSummary, "sum")}))

	assert.Equal(t, 1, lists.replaces)
	assert.Zero(t, lists.deletes)
}

func TestStore_SkipsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	lists := newFakeLists()
	store := NewStore(lists)

	require.NoError(t, store.AppendMessage(ctx, "s1", core.Message{Role: core.RoleUser, Content: "first"}))
	require.NoError(t, lists.Append(ctx, Key("s1"), "not json", `{"message":{"content":"no role"},"timestamp":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, store.AppendMessage(ctx, "s1", core.Message{Role: core.RoleAssistant, Content: "second"}))

	got, err := store.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)

	n, err := store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_PersistedLayout(t *testing.T) {
	ctx := context.Background()
	lists := newFakeLists()
	store := NewStore(lists)

	require.NoError(t, store.AppendMessage(ctx, "abc", core.Message{Role: core.RoleUser, Content: "hi"}))

	raw := lists.lists["chat-memory:abc"]
	require.Len(t, raw, 1)
	assert.Contains(t, raw[0], `"message":{"role":"user","content":"hi"}`)
	assert.Contains(t, raw[0], `"timestamp":`)
}

func TestStore_KeyNormalization(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeLists())

	require.NoError(t, store.AppendMessage(ctx, "chat-memory:abc", core.Message{Role: core.RoleUser, Content: "hi"}))

	got, err := store.GetMessages(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, store.DeleteMessages(ctx, "abc"))
	got, err = store.GetMessages(ctx, "chat-memory:abc")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_EmptySessionID(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeLists())

	for _, id := range []string{"", "  ", KeyPrefix} {
		_, err := store.GetMessages(ctx, id)
		assert.ErrorIs(t, err, ErrEmptySessionID)
		assert.ErrorIs(t, store.AppendMessage(ctx, id, core.Message{Role: core.RoleUser}), ErrEmptySessionID)
		assert.ErrorIs(t, store.DeleteMessages(ctx, id), ErrEmptySessionID)
	}
}

func TestStore_ListSessions(t *testing.T) {
	ctx := context.Background()
	lists := newFakeLists()
	store := NewStore(lists)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendMessage(ctx, "alpha", core.Message{Role: core.RoleUser, Content: "x"}))
	}
	require.NoError(t, store.AppendMessage(ctx, "temp-123", core.Message{Role: core.RoleUser, Content: "x"}))
	require.NoError(t, lists.Append(ctx, "unrelated", "x"))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []SessionInfo{
		{ID: "alpha", Key: "chat-memory:alpha", Messages: 3},
		{ID: "temp-123", Key: "chat-memory:temp-123", Messages: 1, Ephemeral: true},
	}, sessions)

	ids, err := store.SessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "temp-123"}, ids)
}

func TestSessionHelpers(t *testing.T) {
	assert.Equal(t, "chat-memory:a", Key("a"))
	assert.Equal(t, "chat-memory:a", Key("chat-memory:a"))
	assert.Equal(t, "a", SessionID("chat-memory:a"))
	assert.True(t, IsEphemeral("temp-x"))
	assert.True(t, IsEphemeral("chat-memory:temp-x"))
	assert.False(t, IsEphemeral("x-temp-"))

	id := NewEphemeralSessionID()
	assert.True(t, IsEphemeral(id))
	assert.NotEqual(t, id, NewEphemeralSessionID())
}
