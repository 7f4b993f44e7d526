package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

var (
	ErrEmptySessionID = errors.New("empty session id")
	ErrDecode         = errors.New("undecodable stored message")
)

var _ core.Memory = (*Store)(nil)

// entry is the persisted form of one message.
type entry struct {
	Message   core.Message `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

type SessionInfo struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Messages  int    `json:"messages"`
	Ephemeral bool   `json:"ephemeral"`
}

// Store keeps per-session message history in a list store, one entry per message.
type Store struct {
	lists core.ListStore
	now   func() time.Time
}

func NewStore(lists core.ListStore) *Store {
	return &Store{
		lists: lists,
		now:   time.Now,
	}
}

func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]core.StoredMessage, error) {
	key, err := s.key(sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := s.lists.Range(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	messages := make([]core.StoredMessage, 0, len(raw))
	for i, item := range raw {
		msg, err := decode(item)
		if err != nil {
			log.FromCtx(ctx).Warn().
				Err(err).
				Str("session", sessionID).
				Int("index", i).
				Msg("skipping stored message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg core.Message) error {
	key, err := s.key(sessionID)
	if err != nil {
		return err
	}

	data, err := s.encode(core.StoredMessage{Message: msg})
	if err != nil {
		return err
	}

	if err := s.lists.Append(ctx, key, data); err != nil {
		return fmt.Errorf("append to session %s: %w", sessionID, err)
	}
	return nil
}

// ReplaceMessages rewrites the whole session. Messages without a timestamp are stamped now.
// Stores implementing core.AtomicReplacer swap the list in one transaction, others
// delete and append, which briefly exposes an empty session to concurrent readers.
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, messages []core.StoredMessage) error {
	key, err := s.key(sessionID)
	if err != nil {
		return err
	}

	// Encode everything before touching the store
	values := make([]string, 0, len(messages))
	for _, m := range messages {
		data, err := s.encode(m)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	if r, ok := s.lists.(core.AtomicReplacer); ok {
		if err := r.Replace(ctx, key, values); err != nil {
			return fmt.Errorf("replace session %s: %w", sessionID, err)
		}
		return nil
	}

	if err := s.lists.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	if err := s.lists.Append(ctx, key, values...); err != nil {
		return fmt.Errorf("rewrite session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) DeleteMessages(ctx context.Context, sessionID string) error {
	key, err := s.key(sessionID)
	if err != nil {
		return err
	}
	if err := s.lists.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Count returns the number of stored entries, undecodable ones included.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	key, err := s.key(sessionID)
	if err != nil {
		return 0, err
	}
	n, err := s.lists.Len(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("count session %s: %w", sessionID, err)
	}
	return int(n), nil
}

// SessionIDs lists every stored session, ephemeral ones included.
func (s *Store) SessionIDs(ctx context.Context) ([]string, error) {
	keys, err := s.lists.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("enumerate sessions: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, SessionID(k))
	}
	return ids, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	keys, err := s.lists.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("enumerate sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(keys))
	for _, k := range keys {
		n, err := s.lists.Len(ctx, k)
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("key", k).Msg("failed to count session")
			continue
		}
		id := SessionID(k)
		sessions = append(sessions, SessionInfo{
			ID:        id,
			Key:       k,
			Messages:  int(n),
			Ephemeral: IsEphemeral(id),
		})
	}
	return sessions, nil
}

func (s *Store) key(sessionID string) (string, error) {
	if strings.TrimSpace(SessionID(sessionID)) == "" {
		return "", ErrEmptySessionID
	}
	return Key(sessionID), nil
}

func (s *Store) encode(m core.StoredMessage) (string, error) {
	ts := m.StoredAt
	if ts.IsZero() {
		ts = s.now()
	}

	data, err := json.Marshal(entry{Message: m.Message, Timestamp: ts.UTC()})
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(data), nil
}

func decode(raw string) (core.StoredMessage, error) {
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return core.StoredMessage{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if e.Message.Role == "" {
		return core.StoredMessage{}, fmt.Errorf("%w: missing role", ErrDecode)
	}
	return core.StoredMessage{Message: e.Message, StoredAt: e.Timestamp}, nil
}
