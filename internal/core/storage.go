package core

import (
	"context"
	"time"
)

// ListStore is a durable store of ordered string lists addressed by key.
type ListStore interface {
	Append(ctx context.Context, key string, values ...string) error
	Range(ctx context.Context, key string) ([]string, error)
	Len(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// AtomicReplacer is implemented by stores able to swap a whole list in one transaction.
type AtomicReplacer interface {
	Replace(ctx context.Context, key string, values []string) error
}

type StoredMessage struct {
	Message
	StoredAt time.Time `json:"stored_at"`
}
