package core

import "context"

type Memory interface {
	GetMessages(ctx context.Context, sessionID string) ([]StoredMessage, error)
	AppendMessage(ctx context.Context, sessionID string, msg Message) error
}
