package core

import (
	"context"
	"time"
)

type ToolStatus string

const (
	ToolStatusCalling   ToolStatus = "calling"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

// ToolEvent is one step of a tool execution timeline for a request.
type ToolEvent struct {
	RequestID string     `json:"request_id"`
	Tool      string     `json:"tool"`
	Backend   string     `json:"backend,omitempty"`
	Status    ToolStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type ToolEventRecorder interface {
	RecordToolEvent(ctx context.Context, ev ToolEvent)
}

type ToolEventPublisher interface {
	PublishToolEvent(ctx context.Context, ev ToolEvent) error
}
