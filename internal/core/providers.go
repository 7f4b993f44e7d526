package core

import "context"

type AIProvider interface {
	Chat(ctx context.Context, history []Message, tools []Tool) (Message, error)
}

// Summarizer condenses a plain-text transcript into a shorter text.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type MCPServer interface {
	GetTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args string) (string, error)
}
