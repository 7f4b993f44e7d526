package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/internal/service/compaction"
	"github.com/sandevgo/tuskrelay/internal/service/memory"
)

type SessionMemory interface {
	GetMessages(ctx context.Context, sessionID string) ([]core.StoredMessage, error)
	DeleteMessages(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]memory.SessionInfo, error)
}

type Compactor interface {
	CanCompact(ctx context.Context, sessionID string) (compaction.Eligibility, error)
	ForceCompact(ctx context.Context, sessionID string) (compaction.Result, error)
}

type MemoryCommand struct {
	memory    SessionMemory
	compactor Compactor
	formatter *ResponseFormatter
}

func NewMemoryCommand(mem SessionMemory, compactor Compactor) core.Command {
	return &MemoryCommand{
		memory:    mem,
		compactor: compactor,
		formatter: NewResponseFormatter(),
	}
}

func (c *MemoryCommand) Name() string {
	return "memory"
}

func (c *MemoryCommand) Description() string {
	return "Inspect and compact conversation memory"
}

func (c *MemoryCommand) Usage() []string {
	return []string{
		"show [session]",
		"raw [session]",
		"sessions",
		"delete [session]",
		"can-compact [session]",
		"compact [session]",
	}
}

// Execute defaults the session argument to the caller's session.
func (c *MemoryCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) == 0 {
		return c.show(ctx, sessionID, false)
	}
	if len(args) > 2 {
		return "", usageError(c)
	}

	target := sessionID
	if len(args) == 2 {
		target = args[1]
	}

	switch args[0] {
	case "show":
		return c.show(ctx, target, false)
	case "raw":
		return c.show(ctx, target, true)
	case "sessions":
		return c.sessions(ctx)
	case "delete":
		if err := c.memory.DeleteMessages(ctx, target); err != nil {
			return "", err
		}
		return c.formatter.Success(fmt.Sprintf("Memory of %s deleted", target)), nil
	case "can-compact":
		return c.check(ctx, target)
	case "compact":
		return c.compact(ctx, target)
	}
	return "", usageError(c)
}

// show lists the history as the model would see it. raw also prints tool
// traffic and timestamps.
func (c *MemoryCommand) show(ctx context.Context, sessionID string, raw bool) (string, error) {
	messages, err := c.memory.GetMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Memory"),
			c.formatter.Label("Session", sessionID),
			"No messages stored.",
		), nil
	}

	items := make([]string, 0, len(messages))
	for _, m := range messages {
		if !raw && (m.Role == core.RoleTool || (m.Role == core.RoleAssistant && m.Content == "")) {
			continue
		}
		line := fmt.Sprintf("**%s**: %s", m.Role, preview(m.Content, 200))
		if raw {
			line = fmt.Sprintf("`%s` %s", m.StoredAt.Local().Format(time.DateTime), line)
			if len(m.ToolCalls) > 0 {
				line += fmt.Sprintf(" (%d tool calls)", len(m.ToolCalls))
			}
		}
		items = append(items, line)
	}

	return c.formatter.Combine(
		c.formatter.Info("Memory"),
		c.formatter.Label("Session", sessionID),
		c.formatter.Count("Stored messages", len(messages)),
		c.formatter.List(items),
	), nil
}

func (c *MemoryCommand) sessions(ctx context.Context) (string, error) {
	sessions, err := c.memory.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return c.formatter.Combine(c.formatter.Info("Sessions"), "No sessions stored."), nil
	}

	items := make([]string, len(sessions))
	for i, s := range sessions {
		items[i] = fmt.Sprintf("**%s** %d messages", s.ID, s.Messages)
		if s.Ephemeral {
			items[i] += " (ephemeral)"
		}
	}
	return c.formatter.Combine(c.formatter.Info("Sessions"), c.formatter.List(items)), nil
}

func (c *MemoryCommand) check(ctx context.Context, sessionID string) (string, error) {
	e, err := c.compactor.CanCompact(ctx, sessionID)
	if err != nil {
		return "", err
	}

	sections := []string{
		c.formatter.Info("Compaction check"),
		c.formatter.Label("Session", sessionID),
		c.formatter.Count("Messages", e.MessageCount),
		c.formatter.Count("Threshold", e.MinMessages),
	}
	if e.CanCompact {
		sections = append(sections, c.formatter.Label("Eligible", "yes"))
	} else {
		sections = append(sections, c.formatter.Label("Eligible", fmt.Sprintf("no, %d more messages needed", e.MissingMessages)))
	}
	return c.formatter.Combine(sections...), nil
}

func (c *MemoryCommand) compact(ctx context.Context, sessionID string) (string, error) {
	res, err := c.compactor.ForceCompact(ctx, sessionID)
	if err != nil {
		return "", err
	}

	title := "Compaction skipped"
	if res.Success {
		title = "Compaction done"
	}
	return c.formatter.Combine(
		c.formatter.Info(title),
		c.formatter.Label("Session", sessionID),
		c.formatter.Label("Messages", fmt.Sprintf("%d → %d", res.MessagesBefore, res.MessagesAfter)),
		c.formatter.Count("Estimated tokens saved", res.EstimatedTokensSaved),
		res.Message,
	), nil
}

func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
