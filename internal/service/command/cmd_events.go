package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sandevgo/tuskrelay/internal/core"
)

type EventLog interface {
	Events(requestID string) []core.ToolEvent
	Requests() []string
}

type EventsCommand struct {
	events    EventLog
	formatter *ResponseFormatter
}

func NewEventsCommand(events EventLog) core.Command {
	return &EventsCommand{
		events:    events,
		formatter: NewResponseFormatter(),
	}
}

func (c *EventsCommand) Name() string {
	return "events"
}

func (c *EventsCommand) Description() string {
	return "Show tool call timelines of recent requests"
}

func (c *EventsCommand) Usage() []string {
	return []string{"", "<request-id>"}
}

func (c *EventsCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	switch len(args) {
	case 0:
		return c.requests(), nil
	case 1:
		return c.timeline(args[0]), nil
	}
	return "", usageError(c)
}

func (c *EventsCommand) requests() string {
	ids := c.events.Requests()
	if len(ids) == 0 {
		return c.formatter.Combine(c.formatter.Info("Requests"), "No tool activity recorded recently.")
	}
	sort.Strings(ids)

	items := make([]string, len(ids))
	for i, id := range ids {
		items[i] = fmt.Sprintf("`%s` %d events", id, len(c.events.Events(id)))
	}
	return c.formatter.Combine(c.formatter.Info("Requests"), c.formatter.List(items))
}

func (c *EventsCommand) timeline(requestID string) string {
	events := c.events.Events(requestID)
	if len(events) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Timeline"),
			c.formatter.Label("Request", requestID),
			"No events.",
		)
	}

	items := make([]string, len(events))
	for i, ev := range events {
		line := fmt.Sprintf("`%s` **%s** %s", ev.Timestamp.Local().Format(time.TimeOnly), ev.Tool, ev.Status)
		if ev.Backend != "" {
			line += " on " + ev.Backend
		}
		if ev.Error != "" {
			line += ": " + ev.Error
		}
		items[i] = line
	}
	return c.formatter.Combine(
		c.formatter.Info("Timeline"),
		c.formatter.Label("Request", requestID),
		c.formatter.List(items),
	)
}
