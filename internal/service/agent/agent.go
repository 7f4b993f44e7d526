package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sandevgo/tuskrelay/internal/config"
	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/internal/service/correlation"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

var ErrIterationLimit = errors.New("tool iteration limit reached")

type Agent struct {
	appCfg   *config.AppConfig
	ai       core.AIProvider
	tools    core.MCPServer
	memory   core.Memory
	tracker  *correlation.Tracker
	executor *Executor
}

func NewAgent(
	appCfg *config.AppConfig,
	ai core.AIProvider,
	tools core.MCPServer,
	memory core.Memory,
	tracker *correlation.Tracker,
) *Agent {
	return &Agent{
		appCfg:   appCfg,
		ai:       ai,
		tools:    tools,
		memory:   memory,
		tracker:  tracker,
		executor: NewExecutor(tools),
	}
}

// Run handles one chat turn. Every tool call made during the turn is recorded
// under requestID; an empty requestID gets a generated one.
func (a *Agent) Run(ctx context.Context, sessionID, requestID, input string, onUpdate func(core.Message)) (string, error) {
	ctx, requestID = a.tracker.Begin(ctx, requestID)

	logger := log.FromCtx(ctx).With().Str("session", sessionID).Str("request_id", requestID).Logger()
	ctx = logger.WithContext(ctx)

	userMsg := core.Message{Role: core.RoleUser, Content: input}
	if err := a.memory.AppendMessage(ctx, sessionID, userMsg); err != nil {
		return "", fmt.Errorf("failed to save user message: %w", err)
	}

	var finalContent string

	for i := 0; i < a.appCfg.MaxToolIterations; i++ {
		tools, err := a.tools.GetTools(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get tools: %w", err)
		}

		messages, err := a.buildContext(ctx, sessionID)
		if err != nil {
			return "", err
		}

		responseMsg, err := a.ai.Chat(ctx, messages, tools)
		if err != nil {
			return "", fmt.Errorf("ai chat error: %w", err)
		}
		if responseMsg.Role == "" {
			responseMsg.Role = core.RoleAssistant
		}

		if err := a.memory.AppendMessage(ctx, sessionID, responseMsg); err != nil {
			logger.Error().Err(err).Msg("failed to save assistant message")
		}

		if onUpdate != nil {
			onUpdate(responseMsg)
		}

		if responseMsg.Content != "" {
			finalContent = responseMsg.Content
		}

		if len(responseMsg.ToolCalls) == 0 {
			return finalContent, nil
		}

		for _, toolMsg := range a.executor.Execute(ctx, responseMsg.ToolCalls) {
			if err := a.memory.AppendMessage(ctx, sessionID, toolMsg); err != nil {
				logger.Error().Err(err).Msg("failed to save tool message")
			}
		}
	}

	logger.Warn().Int("limit", a.appCfg.MaxToolIterations).Msg("tool iteration limit reached")
	return finalContent, fmt.Errorf("%w (%d)", ErrIterationLimit, a.appCfg.MaxToolIterations)
}

// buildContext renders stored history for the model. Summaries become system
// messages; tool results whose call was compacted away are dropped.
func (a *Agent) buildContext(ctx context.Context, sessionID string) ([]core.Message, error) {
	stored, err := a.memory.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	history := make([]core.Message, 0, len(stored))
	for _, m := range stored {
		msg := m.Message
		msg.Reasoning = ""
		if msg.Role == core.RoleSummary {
			msg.Role = core.RoleSystem
		}
		history = append(history, msg)
	}

	return append(a.buildSystemPrompt(), sanitizeToolCalls(ctx, history)...), nil
}

func (a *Agent) buildSystemPrompt() []core.Message {
	messages := make([]core.Message, 0, 1)

	content, err := os.ReadFile(a.appCfg.GetSystemPath())
	if err != nil {
		return messages
	}
	if text := strings.TrimSpace(string(content)); text != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: text})
	}
	return messages
}

// sanitizeToolCalls drops tool results that do not answer a call of the
// closest preceding assistant message. A user message clears pending calls.
func sanitizeToolCalls(ctx context.Context, messages []core.Message) []core.Message {
	var (
		result  []core.Message
		pending = make(map[string]bool)
	)

	for _, m := range messages {
		switch m.Role {
		case core.RoleUser:
			clear(pending)
		case core.RoleAssistant:
			clear(pending)
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		case core.RoleTool:
			if !pending[m.ToolCallID] {
				log.FromCtx(ctx).Debug().Str("tool_call_id", m.ToolCallID).Msg("dropping orphaned tool result")
				continue
			}
		}
		result = append(result, m)
	}
	return result
}
