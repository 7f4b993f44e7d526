package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

const (
	maxToolOutput = 2000
	keepHead      = 500
)

// Executor turns model tool calls into tool result messages.
type Executor struct {
	tools core.MCPServer
}

func NewExecutor(tools core.MCPServer) *Executor {
	return &Executor{
		tools: tools,
	}
}

// Execute runs the calls in order. Failures become tool results so the model can react,
// and every result answers its call id.
func (e *Executor) Execute(ctx context.Context, toolCalls []core.ToolCall) []core.Message {
	results := make([]core.Message, 0, len(toolCalls))
	for _, tc := range toolCalls {
		logger := log.FromCtx(ctx).With().Str("tool", tc.Function.Name).Str("call_id", tc.ID).Logger()

		res, err := e.tools.CallTool(ctx, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			logger.Warn().Err(err).Msg("tool call failed")
			res = fmt.Sprintf("Error: %v", err)
		} else {
			logger.Debug().Int("bytes", len(res)).Msg("tool call done")
		}

		results = append(results, core.Message{
			Role:       core.RoleTool,
			Content:    e.truncate(res),
			ToolCallID: tc.ID,
		})
	}
	return results
}

// truncate keeps the head and the tail of long output, cut on rune boundaries.
func (e *Executor) truncate(input string) string {
	n := utf8.RuneCountInString(input)
	if n <= maxToolOutput {
		return input
	}

	runes := []rune(input)
	head := string(runes[:keepHead])
	tail := string(runes[n-(maxToolOutput-keepHead):])

	var sb strings.Builder
	sb.WriteString(head)
	fmt.Fprintf(&sb, "\n\n... [TRUNCATED %d characters] ...\n\n", n-maxToolOutput)
	sb.WriteString(tail)
	return sb.String()
}
