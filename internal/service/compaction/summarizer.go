package compaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/retry"
)

const summaryPrompt = `You write concise summaries of conversations.
Condense the conversation below into a single informative summary.

Rules:
- Keep every important technical detail: resource names, commands, errors, identifiers.
- Preserve the context and the logical order of the conversation.
- Write plain prose in one or more paragraphs, no headings or lists.
- Do not add anything that was not in the original messages.
- Keep important commands or outputs in the summary verbatim.`

const emptyTranscript = "(no user or assistant text, only tool activity)"

var _ core.Summarizer = (*LLMSummarizer)(nil)

// LLMSummarizer asks a chat model for the summary. Answers that report
// themselves retryable (rate limits, server errors) are retried.
type LLMSummarizer struct {
	ai      core.AIProvider
	retrier *retry.Retrier
}

// NewLLMSummarizer makes a single attempt per call when retrier is nil.
func NewLLMSummarizer(ai core.AIProvider, retrier *retry.Retrier) *LLMSummarizer {
	if retrier != nil {
		retrier = retrier.Named("summarize")
	}
	return &LLMSummarizer{ai: ai, retrier: retrier}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if transcript == "" {
		transcript = emptyTranscript
	}
	history := []core.Message{
		{Role: core.RoleSystem, Content: summaryPrompt},
		{Role: core.RoleUser, Content: transcript},
	}

	var resp core.Message
	op := func(ctx context.Context) error {
		var err error
		resp, err = s.ai.Chat(ctx, history, nil)
		if err != nil && !retryable(err) {
			return retry.Permanent(err)
		}
		return err
	}

	var err error
	if s.retrier == nil {
		resp, err = s.ai.Chat(ctx, history, nil)
	} else {
		err = s.retrier.Do(ctx, op)
	}
	if err != nil {
		return "", fmt.Errorf("summary request: %w", err)
	}
	return resp.Content, nil
}

// retryable trusts errors that classify themselves and gives up on
// cancellation. Anything else, such as a dropped connection, is retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var classified interface{ Retryable() bool }
	if errors.As(err, &classified) {
		return classified.Retryable()
	}
	return true
}
