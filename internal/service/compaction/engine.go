package compaction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/tuskrelay/internal/config"
	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

const (
	SummaryHeader = "Conversation summary"

	msgNotEnough          = "not enough messages to compact"
	msgCompacted          = "compaction completed"
	msgFailed             = "compaction failed: %v"
	defaultSummaryTimeout = 2 * time.Minute
)

type Store interface {
	GetMessages(ctx context.Context, sessionID string) ([]core.StoredMessage, error)
	ReplaceMessages(ctx context.Context, sessionID string, messages []core.StoredMessage) error
}

// Result describes one compaction attempt.
type Result struct {
	SessionID            string `json:"session_id"`
	Success              bool   `json:"success"`
	MessagesBefore       int    `json:"messages_before"`
	MessagesAfter        int    `json:"messages_after"`
	EstimatedTokensSaved int    `json:"estimated_tokens_saved"`
	Message              string `json:"message"`
}

type Eligibility struct {
	CanCompact      bool `json:"can_compact"`
	MessageCount    int  `json:"message_count"`
	MinMessages     int  `json:"min_messages"`
	MissingMessages int  `json:"missing_messages"`
}

// Engine replaces the old part of a session with a generated summary,
// keeping the most recent messages verbatim.
type Engine struct {
	store      Store
	summarizer core.Summarizer
	estimator  TokenEstimator

	minMessages       int
	manualMinMessages int
	keepRecent        int
	summaryTimeout    time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock

	now func() time.Time
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewEngine(cfg *config.CompactionConfig, store Store, summarizer core.Summarizer, estimator TokenEstimator) *Engine {
	if estimator == nil {
		estimator = CharEstimator{}
	}
	timeout := cfg.SummaryTimeout
	if timeout <= 0 {
		timeout = defaultSummaryTimeout
	}

	return &Engine{
		store:             store,
		summarizer:        summarizer,
		estimator:         estimator,
		minMessages:       cfg.MinMessages,
		manualMinMessages: cfg.ManualMinMessages,
		keepRecent:        cfg.KeepRecent,
		summaryTimeout:    timeout,
		locks:             make(map[string]*sessionLock),
		now:               time.Now,
	}
}

// Compact applies the scheduled threshold.
func (e *Engine) Compact(ctx context.Context, sessionID string) (Result, error) {
	return e.compact(ctx, sessionID, e.minMessages)
}

// ForceCompact applies the lower threshold used for operator requests.
func (e *Engine) ForceCompact(ctx context.Context, sessionID string) (Result, error) {
	return e.compact(ctx, sessionID, e.manualMinMessages)
}

// CanCompact reports eligibility against the operator threshold.
func (e *Engine) CanCompact(ctx context.Context, sessionID string) (Eligibility, error) {
	messages, err := e.store.GetMessages(ctx, sessionID)
	if err != nil {
		return Eligibility{}, &Error{Op: "read", SessionID: sessionID, Err: err}
	}

	n := len(messages)
	return Eligibility{
		CanCompact:      n >= e.manualMinMessages,
		MessageCount:    n,
		MinMessages:     e.manualMinMessages,
		MissingMessages: max(0, e.manualMinMessages-n),
	}, nil
}

func (e *Engine) compact(ctx context.Context, sessionID string, minMessages int) (Result, error) {
	unlock := e.lock(sessionID)
	defer unlock()

	logger := log.FromCtx(ctx).With().Str("session", sessionID).Logger()

	messages, err := e.store.GetMessages(ctx, sessionID)
	if err != nil {
		return Result{SessionID: sessionID}, &Error{Op: "read", SessionID: sessionID, Err: err}
	}

	before := len(messages)
	res := Result{
		SessionID:      sessionID,
		MessagesBefore: before,
		MessagesAfter:  before,
	}

	if before < minMessages || before <= e.keepRecent {
		res.Message = msgNotEnough
		return res, nil
	}

	split := before - e.keepRecent
	old, recent := messages[:split], messages[split:]

	transcript, oldText := renderTranscript(old)

	logger.Info().Int("messages", before).Int("summarized", len(old)).Msg("compacting session")

	summary, err := e.summarize(ctx, transcript)
	if err != nil {
		res.Message = fmt.Sprintf(msgFailed, err)
		return res, &Error{Op: "summarize", SessionID: sessionID, Err: fmt.Errorf("%w: %w", ErrSummarization, err)}
	}

	now := e.now()
	rebuilt := make([]core.StoredMessage, 0, len(recent)+1)
	rebuilt = append(rebuilt, core.StoredMessage{
		Message: core.Message{
			Role:    core.RoleSummary,
			Content: fmt.Sprintf("%s (generated at %s):\n\n%s", SummaryHeader, now.UTC().Format(time.RFC3339), summary),
		},
		StoredAt: now,
	})
	rebuilt = append(rebuilt, recent...)

	if err := e.store.ReplaceMessages(ctx, sessionID, rebuilt); err != nil {
		res.Message = fmt.Sprintf(msgFailed, err)
		return res, &Error{Op: "replace", SessionID: sessionID, Err: err}
	}

	res.Success = true
	res.MessagesAfter = len(rebuilt)
	res.EstimatedTokensSaved = e.estimator.Estimate(oldText) - e.estimator.Estimate(summary)
	res.Message = msgCompacted

	logger.Info().
		Int("before", res.MessagesBefore).
		Int("after", res.MessagesAfter).
		Int("tokens_saved", res.EstimatedTokensSaved).
		Msg("session compacted")

	return res, nil
}

func (e *Engine) summarize(ctx context.Context, transcript string) (string, error) {
	sCtx, cancel := context.WithTimeout(ctx, e.summaryTimeout)
	defer cancel()

	summary, err := e.summarizer.Summarize(sCtx, transcript)
	if err != nil {
		return "", err
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}

// lock serializes compactions of one session.
func (e *Engine) lock(sessionID string) func() {
	e.mu.Lock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		e.locks[sessionID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, sessionID)
		}
		e.mu.Unlock()
	}
}

// renderTranscript labels earlier summaries and user and assistant turns.
// Tool traffic is dropped. It also returns the concatenated text, which is
// what the token estimate counts. The transcript may be empty.
func renderTranscript(messages []core.StoredMessage) (transcript, text string) {
	var sb, raw strings.Builder
	for _, m := range messages {
		var label string
		switch m.Role {
		case core.RoleUser:
			label = "User"
		case core.RoleAssistant:
			label = "Assistant"
		case core.RoleSummary:
			label = "Earlier summary"
		default:
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}

		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
		raw.WriteString(m.Content)
	}
	return sb.String(), raw.String()
}
