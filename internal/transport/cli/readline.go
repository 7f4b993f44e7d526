package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sandevgo/tuskrelay/internal/config"
	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

// DefaultSessionID is the durable session of the local console.
const DefaultSessionID = "cli-local"

// Chatter runs one chat turn.
type Chatter interface {
	Run(ctx context.Context, sessionID, requestID, input string, onUpdate func(core.Message)) (string, error)
}

// EventSource streams tool events of all requests.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan core.ToolEvent, error)
}

type ReadLine struct {
	cfg       *config.AppConfig
	sessionID string
	agent     Chatter
	router    core.CmdRouter
	events    EventSource
	onExit    func()
	rl        *readline.Instance
}

// NewReadLine builds the interactive console bound to sessionID. onExit is called
// when the user leaves the prompt, events may be nil.
func NewReadLine(cfg *config.AppConfig, sessionID string, agent Chatter, router core.CmdRouter, events EventSource, onExit func()) (*ReadLine, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     cfg.GetHistoryPath(),
		AutoComplete:    completer(router),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		cfg:       cfg,
		sessionID: sessionID,
		agent:     agent,
		router:    router,
		events:    events,
		onExit:    onExit,
		rl:        rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Str("session", r.sessionID).Msg("ReadLine chat started. Type 'exit' to quit, /help for commands.")

	if r.onExit != nil {
		defer r.onExit()
	}

	if r.events != nil {
		events, err := r.events.Subscribe(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("tool progress is unavailable")
		} else {
			go r.printEvents(events)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil
				}
				continue
			} else if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		if out, ok := r.router.Execute(ctx, r.sessionID, line); ok {
			fmt.Fprintln(r.rl.Stdout(), out)
			continue
		}

		_, err = r.agent.Run(ctx, r.sessionID, "", line, func(msg core.Message) {
			if msg.Reasoning != "" {
				fmt.Fprintf(r.rl.Stdout(), "\033[38;5;240m[Thinking]\n%s\033[0m\n", msg.Reasoning)
			}
			if msg.Content != "" {
				fmt.Fprintf(r.rl.Stdout(), "%s\n", msg.Content)
			}
		})
		if err != nil {
			logger.Error().Err(err).Msg("agent run failed")
			fmt.Fprintf(r.rl.Stdout(), "Error: %v\n", err)
		}
	}
}

func (r *ReadLine) printEvents(events <-chan core.ToolEvent) {
	for ev := range events {
		fmt.Fprintln(r.rl.Stdout(), formatEvent(ev))
	}
}

func formatEvent(ev core.ToolEvent) string {
	switch ev.Status {
	case core.ToolStatusCalling:
		return fmt.Sprintf("  > %s ...", ev.Tool)
	case core.ToolStatusCompleted:
		return fmt.Sprintf("  < %s done (%s)", ev.Tool, ev.Backend)
	default:
		return fmt.Sprintf("  ! %s failed: %s", ev.Tool, ev.Error)
	}
}

func completer(router core.CmdRouter) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{readline.PcItem("/help")}
	for _, cmd := range router.ListCommands() {
		var subs []readline.PrefixCompleterInterface
		for _, u := range cmd.Usage() {
			if word, _, _ := strings.Cut(u, " "); word != "" && !strings.HasPrefix(word, "<") && !strings.HasPrefix(word, "[") {
				subs = append(subs, readline.PcItem(word))
			}
		}
		items = append(items, readline.PcItem("/"+cmd.Name(), subs...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
