package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

const maxErrorBody = 512

// APIError is a non-200 answer from the completion endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Retryable reports rate limiting and upstream failures.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type OpenAICompatible struct {
	baseProvider
	authHeader   string
	authPrefix   string
	extraHeaders map[string]string
}

type OpenAICompatibleConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	AuthHeader   string // e.g., "Authorization"
	AuthPrefix   string // e.g., "Bearer "
	ExtraHeaders map[string]string
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []core.Message `json:"messages"`
	Tools    []core.Tool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message core.Message `json:"message"`
	} `json:"choices"`
}

func NewOpenAICompatible(cfg OpenAICompatibleConfig) *OpenAICompatible {
	return &OpenAICompatible{
		baseProvider: newBaseProvider(cfg.BaseURL, cfg.APIKey, cfg.Model),
		authHeader:   cfg.AuthHeader,
		authPrefix:   cfg.AuthPrefix,
		extraHeaders: cfg.ExtraHeaders,
	}
}

func (o *OpenAICompatible) Chat(ctx context.Context, history []core.Message, tools []core.Tool) (core.Message, error) {
	headers := make(map[string]string)
	if o.authHeader != "" && o.apiKey != "" {
		headers[o.authHeader] = o.authPrefix + o.apiKey
	}
	for k, v := range o.extraHeaders {
		headers[k] = v
	}

	started := time.Now()
	resp, err := o.doRequest(ctx, http.MethodPost, "/v1/chat/completions", chatRequest{
		Model:    o.model,
		Messages: toWire(history),
		Tools:    tools,
	}, headers)
	if err != nil {
		return core.Message{}, err
	}
	defer resp.Body.Close()

	msg, err := parseOpenAIResponse(resp)
	log.FromCtx(ctx).Debug().
		Str("model", o.model).
		Int("messages", len(history)).
		Dur("took", time.Since(started)).
		Err(err).
		Msg("chat completion")
	return msg, err
}

// toWire maps stored roles onto the ones the completion API accepts.
// Summaries become system messages and reasoning is never echoed back.
func toWire(history []core.Message) []core.Message {
	out := make([]core.Message, len(history))
	for i, m := range history {
		if m.Role == core.RoleSummary {
			m.Role = core.RoleSystem
		}
		m.Reasoning = ""
		out[i] = m
	}
	return out
}

func parseOpenAIResponse(resp *http.Response) (core.Message, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Message{}, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body := string(data)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody] + "..."
		}
		return core.Message{}, &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	var result chatResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return core.Message{}, fmt.Errorf("decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return core.Message{}, fmt.Errorf("empty choices: %s", string(data))
	}

	msg := result.Choices[0].Message
	if msg.Role == "" {
		msg.Role = core.RoleAssistant
	}
	return msg, nil
}
