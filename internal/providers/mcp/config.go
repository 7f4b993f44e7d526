package mcp

import (
	"fmt"
	"net/url"
	"strings"
)

type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
	TransportSSE   TransportType = "sse"
)

// Config is the persisted backend catalog, keyed by backend name.
type Config struct {
	MCPServers map[string]BackendConfig `json:"mcpServers" yaml:"mcpServers"`
}

// BackendConfig describes one tool backend. Name is its identity.
type BackendConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Endpoint is a URL for http/sse, or a command line for stdio.
	Endpoint     string            `json:"endpoint" yaml:"endpoint"`
	Transport    TransportType     `json:"transport,omitempty" yaml:"transport,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	LogRequests  bool              `json:"logRequests,omitempty" yaml:"logRequests,omitempty"`
	LogResponses bool              `json:"logResponses,omitempty" yaml:"logResponses,omitempty"`
}

// GetTransport resolves the transport, inferring it from the endpoint when unset.
func (c BackendConfig) GetTransport() (TransportType, error) {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("invalid config: endpoint is empty")
	}

	isURL := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")

	switch c.Transport {
	case "":
		if isURL {
			return TransportHTTP, nil
		}
		return TransportStdio, nil
	case TransportStdio:
		return TransportStdio, nil
	case TransportHTTP, TransportSSE:
		if !isURL {
			return "", fmt.Errorf("invalid config: %s transport needs an http(s) url, got %q", c.Transport, endpoint)
		}
		if _, err := url.Parse(endpoint); err != nil {
			return "", fmt.Errorf("invalid config: %w", err)
		}
		return c.Transport, nil
	}

	return "", fmt.Errorf("unsupported transport type: %s", c.Transport)
}

// CommandLine splits a stdio endpoint into command and arguments.
func (c BackendConfig) CommandLine() (string, []string) {
	fields := strings.Fields(c.Endpoint)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func (c BackendConfig) envList() []string {
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
