package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means a backend could not be reached or is misconfigured.
	ErrConnection = errors.New("backend connection failed")
	// ErrToolNotFound means no live backend advertises the tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolExecution means every backend advertising the tool failed.
	ErrToolExecution = errors.New("tool execution failed")

	ErrBackendNotFound = errors.New("backend not found")
	ErrBackendClosed   = errors.New("backend closed")
)

// ToolError carries the last failure of a tool that every advertising backend failed to run.
type ToolError struct {
	Tool    string
	Backend string
	Err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed on backend %q: %v", e.Tool, e.Backend, e.Err)
}

func (e *ToolError) Unwrap() []error {
	return []error{ErrToolExecution, e.Err}
}
