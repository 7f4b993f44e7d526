package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sandevgo/tuskrelay/internal/core"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   core.ToolEvent
		want string
	}{
		{"calling", core.ToolEvent{Tool: "read_file", Status: core.ToolStatusCalling}, "  > read_file ..."},
		{"completed", core.ToolEvent{Tool: "read_file", Backend: "files", Status: core.ToolStatusCompleted}, "  < read_file done (files)"},
		{"error", core.ToolEvent{Tool: "search", Status: core.ToolStatusError, Error: "no backend"}, "  ! search failed: no backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEvent(tt.ev))
		})
	}
}
