package command

import (
	"github.com/sandevgo/tuskrelay/internal/core"
)

func NewCommands(
	backends BackendAdmin,
	mem SessionMemory,
	compactor Compactor,
	scheduler SweepController,
	events EventLog,
) []core.Command {
	return []core.Command{
		NewMCPCommand(backends),
		NewMemoryCommand(mem, compactor),
		NewCompactionCommand(scheduler),
		NewEventsCommand(events),
	}
}
