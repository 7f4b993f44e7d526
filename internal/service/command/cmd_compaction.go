package command

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/internal/service/compaction"
)

type SweepController interface {
	ForceSweep(ctx context.Context) (compaction.SweepReport, bool)
	Enable(ctx context.Context)
	Disable(ctx context.Context)
	Status() compaction.Status
}

type CompactionCommand struct {
	scheduler SweepController
	formatter *ResponseFormatter
}

func NewCompactionCommand(scheduler SweepController) core.Command {
	return &CompactionCommand{
		scheduler: scheduler,
		formatter: NewResponseFormatter(),
	}
}

func (c *CompactionCommand) Name() string {
	return "compaction"
}

func (c *CompactionCommand) Description() string {
	return "Control the compaction scheduler"
}

func (c *CompactionCommand) Usage() []string {
	return []string{"status", "enable", "disable", "sweep"}
}

func (c *CompactionCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) == 0 {
		return c.status(), nil
	}
	if len(args) != 1 {
		return "", usageError(c)
	}

	switch args[0] {
	case "status":
		return c.status(), nil
	case "enable":
		c.scheduler.Enable(ctx)
		return c.formatter.Success("Compaction scheduler enabled"), nil
	case "disable":
		c.scheduler.Disable(ctx)
		return c.formatter.Success("Compaction scheduler disabled"), nil
	case "sweep":
		report, ran := c.scheduler.ForceSweep(ctx)
		if !ran {
			return c.formatter.Combine(
				c.formatter.Info("Sweep"),
				c.formatter.Label("Status", "a sweep is already running"),
			), nil
		}
		return c.formatter.Combine(c.formatter.Info("Sweep finished"), c.report(report)), nil
	}
	return "", usageError(c)
}

func (c *CompactionCommand) status() string {
	st := c.scheduler.Status()

	sections := []string{
		c.formatter.Info("Compaction scheduler"),
		c.formatter.Label("Enabled", fmt.Sprintf("%t", st.Enabled)),
		c.formatter.Label("Running", fmt.Sprintf("%t", st.Running)),
		c.formatter.Label("Interval", st.Interval.String()),
		c.formatter.Label("Thresholds", fmt.Sprintf("scheduled %d, manual %d, keep %d", st.MinMessages, st.ManualMinMessages, st.KeepRecent)),
	}
	if st.LastRun != nil {
		sections = append(sections, c.formatter.Section("🕘", "Last sweep", c.report(*st.LastRun)))
	} else {
		sections = append(sections, c.formatter.Label("Last sweep", "never"))
	}
	return c.formatter.Combine(sections...)
}

func (c *CompactionCommand) report(r compaction.SweepReport) string {
	out := c.formatter.Combine(
		c.formatter.Label("Started", r.StartedAt.Local().Format(time.DateTime)),
		c.formatter.Label("Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()),
		c.formatter.Count("Sessions", r.Sessions),
		c.formatter.Count("Compacted", r.Compacted),
		c.formatter.Count("Failed", r.Failed),
		c.formatter.Count("Estimated tokens saved", r.TokensSaved),
	)
	if r.Error != "" {
		out += c.formatter.Label("Error", r.Error)
	}
	return out
}
