package compaction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandevgo/tuskrelay/internal/config"
	"github.com/sandevgo/tuskrelay/internal/service/memory"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

type SessionLister interface {
	SessionIDs(ctx context.Context) ([]string, error)
}

// SweepReport summarizes one pass over all sessions.
type SweepReport struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Forced      bool      `json:"forced"`
	Sessions    int       `json:"sessions"`
	Compacted   int       `json:"compacted"`
	Failed      int       `json:"failed"`
	TokensSaved int       `json:"tokens_saved"`
	Results     []Result  `json:"results,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type Status struct {
	Enabled           bool          `json:"enabled"`
	Running           bool          `json:"running"`
	Interval          time.Duration `json:"interval"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MinMessages       int           `json:"min_messages"`
	ManualMinMessages int           `json:"manual_min_messages"`
	KeepRecent        int           `json:"keep_recent"`
	LastRun           *SweepReport  `json:"last_run,omitempty"`
}

// Scheduler runs the engine over every durable session on a fixed interval.
// Sweeps never overlap.
type Scheduler struct {
	cfg      *config.CompactionConfig
	engine   *Engine
	sessions SessionLister

	enabled atomic.Bool
	running atomic.Bool

	mu      sync.RWMutex
	lastRun *SweepReport

	stop chan struct{}
	done chan struct{}
	once sync.Once

	now func() time.Time
}

func NewScheduler(cfg *config.CompactionConfig, engine *Engine, sessions SessionLister) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		engine:   engine,
		sessions: sessions,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	s.enabled.Store(cfg.Enabled)
	return s
}

// Start blocks running the schedule until ctx ends or Shutdown is called.
func (s *Scheduler) Start(ctx context.Context) error {
	defer close(s.done)

	logger := log.FromCtx(ctx)
	logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("initial_delay", s.cfg.InitialDelay).
		Bool("enabled", s.enabled.Load()).
		Msg("compaction scheduler started")

	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-s.stop:
		return nil
	case <-timer.C:
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.stop) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep is the scheduled entry point. It does nothing while disabled.
// The bool is false when the sweep was skipped.
func (s *Scheduler) Sweep(ctx context.Context) (SweepReport, bool) {
	if !s.enabled.Load() {
		log.FromCtx(ctx).Debug().Msg("compaction disabled, skipping sweep")
		return SweepReport{}, false
	}
	return s.run(ctx, false)
}

// ForceSweep runs a sweep now even while disabled. It still never overlaps
// a running sweep.
func (s *Scheduler) ForceSweep(ctx context.Context) (SweepReport, bool) {
	return s.run(ctx, true)
}

func (s *Scheduler) Enable(ctx context.Context) {
	s.enabled.Store(true)
	log.FromCtx(ctx).Info().Msg("compaction scheduler enabled")
}

func (s *Scheduler) Disable(ctx context.Context) {
	s.enabled.Store(false)
	log.FromCtx(ctx).Info().Msg("compaction scheduler disabled")
}

func (s *Scheduler) Status() Status {
	st := Status{
		Enabled:           s.enabled.Load(),
		Running:           s.running.Load(),
		Interval:          s.cfg.Interval,
		InitialDelay:      s.cfg.InitialDelay,
		MinMessages:       s.cfg.MinMessages,
		ManualMinMessages: s.cfg.ManualMinMessages,
		KeepRecent:        s.cfg.KeepRecent,
	}

	s.mu.RLock()
	if s.lastRun != nil {
		last := *s.lastRun
		st.LastRun = &last
	}
	s.mu.RUnlock()

	return st
}

func (s *Scheduler) run(ctx context.Context, forced bool) (report SweepReport, ran bool) {
	logger := log.FromCtx(ctx)

	if !s.running.CompareAndSwap(false, true) {
		logger.Info().Bool("forced", forced).Msg("sweep already running, skipping")
		return SweepReport{}, false
	}
	defer s.running.Store(false)

	report = SweepReport{StartedAt: s.now(), Forced: forced}
	defer func() {
		if r := recover(); r != nil {
			report.Error = fmt.Sprintf("sweep aborted: %v", r)
			ran = true
			logger.Error().Interface("panic", r).Msg("compaction sweep aborted")
		}
		report.FinishedAt = s.now()
		s.setLastRun(report)
	}()

	s.sweep(ctx, &report)
	return report, true
}

func (s *Scheduler) sweep(ctx context.Context, report *SweepReport) {
	logger := log.FromCtx(ctx)

	ids, err := s.sessions.SessionIDs(ctx)
	if err != nil {
		report.Error = err.Error()
		logger.Error().Err(err).Msg("failed to enumerate sessions")
		return
	}

	logger.Info().Int("sessions", len(ids)).Msg("compaction sweep started")

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Error = err.Error()
			break
		}
		if memory.IsEphemeral(id) {
			continue
		}
		report.Sessions++

		res, err := s.compactOne(ctx, id)
		if err != nil {
			report.Failed++
			res.SessionID = id
			report.Results = append(report.Results, res)
			logger.Error().Err(err).Str("session", id).Msg("failed to compact session")
			continue
		}
		if !res.Success {
			continue
		}

		report.Compacted++
		report.TokensSaved += res.EstimatedTokensSaved
		report.Results = append(report.Results, res)
	}

	if report.Compacted > 0 {
		logger.Info().
			Int("compacted", report.Compacted).
			Int("failed", report.Failed).
			Int("tokens_saved", report.TokensSaved).
			Msg("compaction sweep finished")
	} else {
		logger.Info().Int("failed", report.Failed).Msg("no session needed compaction")
	}
}

// compactOne turns a panic in one session into that session's error.
func (s *Scheduler) compactOne(ctx context.Context, id string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{SessionID: id, Message: fmt.Sprintf(msgFailed, r)}
			err = &Error{Op: "compact", SessionID: id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.engine.Compact(ctx, id)
}

func (s *Scheduler) setLastRun(report SweepReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &report
}
