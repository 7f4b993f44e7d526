package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

const DefaultRetention = 5 * time.Minute

var _ core.ToolEventRecorder = (*Tracker)(nil)

// Tracker keeps the tool event timeline of recent requests.
type Tracker struct {
	mu        sync.RWMutex
	events    map[string][]core.ToolEvent
	retention time.Duration
	now       func() time.Time
	publisher core.ToolEventPublisher
}

type Option func(*Tracker)

func WithRetention(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithPublisher forwards every recorded event to p.
func WithPublisher(p core.ToolEventPublisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		events:    make(map[string][]core.ToolEvent),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts a logical request. An empty requestID gets a fresh one.
// Expired timelines are pruned here.
func (t *Tracker) Begin(ctx context.Context, requestID string) (context.Context, string) {
	if requestID == "" {
		requestID = NewRequestID()
	}
	t.prune()
	return WithRequestID(ctx, requestID), requestID
}

// RecordToolEvent appends ev to the timeline of the request carried by ctx.
// Without a request id nothing is recorded.
func (t *Tracker) RecordToolEvent(ctx context.Context, ev core.ToolEvent) {
	requestID, ok := RequestIDFromCtx(ctx)
	if !ok {
		return
	}

	ev.RequestID = requestID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now()
	}

	t.mu.Lock()
	t.events[requestID] = append(t.events[requestID], ev)
	t.mu.Unlock()

	if t.publisher == nil {
		return
	}
	if err := t.publisher.PublishToolEvent(ctx, ev); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("request_id", requestID).Msg("failed to publish tool event")
	}
}

// Events returns a copy of the timeline for requestID, empty when unknown.
func (t *Tracker) Events(requestID string) []core.ToolEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	events := t.events[requestID]
	out := make([]core.ToolEvent, len(events))
	copy(out, events)
	return out
}

// Requests lists the request ids currently retained.
func (t *Tracker) Requests() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.events))
	for id := range t.events {
		ids = append(ids, id)
	}
	return ids
}

func (t *Tracker) prune() {
	cutoff := t.now().Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, events := range t.events {
		if len(events) == 0 || events[0].Timestamp.Before(cutoff) {
			delete(t.events, id)
		}
	}
}
