// Package notify delivers territory events to the notification collaborators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stravx/conquest/internal/cache"
	"github.com/stravx/conquest/internal/territory"
)

// Notifier receives territory events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, e territory.Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e territory.Event) error

func (f NotifierFunc) Notify(ctx context.Context, e territory.Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Notifier = NotifierFunc(func(context.Context, territory.Event) error { return nil })

// Fanout delivers each event to every target, continuing past failures.
type Fanout struct {
	targets  []Notifier
	failures cache.SafeCounter
}

func NewFanout(targets ...Notifier) *Fanout {
	return &Fanout{targets: targets}
}

// Add appends a target. It must not be called concurrently with Notify.
func (f *Fanout) Add(n Notifier) {
	f.targets = append(f.targets, n)
}

func (f *Fanout) Notify(ctx context.Context, e territory.Event) error {
	var errs []error
	for _, n := range f.targets {
		if err := n.Notify(ctx, e); err != nil {
			f.failures.Inc()
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify %s for %s: %w", e.Kind, e.TileID, errors.Join(errs...))
	}
	return nil
}

// Failures returns the number of failed deliveries so far.
func (f *Fanout) Failures() int {
	return f.failures.Value()
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []territory.Event
}

func (r *Recorder) Notify(_ context.Context, e territory.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []territory.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]territory.Event, len(r.events))
	copy(cp, r.events)
	return cp
}

// Kinds lists the recorded event kinds in order.
func (r *Recorder) Kinds() []territory.EventKind {
	events := r.Events()
	kinds := make([]territory.EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, e territory.Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Territory event",
		"kind", string(e.Kind),
		"tileId", e.TileID,
		"ownerId", e.OwnerID,
		"strength", e.Strength,
		"actor", e.ActorName,
	)
	return nil
}
