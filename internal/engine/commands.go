package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/stravx/conquest/internal/dispatcher"
	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/session"
	"github.com/stravx/conquest/internal/territory"
)

// Command names and their positional arguments.
const (
	// session.start <playerID> [playerName] -> session id
	CmdSessionStart = "session.start"
	// session.sample <sessionID> <lon,lat> [RFC3339 timestamp] [accuracyOK] -> *territory.Outcome
	CmdSessionSample = "session.sample"
	// session.end <sessionID> -> session.Summary
	CmdSessionEnd = "session.end"
	// decay.sweep [RFC3339 now] -> decay.Report
	CmdDecaySweep = "decay.sweep"
	// area.prewarm <lon,lat> [radius m] -> area.PrewarmReport
	CmdAreaPrewarm = "area.prewarm"
	// area.cleanup <lon,lat> [keep radius m] -> area.CleanupReport
	CmdAreaCleanup = "area.cleanup"
)

// Register installs a handler for every command. Handlers run synchronously
// so a session's samples apply in dispatch order.
func (e *Engine) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdSessionStart, e.handleSessionStart, dispatcher.Logged())
	d.Register(CmdSessionSample, e.handleSessionSample)
	d.Register(CmdSessionEnd, e.handleSessionEnd, dispatcher.Logged())
	d.Register(CmdDecaySweep, e.handleDecaySweep, dispatcher.Logged())
	d.Register(CmdAreaPrewarm, e.handleAreaPrewarm, dispatcher.Logged())
	d.Register(CmdAreaCleanup, e.handleAreaCleanup, dispatcher.Logged())
}

func requireArgs(ev dispatcher.Event, n int) error {
	if len(ev.Args) < n {
		return fmt.Errorf("%s: expected at least %d args, got %d", ev.Command, n, len(ev.Args))
	}
	return nil
}

func (e *Engine) handleSessionStart(ctx context.Context, ev dispatcher.Event) (any, error) {
	if err := requireArgs(ev, 1); err != nil {
		return nil, err
	}
	name := ev.Arg(1)
	if name == "" {
		name = ev.Arg(0)
	}
	return e.StartSession(ctx, territory.Player{ID: ev.Arg(0), Name: name})
}

// parseSample reads args starting at the coordinate. A missing timestamp
// falls back to the event time, a missing accuracy flag means accurate. An
// unparsable coordinate is kept as NaN so the session counts the sample as
// skipped rather than failing the command.
func parseSample(ev dispatcher.Event, args []string) (session.Sample, error) {
	coord, err := geo.CoordinateFromString(args[0])
	if err != nil {
		coord = geo.Coordinate{Lat: math.NaN(), Lon: math.NaN()}
	}
	sample := session.Sample{Coordinate: coord, Timestamp: ev.Timestamp, AccuracyOK: true}
	if len(args) > 1 && args[1] != "" {
		ts, err := time.Parse(time.RFC3339Nano, args[1])
		if err != nil {
			return session.Sample{}, fmt.Errorf("%s: timestamp: %w", ev.Command, err)
		}
		sample.Timestamp = ts
	}
	if len(args) > 2 && args[2] != "" {
		ok, err := strconv.ParseBool(args[2])
		if err != nil {
			return session.Sample{}, fmt.Errorf("%s: accuracy flag: %w", ev.Command, err)
		}
		sample.AccuracyOK = ok
	}
	return sample, nil
}

func (e *Engine) handleSessionSample(ctx context.Context, ev dispatcher.Event) (any, error) {
	if err := requireArgs(ev, 2); err != nil {
		return nil, err
	}
	sample, err := parseSample(ev, ev.Args[1:])
	if err != nil {
		return nil, err
	}
	return e.Sample(ctx, ev.Arg(0), sample)
}

func (e *Engine) handleSessionEnd(ctx context.Context, ev dispatcher.Event) (any, error) {
	if err := requireArgs(ev, 1); err != nil {
		return nil, err
	}
	return e.EndSession(ctx, ev.Arg(0))
}

func (e *Engine) handleDecaySweep(ctx context.Context, ev dispatcher.Event) (any, error) {
	now := ev.Timestamp
	if s := ev.Arg(0); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ev.Command, err)
		}
		now = t
	}
	return e.Sweep(ctx, now)
}

func centerAndRadius(ev dispatcher.Event) (geo.Coordinate, float64, error) {
	if err := requireArgs(ev, 1); err != nil {
		return geo.Coordinate{}, 0, err
	}
	center, err := geo.CoordinateFromString(ev.Arg(0))
	if err != nil {
		return geo.Coordinate{}, 0, fmt.Errorf("%s: %w", ev.Command, err)
	}
	radius, err := parseRadius(ev.Arg(1))
	if err != nil {
		return geo.Coordinate{}, 0, fmt.Errorf("%s: %w", ev.Command, err)
	}
	return center, radius, nil
}

func (e *Engine) handleAreaPrewarm(ctx context.Context, ev dispatcher.Event) (any, error) {
	center, radius, err := centerAndRadius(ev)
	if err != nil {
		return nil, err
	}
	return e.Prewarm(ctx, center, radius)
}

func (e *Engine) handleAreaCleanup(ctx context.Context, ev dispatcher.Event) (any, error) {
	center, radius, err := centerAndRadius(ev)
	if err != nil {
		return nil, err
	}
	return e.Cleanup(ctx, center, radius)
}

func parseRadius(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r < 0 {
		return 0, fmt.Errorf("invalid radius %q", s)
	}
	return r, nil
}
