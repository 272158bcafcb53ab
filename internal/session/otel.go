package session

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/stravx/conquest/internal/session"

type instruments struct {
	samples  metric.Int64Counter
	skipped  metric.Int64Counter
	captured metric.Int64Counter
	xp       metric.Int64Counter
	queued   metric.Int64Counter
}

// newInstruments uses the global meter, which is a no-op unless a provider
// has been installed.
func newInstruments() (*instruments, error) {
	m := otel.Meter(instrumentationName)
	ins := &instruments{}

	var err error
	if ins.samples, err = m.Int64Counter("session.samples.processed",
		metric.WithDescription("Samples resolved to a tile")); err != nil {
		return nil, fmt.Errorf("creating samples counter: %w", err)
	}
	if ins.skipped, err = m.Int64Counter("session.samples.skipped",
		metric.WithDescription("Samples rejected for accuracy or invalid coordinates")); err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}
	if ins.captured, err = m.Int64Counter("session.territories.captured",
		metric.WithDescription("Tiles captured or conquered")); err != nil {
		return nil, fmt.Errorf("creating captured counter: %w", err)
	}
	if ins.xp, err = m.Int64Counter("session.xp.awarded",
		metric.WithDescription("Experience points awarded")); err != nil {
		return nil, fmt.Errorf("creating xp counter: %w", err)
	}
	if ins.queued, err = m.Int64Counter("session.replay.queued",
		metric.WithDescription("Visits queued because storage was unavailable")); err != nil {
		return nil, fmt.Errorf("creating queued counter: %w", err)
	}
	return ins, nil
}
