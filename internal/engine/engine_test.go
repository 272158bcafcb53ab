package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stravx/conquest/internal/area"
	"github.com/stravx/conquest/internal/config"
	"github.com/stravx/conquest/internal/decay"
	"github.com/stravx/conquest/internal/dispatcher"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/logging"
	"github.com/stravx/conquest/internal/notify"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/session"
	"github.com/stravx/conquest/internal/storage/memory"
	"github.com/stravx/conquest/internal/territory"
)

var (
	clock    = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	toulouse = "1.4442,43.6047"
)

type archive struct {
	mu    sync.Mutex
	saved []session.Summary
}

func (a *archive) SaveSession(_ context.Context, s session.Summary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, s)
	return nil
}

type metrics struct {
	mu     sync.Mutex
	points []string
}

func (m *metrics) WriteMetric(_ context.Context, measurement string, _ map[string]string, _ map[string]any, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, measurement)
	return nil
}

type fixture struct {
	engine   *Engine
	store    *memory.Backend
	profiles *profile.MemoryRepository
	events   *notify.Recorder
	archive  *archive
	metrics  *metrics
	d        *dispatcher.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		profiles: profile.NewMemoryRepository(),
		events:   &notify.Recorder{},
		archive:  &archive{},
		metrics:  &metrics{},
	}
	e, err := New(Dependencies{
		Store:    f.store,
		Profiles: f.profiles,
		Notifier: f.events,
		Archive:  f.archive,
		Metrics:  f.metrics,
		Game:     config.GameConfig{Zoom: grid.DefaultZoom, Policy: territory.DefaultXPPolicy()},
		Now:      func() time.Time { return clock },
	})
	require.NoError(t, err)
	f.engine = e

	f.d, err = dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(f.d.Close)
	e.Register(f.d)
	return f
}

func (f *fixture) dispatch(t *testing.T, cmd string, args ...string) any {
	t.Helper()
	out, err := f.d.Dispatch(context.Background(), dispatcher.Event{Command: cmd, Args: args, Timestamp: clock})
	require.NoError(t, err)
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Dependencies{Profiles: profile.NewMemoryRepository()})
	assert.ErrorIs(t, err, session.ErrNoStore)

	_, err = New(Dependencies{Store: memory.New()})
	assert.Error(t, err)

	_, err = New(Dependencies{Store: memory.New(), Profiles: profile.NewMemoryRepository(), Game: config.GameConfig{Zoom: 3}})
	assert.ErrorIs(t, err, grid.ErrUnknownZoom)
}

func TestSessionLifecycleThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, ok := f.dispatch(t, CmdSessionStart, "alice", "Alice").(string)
	require.True(t, ok)
	assert.Equal(t, []string{id}, f.engine.Sessions())

	out, ok := f.dispatch(t, CmdSessionSample, id, toulouse, clock.Format(time.RFC3339)).(*territory.Outcome)
	require.True(t, ok)
	require.NotNil(t, out)
	assert.True(t, out.Captured)

	// Same tile again is deduplicated, bad accuracy and bad coordinates are skipped.
	f.dispatch(t, CmdSessionSample, id, toulouse)
	f.dispatch(t, CmdSessionSample, id, toulouse, "", "false")
	f.dispatch(t, CmdSessionSample, id, "not,a-coordinate")

	snap, err := f.engine.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.SkippedSamples)

	sum, ok := f.dispatch(t, CmdSessionEnd, id).(session.Summary)
	require.True(t, ok)
	assert.Equal(t, 1, sum.TerritoriesCaptured)
	assert.Equal(t, 10, sum.XPGained)
	assert.Equal(t, 1, sum.TilesVisited)
	assert.Equal(t, 2, sum.SkippedSamples)
	assert.Empty(t, f.engine.Sessions())

	require.Len(t, f.archive.saved, 1)
	assert.Equal(t, id, f.archive.saved[0].SessionID)
	assert.Equal(t, []string{MeasurementSession}, f.metrics.points)

	p, err := f.engine.Profiles().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10+profile.BadgeXP, p.TotalXP)
	assert.Equal(t, 1, p.TerritoriesOwned)

	_, err = f.d.Dispatch(ctx, dispatcher.Event{Command: CmdSessionEnd, Args: []string{id}})
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestStartSession_OnePerPlayer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := territory.Player{ID: "alice", Name: "Alice"}

	first, err := f.engine.StartSession(ctx, alice)
	require.NoError(t, err)
	_, err = f.engine.StartSession(ctx, alice)
	assert.ErrorIs(t, err, ErrPlayerActive)

	_, err = f.engine.EndSession(ctx, first)
	require.NoError(t, err)
	_, err = f.engine.StartSession(ctx, alice)
	assert.NoError(t, err)

	_, err = f.engine.StartSession(ctx, territory.Player{})
	assert.Error(t, err)
}

func TestCommandArgumentErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, ev := range []dispatcher.Event{
		{Command: CmdSessionStart},
		{Command: CmdSessionSample, Args: []string{"only-id"}},
		{Command: CmdSessionSample, Args: []string{"missing", toulouse}},
		{Command: CmdSessionSample, Args: []string{"x", toulouse, "yesterday"}},
		{Command: CmdDecaySweep, Args: []string{"tomorrow"}},
		{Command: CmdAreaPrewarm, Args: []string{"nowhere"}},
		{Command: CmdAreaCleanup, Args: []string{toulouse, "-5"}},
	} {
		_, err := f.d.Dispatch(ctx, ev)
		assert.Error(t, err, "%s %v", ev.Command, ev.Args)
	}
}

func TestDecaySweepThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.dispatch(t, CmdSessionStart, "alice").(string)
	f.dispatch(t, CmdSessionSample, id, toulouse)
	f.dispatch(t, CmdSessionEnd, id)

	later := clock.AddDate(0, 0, 15).Format(time.RFC3339)
	report, ok := f.dispatch(t, CmdDecaySweep, later).(decay.Report)
	require.True(t, ok)
	assert.Equal(t, 1, report.Examined)
	require.Len(t, report.Neutralized, 1)
	assert.Equal(t, "alice", report.Neutralized[0].OwnerID)
	assert.Contains(t, f.events.Kinds(), territory.EventLost)
	assert.Contains(t, f.metrics.points, MeasurementSweep)

	p, err := f.engine.Profiles().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, p.TerritoriesOwned)
	assert.Equal(t, 1, p.TerritoriesLost)
}

func TestAreaCommands(t *testing.T) {
	f := newFixture(t)

	pre, ok := f.dispatch(t, CmdAreaPrewarm, toulouse, "300").(area.PrewarmReport)
	require.True(t, ok)
	assert.Greater(t, pre.Created, 0)
	assert.Equal(t, pre.Created, f.store.Len())

	// Paris is far from every prewarmed tile.
	clean, ok := f.dispatch(t, CmdAreaCleanup, "2.3522,48.8566", "1000").(area.CleanupReport)
	require.True(t, ok)
	assert.Len(t, clean.Deleted, pre.Created)
	assert.Equal(t, 0, f.store.Len())
}

func TestClose_EndsActiveSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, p := range []string{"alice", "bob"} {
		_, err := f.engine.StartSession(ctx, territory.Player{ID: p, Name: p})
		require.NoError(t, err)
	}
	require.NoError(t, f.engine.Close(ctx))
	assert.Empty(t, f.engine.Sessions())
	assert.Len(t, f.archive.saved, 2)
}

func TestScheduleDecay_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.engine.deps.Game.DecayInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.ScheduleDecay(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal(errors.New("scheduler did not stop"))
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.dispatch(t, CmdSessionStart, "alice").(string)
	f.dispatch(t, CmdSessionSample, id, toulouse)

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, clock, st.Time)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, 0, st.PendingSamples)
	assert.Equal(t, 1, st.Territories)
	assert.Equal(t, 1, st.Owned)
	assert.True(t, st.LastSweepAt.IsZero())

	f.dispatch(t, CmdSessionEnd, id)
	_, err = f.engine.Sweep(ctx, clock.AddDate(0, 0, 15))
	require.NoError(t, err)

	st, err = f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ActiveSessions)
	assert.Equal(t, 0, st.Owned)
	assert.Equal(t, 1, st.LastNeutral)
	assert.False(t, st.LastSweepAt.IsZero())
}
