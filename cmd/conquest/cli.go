package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/stravx/conquest/internal/config"
	"github.com/stravx/conquest/internal/dispatcher"
	"github.com/stravx/conquest/internal/engine"
	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/logging"
	"github.com/stravx/conquest/internal/monitor"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/progression"
	"github.com/stravx/conquest/internal/territory"
)

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"replay":  cmdReplay,
	"decay":   cmdDecay,
	"prewarm": cmdPrewarm,
	"cleanup": cmdCleanup,
	"stats":   cmdStats,
	"level":   cmdLevel,
}

// stdout receives command results. Logs never go here.
var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// app is an opened store, its sinks and the engine on top.
type app struct {
	backend *backend
	sinks   *sinks
	engine  *engine.Engine
}

func openApp(ctx context.Context) (*app, error) {
	b, err := openStorage(config.GetStorageConfig())
	if err != nil {
		return nil, err
	}
	s := openSinks(ctx)
	closers = append(closers, b, s)

	eng, err := engine.New(engine.Dependencies{
		Store:    b.store,
		Profiles: b.profiles,
		Notifier: s.notifier,
		Archive:  b.archive,
		Metrics:  s.metrics,
		Game:     config.GetGameConfig(),
		Logger:   SlogManager.Component("engine"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return &app{backend: b, sinks: s, engine: eng}, nil
}

func parseCenter(fs *flag.FlagSet, at string) (geo.Coordinate, error) {
	if at == "" {
		fs.Usage()
		return geo.Coordinate{}, errors.New("-at lon,lat is required")
	}
	c, err := geo.CoordinateFromString(at)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("-at %q: %w", at, err)
	}
	return c, nil
}

// replayLine is one result row written by replay.
type replayLine struct {
	Line    int    `json:"line"`
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// replayReport counts what replay did.
type replayReport struct {
	Events int `json:"events"`
	Failed int `json:"failed"`
}

// replayEvents dispatches one JSON dispatcher.Event per line of r, in order,
// and writes one replayLine per event to w. Blank lines and lines starting
// with '#' are skipped. With strict the first failure stops the replay.
//
// Session ids are generated, so after a session.start for player p an
// argument "$p" stands for that session in later lines.
func replayEvents(ctx context.Context, d *dispatcher.Dispatcher, r io.Reader, w io.Writer, strict bool) (replayReport, error) {
	var report replayReport
	sessions := make(map[string]string)
	enc := json.NewEncoder(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Events++
		out := replayLine{Line: n}
		var ev dispatcher.Event
		err := json.Unmarshal(line, &ev)
		if err == nil {
			out.Command = ev.Command
			for i, arg := range ev.Args {
				if id, ok := sessions[arg]; ok {
					ev.Args[i] = id
				}
			}
			out.Result, err = d.Dispatch(logging.WithContextAttrs(ctx, slog.Int("line", n)), ev)
			if id, ok := out.Result.(string); ok && err == nil && ev.Command == engine.CmdSessionStart {
				sessions["$"+ev.Arg(0)] = id
			}
		} else {
			err = fmt.Errorf("invalid event: %w", err)
		}
		if err != nil {
			report.Failed++
			out.Error = err.Error()
		}
		if encErr := enc.Encode(out); encErr != nil {
			return report, encErr
		}
		if err != nil && strict {
			return report, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read events: %w", err)
	}
	return report, nil
}

func cmdReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	file := fs.String("file", "-", "JSON-lines event file, - for stdin")
	strict := fs.Bool("strict", false, "stop at the first failed event")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("failed to open events: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer d.Close()
	a.engine.Register(d)

	start := time.Now()
	report, err := replayEvents(ctx, d, in, stdout, *strict)
	// sessions left open by the input are ended so they are archived
	if cErr := a.engine.Close(context.WithoutCancel(ctx)); cErr != nil {
		Logger.Error("Failed to end open sessions", "error", cErr)
	}
	Logger.Info("Replay finished",
		"events", report.Events,
		"failed", report.Failed,
		"duration", time.Since(start))
	return err
}

func cmdDecay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decay", flag.ContinueOnError)
	at := fs.String("now", "", "sweep as of this RFC3339 time instead of the current time")
	schedule := fs.Bool("schedule", false, "keep sweeping every territory.decayInterval until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}

	if *schedule {
		if mc := config.GetMonitorConfig(); mc.Enabled {
			mon := monitor.NewService(monitor.Dependencies{
				Source:     a.engine,
				LogManager: SlogManager,
				Metrics:    a.sinks.metrics,
				Path:       mc.StatusFile,
				Interval:   mc.Interval,
			})
			if err := mon.Start(); err != nil {
				return err
			}
			defer mon.Stop()
		}
		Logger.Info("Scheduling decay sweeps", "interval", config.GetGameConfig().DecayInterval)
		a.engine.ScheduleDecay(ctx)
		return nil
	}

	now := time.Now().UTC()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("-now: %w", err)
		}
	}
	report, err := a.engine.Sweep(ctx, now)
	if pErr := printJSON(report); pErr != nil {
		return pErr
	}
	return err
}

func cmdPrewarm(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prewarm", flag.ContinueOnError)
	at := fs.String("at", "", "center as lon,lat")
	radius := fs.Float64("radius", 0, "radius in meters, 0 for territory.prewarmRadius")
	if err := fs.Parse(args); err != nil {
		return err
	}
	center, err := parseCenter(fs, *at)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	report, err := a.engine.Prewarm(ctx, center, *radius)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func cmdCleanup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	at := fs.String("at", "", "center as lon,lat")
	keep := fs.Float64("keep", 0, "keep radius in meters, 0 for territory.keepRadius")
	if err := fs.Parse(args); err != nil {
		return err
	}
	center, err := parseCenter(fs, *at)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	report, err := a.engine.Cleanup(ctx, center, *keep)
	if err != nil {
		return err
	}
	return printJSON(report)
}

// statsOutput is what stats prints.
type statsOutput struct {
	Storage     string            `json:"storage"`
	Territories int               `json:"territories"`
	Neutral     int               `json:"neutral"`
	Owned       territory.Stats   `json:"owned"`
	Profiles    int               `json:"profiles"`
	Tables      map[string]int64  `json:"tables,omitempty"`
	Player      *territory.Stats  `json:"player,omitempty"`
	Sessions    []sessionOverview `json:"sessions,omitempty"`
}

type sessionOverview struct {
	SessionID string    `json:"sessionId"`
	EndedAt   time.Time `json:"endedAt"`
	Captured  int       `json:"captured"`
	XP        int       `json:"xp"`
}

func collectStats(ctx context.Context, b *backend, playerID string, limit int) (statsOutput, error) {
	out := statsOutput{Storage: b.kind}

	all, err := b.store.FetchAll(ctx)
	if err != nil {
		return out, err
	}
	out.Territories = len(all)
	for _, t := range all {
		if t.IsNeutral() {
			out.Neutral++
		}
	}
	out.Owned = territory.Summarize(all)

	profiles, err := b.profiles.ListProfiles(ctx)
	if err != nil {
		return out, err
	}
	out.Profiles = len(profiles)

	if s, ok := b.store.(statser); ok {
		if out.Tables, err = s.Stats(ctx); err != nil {
			return out, err
		}
	}

	if playerID == "" {
		return out, nil
	}
	owned, err := b.store.FetchOwnedBy(ctx, playerID)
	if err != nil {
		return out, err
	}
	ps := territory.Summarize(owned)
	out.Player = &ps

	if l, ok := b.store.(sessionLister); ok {
		summaries, err := l.ListSessions(ctx, playerID, limit)
		if err != nil {
			return out, err
		}
		for _, s := range summaries {
			out.Sessions = append(out.Sessions, sessionOverview{
				SessionID: s.SessionID,
				EndedAt:   s.EndedAt,
				Captured:  s.TerritoriesCaptured,
				XP:        s.XPGained,
			})
		}
	}
	return out, nil
}

func cmdStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	player := fs.String("player", "", "also summarize this player's territories and sessions")
	limit := fs.Int("sessions", 10, "number of recent sessions to list with -player")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := openStorage(config.GetStorageConfig())
	if err != nil {
		return err
	}
	closers = append(closers, b)

	out, err := collectStats(ctx, b, *player, *limit)
	if err != nil {
		return err
	}
	return printJSON(out)
}

// levelOutput is what level prints.
type levelOutput struct {
	PlayerID string          `json:"playerId,omitempty"`
	Name     string          `json:"name,omitempty"`
	Badges   []profile.Badge `json:"badges,omitempty"`
	progression.LevelProgress
}

func cmdLevel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("level", flag.ContinueOnError)
	player := fs.String("player", "", "player id to look up")
	xp := fs.Int("xp", -1, "XP total to place without a lookup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *xp >= 0:
		return printJSON(levelOutput{LevelProgress: progression.Progress(*xp)})
	case *player == "":
		fs.Usage()
		return errors.New("one of -player or -xp is required")
	}

	b, err := openStorage(config.GetStorageConfig())
	if err != nil {
		return err
	}
	closers = append(closers, b)

	p, err := b.profiles.GetProfile(ctx, *player)
	if errors.Is(err, profile.ErrNotFound) {
		return fmt.Errorf("player %q has no profile", *player)
	}
	if err != nil {
		return err
	}
	return printJSON(levelOutput{PlayerID: p.PlayerID, Name: p.Name, Badges: p.Badges, LevelProgress: p.Progress()})
}
