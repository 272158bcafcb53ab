package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/stravx/conquest/internal/config"
	"github.com/stravx/conquest/internal/logging"
	intOtel "github.com/stravx/conquest/internal/otel"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ServiceName string = "conquest"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger feeds the libraries that log through zerolog
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	StartedAt time.Time = time.Now()

	LogFilePath string
	logFile     *os.File

	// closed in reverse order on shutdown
	closers []io.Closer
)

const usage = `usage: conquest [-config dir] <command> [flags]

commands:
  replay    dispatch JSON-lines commands from a file or stdin
  decay     run one decay sweep
  prewarm   create neutral territories around a point
  cleanup   delete neutral territories far from a point
  stats     print territory and table counts
  level     print progression for a player or an XP total
  version   print the build version
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(ServiceName, flag.ContinueOnError)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	if command == "version" {
		fmt.Printf("%s %s (built %s)\n", ServiceName, CurrentVersion, BuildDate)
		return 0
	}
	cmd, ok := commands[command]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		fs.Usage()
		return 2
	}

	if err := setup(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContextAttrs(ctx, slog.String("command", command))

	if err := cmd(ctx, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		Logger.ErrorContext(ctx, "Command failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		return 1
	}
	return 0
}

// setup loads the config and brings up logging, telemetry and the sinks
// every command shares.
func setup(configDir string) error {
	ZLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", ServiceName).Logger()

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	err := config.Load(configDir)
	switch {
	case errors.Is(err, config.ErrNoConfigFile):
		Logger.Warn("No config file found, using defaults", "dir", configDir, "file", config.FileName)
	case err != nil:
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := config.GetString("logLevel")
	if lvl, perr := zerolog.ParseLevel(level); perr == nil {
		ZLogger = ZLogger.Level(lvl)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	LogFilePath = logging.LogFilePath(logsDir, ServiceName, StartedAt)
	logFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", LogFilePath, err)
	}
	closers = append(closers, logFile)

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		otelCfg.LogWriter = logFile
		OTelProvider, err = intOtel.New(otelCfg)
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, closer, gerr := logging.NewGelfHandler(gl.Address, level)
		if gerr != nil {
			Logger.Error("Failed to connect to Graylog", "address", gl.Address, "error", gerr)
		} else {
			extra = append(extra, h)
			closers = append(closers, closer)
		}
	}

	SlogManager.SetContextProvider(buildAttrs)
	SlogManager.Setup(logFile, level, otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Starting up",
		"version", CurrentVersion,
		"build", BuildDate,
		"log", filepath.ToSlash(LogFilePath))
	return nil
}

// buildAttrs tags every record with the running build.
func buildAttrs(context.Context) []slog.Attr {
	return []slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", CurrentVersion),
	}
}

func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
	closers = nil
}
