// Package monitor periodically samples engine status into a JSON file and,
// when a metric writer is configured, a time series point.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stravx/conquest/internal/logging"
)

// ErrNoSource is returned by Start without a Source.
var ErrNoSource = errors.New("monitor: no status source")

// MeasurementStatus is the metric name for status points.
const MeasurementStatus = "engine_status"

// Status is one sample of what the engine is doing.
type Status struct {
	Time           time.Time `json:"time"`
	ActiveSessions int       `json:"activeSessions"`
	PendingSamples int       `json:"pendingSamples"`
	Territories    int       `json:"territories"`
	Owned          int       `json:"owned"`
	LastSweepAt    time.Time `json:"lastSweepAt,omitzero"`
	LastNeutral    int       `json:"lastSweepNeutralized"`
}

// Source produces status samples.
type Source interface {
	Status(ctx context.Context) (Status, error)
}

// MetricWriter receives a point per sample.
type MetricWriter interface {
	WriteMetric(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, at time.Time) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     Source
	LogManager *logging.SlogManager
	Metrics    MetricWriter
	// Path of the status file. Empty disables the file.
	Path     string
	Interval time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	log       *slog.Logger
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	log := slog.Default()
	if deps.LogManager != nil {
		log = deps.LogManager.Component("monitor")
	}
	return &Service{deps: deps, log: log}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample takes one status sample and writes it to the file and metrics.
func (s *Service) Sample(ctx context.Context) (Status, error) {
	st, err := s.deps.Source.Status(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to sample status: %w", err)
	}
	if st.Time.IsZero() {
		st.Time = time.Now().UTC()
	}

	if s.deps.Path != "" {
		if err := writeStatusFile(s.deps.Path, st); err != nil {
			return st, err
		}
	}
	if s.deps.Metrics != nil {
		err := s.deps.Metrics.WriteMetric(ctx, MeasurementStatus, nil, map[string]any{
			"activeSessions": st.ActiveSessions,
			"pendingSamples": st.PendingSamples,
			"territories":    st.Territories,
			"owned":          st.Owned,
		}, st.Time)
		if err != nil {
			s.log.Warn("Failed to write status metric", "error", err)
		}
	}
	return st, nil
}

// writeStatusFile replaces path through a temp file and a rename.
func writeStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	if s.deps.Source == nil {
		return ErrNoSource
	}
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		s.log.Debug("Starting status monitor", "interval", s.deps.Interval, "path", s.deps.Path)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := s.Sample(context.Background()); err != nil {
					s.log.Error("Status sample failed", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
