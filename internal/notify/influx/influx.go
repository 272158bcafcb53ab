// Package influx writes territory events and session metrics to InfluxDB,
// falling back to a gzip line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/stravx/conquest/internal/territory"
)

const (
	MeasurementEvent   = "territory_event"
	MeasurementSession = "capture_session"
	MeasurementSweep   = "decay_sweep"
)

// Config holds InfluxDB settings.
type Config struct {
	Enabled       bool   `mapstructure:"enabled"`
	Protocol      string `mapstructure:"protocol"`
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	Token         string `mapstructure:"token"`
	Org           string `mapstructure:"org"`
	Bucket        string `mapstructure:"bucket"`
	RetentionDays int    `mapstructure:"retentionDays"`
	BackupPath    string `mapstructure:"backupPath"`
}

func (c Config) url() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Writer handles the InfluxDB connection and point writes.
type Writer struct {
	cfg    Config
	logger zerolog.Logger

	client influxdb2.Client
	api    influxdb2_api.WriteAPI

	mu         sync.Mutex
	valid      bool
	backup     *gzip.Writer
	backupFile *os.File
}

func NewWriter(cfg Config, log zerolog.Logger) *Writer {
	return &Writer{cfg: cfg, logger: log}
}

// Connect pings the server. When it is down the writer switches to the
// backup file instead of failing.
func (w *Writer) Connect(ctx context.Context) error {
	if !w.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	w.client = influxdb2.NewClientWithOptions(
		w.cfg.url(),
		w.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := w.client.Ping(ctx)
	if err != nil || !running {
		w.logger.Info().Str("backupPath", w.cfg.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return w.openBackup()
	}

	if err := w.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	w.api = w.client.WriteAPI(w.cfg.Org, w.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			w.logger.Error().Err(writeErr).Str("bucket", w.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(w.api.Errors())

	w.mu.Lock()
	w.valid = true
	w.mu.Unlock()
	w.logger.Info().Str("bucket", w.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (w *Writer) openBackup() error {
	if w.cfg.BackupPath == "" {
		return errors.New("influx unreachable and no backup path configured")
	}
	file, err := os.OpenFile(w.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	w.mu.Lock()
	w.backupFile = file
	w.backup = gzip.NewWriter(file)
	w.mu.Unlock()
	return nil
}

func (w *Writer) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := w.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, w.cfg.Org)
	if err != nil {
		w.logger.Info().Str("org", w.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, w.cfg.Org)
		if err != nil {
			w.logger.Error().Err(err).Str("org", w.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	buckets := w.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, w.cfg.Bucket); err == nil {
		return nil
	}
	w.logger.Info().Str("bucket", w.cfg.Bucket).Msg("Bucket not found, creating")

	days := w.cfg.RetentionDays
	if days <= 0 {
		days = 90
	}
	rule := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, w.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: int64(60 * 60 * 24 * days),
	})
	if err != nil {
		w.logger.Error().Err(err).Str("bucket", w.cfg.Bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

// Online reports whether points go to the server rather than the backup.
func (w *Writer) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.valid
}

// WritePoint writes to InfluxDB or to the backup file.
func (w *Writer) WritePoint(ctx context.Context, point *influxdb2_write.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.valid {
		w.api.WritePoint(point)
		return nil
	}
	if w.backup == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := w.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Notify records a territory event as a point.
func (w *Writer) Notify(ctx context.Context, e territory.Event) error {
	return w.WritePoint(ctx, EventPoint(e))
}

// WriteMetric writes a point built from the given tags and fields.
func (w *Writer) WriteMetric(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, at time.Time) error {
	return w.WritePoint(ctx, influxdb2_write.NewPoint(measurement, tags, fields, at))
}

// Close flushes pending writes and releases the client or backup file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.api != nil {
		w.api.Flush()
	}
	if w.client != nil {
		w.client.Close()
	}
	var errs []error
	if w.backup != nil {
		errs = append(errs, w.backup.Close())
		w.backup = nil
	}
	if w.backupFile != nil {
		errs = append(errs, w.backupFile.Close())
		w.backupFile = nil
	}
	w.valid = false
	return errors.Join(errs...)
}

// EventPoint converts a territory event into a point. The owner is a tag so
// dashboards can group by player.
func EventPoint(e territory.Event) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementEvent).
		AddTag("kind", string(e.Kind)).
		AddTag("tile_id", e.TileID).
		AddField("strength", e.Strength)
	if e.OwnerID != "" {
		p.AddTag("owner_id", e.OwnerID)
	}
	if e.ActorName != "" {
		p.AddField("actor", e.ActorName)
	}
	if !e.At.IsZero() {
		p.SetTime(e.At)
	}
	return p
}
