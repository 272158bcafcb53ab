// Package config loads conquest.cfg.json through viper and exposes typed
// views of its sections.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stravx/conquest/internal/area"
	"github.com/stravx/conquest/internal/database"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/notify/influx"
	"github.com/stravx/conquest/internal/notify/websocket"
	"github.com/stravx/conquest/internal/otel"
	"github.com/stravx/conquest/internal/session"
	sqlitestorage "github.com/stravx/conquest/internal/storage/sqlite"
	"github.com/stravx/conquest/internal/territory"
)

// FileName is looked up in the config directory.
const FileName = "conquest.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. CONQUEST_GRID_ZOOM.
const EnvPrefix = "CONQUEST"

// ErrNoConfigFile is returned by Load when the directory holds no config
// file. Defaults are still in place.
var ErrNoConfigFile = errors.New("config file not found")

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("grid.zoom", grid.DefaultZoom)

	xp := territory.DefaultXPPolicy()
	viper.SetDefault("territory.xp.neutralCapture", xp.NeutralCapture)
	viper.SetDefault("territory.xp.reinforce", xp.Reinforce)
	viper.SetDefault("territory.xp.defenseBonus", xp.DefenseBonus)
	viper.SetDefault("territory.xp.conquest", xp.Conquest)
	viper.SetDefault("territory.xp.strongConquest", xp.StrongConquest)
	viper.SetDefault("territory.xp.strongThreshold", xp.StrongThreshold)
	viper.SetDefault("territory.replayLimit", session.DefaultReplayLimit)
	viper.SetDefault("territory.decayInterval", "24h")
	viper.SetDefault("territory.prewarmRadius", area.DefaultPrewarmRadius)
	viper.SetDefault("territory.keepRadius", area.DefaultKeepRadius)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.name", "conquest")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./data/conquest.db")
	viper.SetDefault("storage.postgres.fallback", false)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "conquest")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "conquest")
	viper.SetDefault("influx.bucket", "territory")
	viper.SetDefault("influx.retentionDays", 90)
	viper.SetDefault("influx.backupPath", "./data/influx-backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "conquest")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("notify.websocket.enabled", false)
	viper.SetDefault("notify.websocket.url", "ws://localhost:5000/ws")
	viper.SetDefault("notify.websocket.secret", "")
	viper.SetDefault("notify.websocket.channel", "territory")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.statusFile", "./data/status.json")
	viper.SetDefault("monitor.interval", "10s")
}

// Load sets defaults, applies environment overrides and reads the JSON
// config in configDir. A missing file yields ErrNoConfigFile; any other
// read failure or an unsupported grid.zoom is returned as is.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	var readErr error
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		readErr = ErrNoConfigFile
	}

	if err := grid.ValidateZoom(viper.GetInt("grid.zoom")); err != nil {
		return fmt.Errorf("grid.zoom: %w", err)
	}
	return readErr
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GameConfig groups the territory rules.
type GameConfig struct {
	Zoom          int
	Policy        territory.XPPolicy
	ReplayLimit   int
	DecayInterval time.Duration
	PrewarmRadius float64
	KeepRadius    float64
}

func GetGameConfig() GameConfig {
	return GameConfig{
		Zoom: viper.GetInt("grid.zoom"),
		Policy: territory.XPPolicy{
			NeutralCapture:  viper.GetInt("territory.xp.neutralCapture"),
			Reinforce:       viper.GetInt("territory.xp.reinforce"),
			DefenseBonus:    viper.GetInt("territory.xp.defenseBonus"),
			Conquest:        viper.GetInt("territory.xp.conquest"),
			StrongConquest:  viper.GetInt("territory.xp.strongConquest"),
			StrongThreshold: viper.GetInt("territory.xp.strongThreshold"),
		},
		ReplayLimit:   viper.GetInt("territory.replayLimit"),
		DecayInterval: viper.GetDuration("territory.decayInterval"),
		PrewarmRadius: viper.GetFloat64("territory.prewarmRadius"),
		KeepRadius:    viper.GetFloat64("territory.keepRadius"),
	}
}

// StorageConfig selects and configures the territory store.
type StorageConfig struct {
	Type     string
	SQLite   sqlitestorage.Config
	Postgres database.PostgresConfig
	// Fallback switches to in-memory SQLite when Postgres is unreachable.
	Fallback bool
}

func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: sqlitestorage.Config{
			Path:         viper.GetString("storage.sqlite.path"),
			Name:         viper.GetString("storage.sqlite.name"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: database.PostgresConfigFromViper(),
		Fallback: viper.GetBool("storage.postgres.fallback"),
	}
}

func GetInfluxConfig() influx.Config {
	return influx.Config{
		Enabled:       viper.GetBool("influx.enabled"),
		Protocol:      viper.GetString("influx.protocol"),
		Host:          viper.GetString("influx.host"),
		Port:          viper.GetString("influx.port"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		RetentionDays: viper.GetInt("influx.retentionDays"),
		BackupPath:    viper.GetString("influx.backupPath"),
	}
}

// WebsocketConfig is the event streamer section.
type WebsocketConfig struct {
	Enabled bool
	websocket.Config
}

func GetWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		Enabled: viper.GetBool("notify.websocket.enabled"),
		Config: websocket.Config{
			URL:     viper.GetString("notify.websocket.url"),
			Secret:  viper.GetString("notify.websocket.secret"),
			Channel: viper.GetString("notify.websocket.channel"),
		},
	}
}

// GraylogConfig is the GELF sink section.
type GraylogConfig struct {
	Enabled bool
	Address string
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// MonitorConfig is the status monitor section.
type MonitorConfig struct {
	Enabled    bool
	StatusFile string
	Interval   time.Duration
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}

// GetOTelConfig returns the otel section. LogWriter is left for the caller.
func GetOTelConfig() otel.Config {
	return otel.Config{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
