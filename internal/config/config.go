// Package config loads and validates the storesync YAML configuration.
//
// A file is first checked against an embedded CUE schema, so constraint
// violations are reported with file positions, then decoded strictly into
// Config. Environment variables prefixed STORESYNC_ override individual
// keys (e.g. STORESYNC_DATABASE_DSN).
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storesync/internal/geocode"
	"github.com/roach88/storesync/internal/lock"
	"github.com/roach88/storesync/internal/logging"
	"github.com/roach88/storesync/internal/store"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "STORESYNC"

// Lock kinds.
const (
	LockFile  = "file"
	LockRedis = "redis"
	LockNone  = "none"
)

// Config is the complete runtime configuration.
type Config struct {
	Database   Database   `yaml:"database"`
	Geocoder   Geocoder   `yaml:"geocoder"`
	Projection Projection `yaml:"projection"`
	Alerts     Alerts     `yaml:"alerts"`
	Sync       Sync       `yaml:"sync"`
	Lock       Lock       `yaml:"lock"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Logging    Logging    `yaml:"logging"`
}

// Database locates the single database holding queue, master and ledger.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Geocoder configures the address matching service.
type Geocoder struct {
	URL        string             `yaml:"url"`
	Timeout    time.Duration      `yaml:"timeout"`
	FieldRoles geocode.FieldRoles `yaml:"field_roles"`
}

// Projection configures the post-commit reprojection.
type Projection struct {
	Target      string   `yaml:"target"`
	Collections []string `yaml:"collections"`
}

// Alerts configures failure notification.
type Alerts struct {
	RecipientsFile string `yaml:"recipients_file"`
	SMTP           SMTP   `yaml:"smtp"`
}

// SMTP configures the alert mail relay.
type SMTP struct {
	Addr     string        `yaml:"addr"`
	From     string        `yaml:"from"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Enabled reports whether alert delivery is configured.
func (a Alerts) Enabled() bool {
	return a.RecipientsFile != "" && a.SMTP.Addr != ""
}

// Sync holds batch behaviour switches.
type Sync struct {
	// ConsumeQueue deletes processed queue rows inside the batch. The
	// upstream system owns clearing when false.
	ConsumeQueue bool `yaml:"consume_queue"`
}

// Lock configures the run lock.
type Lock struct {
	Kind     string        `yaml:"kind"`
	Path     string        `yaml:"path"`
	RedisURL string        `yaml:"redis_url"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// Telemetry configures metrics push and tracing. Both are off when empty.
type Telemetry struct {
	PushgatewayURL string  `yaml:"pushgateway_url"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	Insecure       bool    `yaml:"insecure"`
	Sampling       float64 `yaml:"sampling"`
}

// Logging configures the process logger.
type Logging struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	File     string `yaml:"file"`
	MaxKB    int64  `yaml:"max_kb"`
	MaxRolls int    `yaml:"max_rolls"`
}

// Options converts the section to logging options.
func (l Logging) Options() logging.Options {
	return logging.Options{
		Level:    l.Level,
		Format:   l.Format,
		File:     l.File,
		MaxKB:    l.MaxKB,
		MaxRolls: l.MaxRolls,
	}
}

// Load reads, validates and decodes a configuration file, then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes configuration bytes. filename is used in
// error positions only.
func Parse(filename string, data []byte) (*Config, error) {
	if err := Validate(filename, data); err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = store.DriverSQLite
	}
	if c.Geocoder.Timeout == 0 {
		c.Geocoder.Timeout = geocode.DefaultTimeout
	}
	c.Geocoder.FieldRoles = c.Geocoder.FieldRoles.WithDefaults()
	if c.Projection.Target == "" {
		c.Projection.Target = "EPSG:3857"
	}
	if c.Lock.Kind == "" {
		c.Lock.Kind = LockFile
	}
	if c.Lock.Path == "" {
		c.Lock.Path = "storesync.lock"
	}
	if c.Lock.Key == "" {
		c.Lock.Key = "storesync:run"
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = lock.DefaultTTL
	}
	if c.Telemetry.Sampling == 0 {
		c.Telemetry.Sampling = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.MaxKB == 0 {
		c.Logging.MaxKB = logging.DefaultMaxKB
	}
	if c.Logging.MaxRolls == 0 {
		c.Logging.MaxRolls = logging.DefaultMaxRolls
	}
}
