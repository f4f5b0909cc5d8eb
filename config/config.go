// Package config loads run configuration from TOML files and builds the
// components a configuration describes: logger, queue pair, resource
// counter, archive and telemetry recorder.
package config

import (
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/logging"
	"github.com/steerkit/steerkit/task"
)

// Duration unmarshals from human-readable TOML strings like "750ms" or
// "2m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full run configuration.
type Config struct {
	Controller ControllerConfig `toml:"controller"`
	Logging    LoggingConfig    `toml:"logging"`
	Queue      QueueConfig      `toml:"queue"`
	Resources  ResourcesConfig  `toml:"resources"`
	Archive    ArchiveConfig    `toml:"archive"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// ControllerConfig names the controller and sets its reaction time.
type ControllerConfig struct {
	Name     string   `toml:"name"`
	Reaction Duration `toml:"reaction"`
}

// LoggingConfig sets the minimum log level: debug, info, warn or error.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// QueueConfig selects and configures the queue backend.
type QueueConfig struct {
	// Backend is one of memory, redis or nats.
	Backend string `toml:"backend"`

	// Prefix namespaces queue keys or subjects on brokered backends.
	Prefix string `toml:"prefix"`

	// Topics declares the result topics. Default: ["default"].
	Topics []string `toml:"topics"`

	// Serialization is json or gob.
	Serialization string `toml:"serialization"`

	// Buffer bounds the memory backend's channels.
	Buffer int `toml:"buffer"`

	Redis RedisConfig `toml:"redis"`
	NATS  NATSConfig  `toml:"nats"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	CleanSlate bool   `toml:"clean_slate"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL      string `toml:"url"`
	Token    string `toml:"token"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// ResourcesConfig sizes the resource counter. Zero slots means no
// counter.
type ResourcesConfig struct {
	Slots int      `toml:"slots"`
	Pools []string `toml:"pools"`
}

// ArchiveConfig enables the task archive.
type ArchiveConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	LogResults bool   `toml:"log_results"`
}

// TelemetryConfig enables run telemetry. Exporter is file, http or noop;
// Endpoint is the file path or the URL to post batches to.
type TelemetryConfig struct {
	Enabled       bool     `toml:"enabled"`
	Exporter      string   `toml:"exporter"`
	Endpoint      string   `toml:"endpoint"`
	FlushInterval Duration `toml:"flush_interval"`
}

// DefaultConfig returns configuration with sensible defaults: a memory
// queue pair on the default topic, info logging, no counter, no archive,
// no telemetry.
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Name:     "thinker",
			Reaction: Duration{time.Second},
		},
		Logging: LoggingConfig{Level: "info"},
		Queue: QueueConfig{
			Backend:       "memory",
			Prefix:        "tasks",
			Topics:        []string{task.DefaultTopic},
			Serialization: string(task.SerializationJSON),
			Redis:         RedisConfig{Addr: "localhost:6379", CleanSlate: true},
		},
		Archive:   ArchiveConfig{LogResults: true},
		Telemetry: TelemetryConfig{Exporter: "noop", FlushInterval: Duration{5 * time.Second}},
	}
}

// Load reads a TOML run configuration. Keys absent from the file keep
// their defaults. Returns an error when the file carries a password but
// is readable by group or others.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Config("parsing "+path, errors.WithCause(err))
	}

	if cfg.carriesSecret() {
		if err := checkPermissions(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// carriesSecret reports whether the configuration holds broker
// credentials.
func (c *Config) carriesSecret() bool {
	return c.Queue.Redis.Password != "" ||
		c.Queue.NATS.Password != "" ||
		c.Queue.NATS.Token != ""
}

// checkPermissions rejects secret-bearing files readable beyond their
// owner (Unix only).
func checkPermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Config("checking "+path, errors.WithCause(err))
	}
	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		return errors.Newf(errors.CodeConfig,
			"%s has mode %04o; files carrying passwords must not be group or world readable", path, mode)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Controller.Name == "" {
		return errors.Config("controller name must not be empty")
	}
	if c.Controller.Reaction.Duration < 0 {
		return errors.Config("controller reaction must not be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errors.Config("parsing log level", errors.WithCause(err))
	}

	switch c.Queue.Backend {
	case "memory", "redis", "nats":
	default:
		return errors.Newf(errors.CodeConfig, "unknown queue backend %q", c.Queue.Backend)
	}
	for _, topic := range c.Queue.Topics {
		if topic == "" {
			return errors.Config("queue topics must be non-empty")
		}
	}
	if s := c.Queue.Serialization; s != "" && !task.Serialization(s).Valid() {
		return errors.Newf(errors.CodeConfig, "unknown serialization %q", s)
	}
	if c.Queue.Buffer < 0 {
		return errors.Config("queue buffer must not be negative")
	}

	if c.Resources.Slots < 0 {
		return errors.Config("resource slots must not be negative")
	}

	if c.Archive.Enabled && c.Archive.Dir == "" {
		return errors.Config("archive enabled but no directory set")
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "", "file", "http", "noop":
		default:
			return errors.Newf(errors.CodeConfig, "unknown telemetry exporter %q", c.Telemetry.Exporter)
		}
		if e := c.Telemetry.Exporter; (e == "file" || e == "http") && c.Telemetry.Endpoint == "" {
			return errors.Config("telemetry exporter " + e + " needs an endpoint")
		}
	}

	return nil
}
