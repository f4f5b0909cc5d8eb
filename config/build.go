package config

import (
	"github.com/steerkit/steerkit/archive"
	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/logging"
	"github.com/steerkit/steerkit/queue"
	"github.com/steerkit/steerkit/resources"
	"github.com/steerkit/steerkit/task"
	"github.com/steerkit/steerkit/telemetry"
)

// BuildLogger builds the root logger at the configured level.
func (c *Config) BuildLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, errors.Config("parsing log level", errors.WithCause(err))
	}
	log := logging.New()
	log.SetLevel(level)
	return log, nil
}

// BuildQueues builds a linked client/server pair. Brokered backends get
// two connections to the same broker; split deployments use BuildClient
// and BuildServer instead.
func (c *Config) BuildQueues() (queue.Client, queue.Server, error) {
	switch c.Queue.Backend {
	case "memory":
		client, server := queue.NewMemoryQueues(c.memoryOptions()...)
		return client, server, nil
	case "redis":
		client, err := queue.NewRedisClient(c.redisConfig())
		if err != nil {
			return nil, nil, err
		}
		server, err := queue.NewRedisServer(c.redisConfig())
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return client, server, nil
	case "nats":
		client, err := queue.NewNATSClient(c.natsConfig())
		if err != nil {
			return nil, nil, err
		}
		server, err := queue.NewNATSServer(c.natsConfig())
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return client, server, nil
	}
	return nil, nil, errors.Newf(errors.CodeConfig, "unknown queue backend %q", c.Queue.Backend)
}

// BuildClient builds the submitting side alone. The memory backend only
// exists as a linked pair, so it is rejected here.
func (c *Config) BuildClient() (queue.Client, error) {
	switch c.Queue.Backend {
	case "redis":
		return queue.NewRedisClient(c.redisConfig())
	case "nats":
		return queue.NewNATSClient(c.natsConfig())
	case "memory":
		return nil, errors.Config("memory backend has no standalone client; use BuildQueues")
	}
	return nil, errors.Newf(errors.CodeConfig, "unknown queue backend %q", c.Queue.Backend)
}

// BuildServer builds the executing side alone. The memory backend only
// exists as a linked pair, so it is rejected here.
func (c *Config) BuildServer() (queue.Server, error) {
	switch c.Queue.Backend {
	case "redis":
		return queue.NewRedisServer(c.redisConfig())
	case "nats":
		return queue.NewNATSServer(c.natsConfig())
	case "memory":
		return nil, errors.Config("memory backend has no standalone server; use BuildQueues")
	}
	return nil, errors.Newf(errors.CodeConfig, "unknown queue backend %q", c.Queue.Backend)
}

// BuildCounter builds the resource counter, or nil when no slots are
// configured.
func (c *Config) BuildCounter() (*resources.Counter, error) {
	if c.Resources.Slots <= 0 {
		return nil, nil
	}
	return resources.NewCounter(c.Resources.Slots, c.Resources.Pools)
}

// BuildArchive builds the task archive, or nil when it is disabled.
func (c *Config) BuildArchive() (*archive.Store, error) {
	if !c.Archive.Enabled {
		return nil, nil
	}
	return archive.NewStore(archive.Config{
		Dir:        c.Archive.Dir,
		LogResults: c.Archive.LogResults,
	})
}

// BuildTelemetry builds the telemetry recorder, or nil when telemetry is
// disabled. The recorder is not started; callers own its lifecycle.
func (c *Config) BuildTelemetry() (*telemetry.Recorder, error) {
	if !c.Telemetry.Enabled {
		return nil, nil
	}
	exporter, err := telemetry.NewExporter(c.Telemetry.Exporter, c.Telemetry.Endpoint)
	if err != nil {
		return nil, err
	}
	return telemetry.NewRecorder(telemetry.RecorderConfig{
		Exporter:      exporter,
		FlushInterval: c.Telemetry.FlushInterval.Duration,
	})
}

func (c *Config) memoryOptions() []queue.MemoryOption {
	var opts []queue.MemoryOption
	if len(c.Queue.Topics) > 0 {
		opts = append(opts, queue.WithTopics(c.Queue.Topics...))
	}
	if c.Queue.Buffer > 0 {
		opts = append(opts, queue.WithBufferSize(c.Queue.Buffer))
	}
	if c.Queue.Serialization != "" {
		opts = append(opts, queue.WithSerialization(task.Serialization(c.Queue.Serialization)))
	}
	return opts
}

func (c *Config) redisConfig() queue.RedisConfig {
	cfg := queue.DefaultRedisConfig()
	if len(c.Queue.Topics) > 0 {
		cfg.Topics = c.Queue.Topics
	}
	if c.Queue.Serialization != "" {
		cfg.Serialization = task.Serialization(c.Queue.Serialization)
	}
	if c.Queue.Prefix != "" {
		cfg.Prefix = c.Queue.Prefix
	}
	if c.Queue.Redis.Addr != "" {
		cfg.Addr = c.Queue.Redis.Addr
	}
	cfg.Password = c.Queue.Redis.Password
	cfg.DB = c.Queue.Redis.DB
	cfg.CleanSlate = c.Queue.Redis.CleanSlate
	return cfg
}

func (c *Config) natsConfig() queue.NATSConfig {
	cfg := queue.DefaultNATSConfig()
	if len(c.Queue.Topics) > 0 {
		cfg.Topics = c.Queue.Topics
	}
	if c.Queue.Serialization != "" {
		cfg.Serialization = task.Serialization(c.Queue.Serialization)
	}
	if c.Queue.Prefix != "" {
		cfg.Prefix = c.Queue.Prefix
	}
	if c.Queue.NATS.URL != "" {
		cfg.URL = c.Queue.NATS.URL
	}
	cfg.Name = c.Controller.Name
	cfg.Token = c.Queue.NATS.Token
	cfg.User = c.Queue.NATS.User
	cfg.Password = c.Queue.NATS.Password
	return cfg
}
