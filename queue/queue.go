package queue

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/task"
)

// Sentinel errors. Backend errors carry the same codes, so both
// errors.Is(err, queue.ErrTimeout) and errors.Is(err, errors.CodeTimeout)
// match regardless of which backend produced the error.
var (
	ErrTimeout    = errors.Timeout("queue poll timed out")
	ErrKillSignal = errors.KillSignal("kill signal received")
	ErrClosed     = errors.Closed("queue closed")
)

// killSentinel is the wire form of the shutdown signal.
const killSentinel = "null"

// DefaultBufferSize for memory-backed queues.
const DefaultBufferSize = 256

// Client is the agent-facing side: it submits tasks and polls for
// completed records.
type Client interface {
	// SendInputs packages a method invocation into a task record, encodes
	// it, and dispatches it to the execution side. Returns the task ID.
	SendInputs(ctx context.Context, method string, args []any, opts ...SendOption) (string, error)

	// GetResult blocks up to timeout for the next completed record on the
	// topic. Zero or negative timeout blocks until a record arrives or ctx
	// is done. Returns ErrTimeout on expiry.
	GetResult(ctx context.Context, topic string, timeout time.Duration) (*task.Result, error)

	// SendKillSignal delivers the shutdown sentinel to the execution side.
	SendKillSignal(ctx context.Context) error

	// Close releases the backend connection. Idempotent.
	Close() error
}

// Server is the execution-facing side: it pulls submitted tasks and routes
// results back by topic.
type Server interface {
	// GetTask blocks up to timeout for the next submitted record. Returns
	// ErrTimeout on expiry and ErrKillSignal when the shutdown sentinel
	// arrives.
	GetTask(ctx context.Context, timeout time.Duration) (*task.Result, error)

	// SendResult routes a completed record to the result queue of its
	// topic, stripping inputs first when the record asks for that.
	SendResult(ctx context.Context, res *task.Result) error

	// Close releases the backend connection. Idempotent.
	Close() error
}

// SendOption customizes the task record built by SendInputs. Serialization
// is not an option here: records always use the queue's configured
// encoding.
type SendOption func(*task.Result)

// WithTopic routes the completed record to the named result topic.
func WithTopic(topic string) SendOption {
	return func(r *task.Result) {
		r.Topic = topic
	}
}

// WithKwargs sets keyword inputs for the method.
func WithKwargs(kwargs map[string]any) SendOption {
	return func(r *task.Result) {
		r.Kwargs = kwargs
	}
}

// WithTaskInfo attaches caller metadata that travels with the record.
func WithTaskInfo(info map[string]any) SendOption {
	return func(r *task.Result) {
		r.TaskInfo = info
	}
}

// WithoutInputs drops the inputs from the record once the result is
// computed.
func WithoutInputs() SendOption {
	return func(r *task.Result) {
		r.KeepInputs = false
	}
}

// Config holds settings common to every backend.
type Config struct {
	// Topics declares the result topics the queue pair will use.
	// Default: ["default"].
	Topics []string

	// Serialization applied to records sent through the queue.
	// Default: json.
	Serialization task.Serialization
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Topics:        []string{task.DefaultTopic},
		Serialization: task.SerializationJSON,
	}
}

func (c *Config) normalize() {
	if len(c.Topics) == 0 {
		c.Topics = []string{task.DefaultTopic}
	}
	if c.Serialization == "" {
		c.Serialization = task.SerializationJSON
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	for _, topic := range c.Topics {
		if topic == "" {
			return errors.Config("queue topics must be non-empty")
		}
	}
	if !c.Serialization.Valid() {
		return errors.Config(fmt.Sprintf("unknown serialization %q", c.Serialization))
	}
	return nil
}

// declared reports whether the topic was declared at construction.
func (c Config) declared(topic string) bool {
	for _, t := range c.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func errUnknownTopic(topic string) error {
	return errors.New(errors.CodeUnknownTopic, fmt.Sprintf("topic %q was not declared", topic))
}

// newOutbound builds and validates the record SendInputs dispatches.
func newOutbound(cfg Config, method string, args []any, opts []SendOption) (*task.Result, error) {
	r := task.New(method, args, task.WithSerialization(cfg.Serialization))
	for _, opt := range opts {
		opt(r)
	}

	if !cfg.declared(r.Topic) {
		return nil, errUnknownTopic(r.Topic)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// prepareResult returns the record SendResult should encode, cloned and
// stripped when the record does not keep its inputs.
func prepareResult(cfg Config, res *task.Result) (*task.Result, error) {
	if res == nil {
		return nil, errors.InvalidTask("nil result")
	}
	if !cfg.declared(res.Topic) {
		return nil, errUnknownTopic(res.Topic)
	}

	out := res
	if !res.KeepInputs {
		out = res.Clone()
		out.StripInputs()
	}
	return out, nil
}

// isKillSignal reports whether a wire payload is the shutdown sentinel.
func isKillSignal(data []byte) bool {
	return bytes.Equal(data, []byte(killSentinel))
}
