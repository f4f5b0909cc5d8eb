package queue

import (
	"context"
	"sync"
	"time"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/task"
)

// memoryConfig holds settings for a memory queue pair.
type memoryConfig struct {
	Config
	bufferSize int
}

// MemoryOption customizes a memory queue pair.
type MemoryOption func(*memoryConfig)

// WithTopics replaces the declared result topics.
// Empty calls and empty names are ignored.
func WithTopics(topics ...string) MemoryOption {
	return func(cfg *memoryConfig) {
		if len(topics) > 0 {
			cfg.Topics = topics
		}
	}
}

// WithBufferSize sets the channel capacity for each queue.
func WithBufferSize(n int) MemoryOption {
	return func(cfg *memoryConfig) {
		if n > 0 {
			cfg.bufferSize = n
		}
	}
}

// WithSerialization selects the payload encoding for records sent through
// the pair. Unknown values are ignored.
func WithSerialization(s task.Serialization) MemoryOption {
	return func(cfg *memoryConfig) {
		if s.Valid() {
			cfg.Serialization = s
		}
	}
}

// memoryCore is the channel state shared by a linked client/server pair.
type memoryCore struct {
	cfg     Config
	inputs  chan []byte
	results map[string]chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// MemoryClient is the client side of an in-process queue pair.
type MemoryClient struct {
	core *memoryCore
}

// MemoryServer is the server side of an in-process queue pair.
type MemoryServer struct {
	core *memoryCore
}

// NewMemoryQueues creates a linked client/server pair sharing buffered
// channels: one task queue, one result queue per declared topic. Useful for
// tests and single-process runs.
func NewMemoryQueues(opts ...MemoryOption) (*MemoryClient, *MemoryServer) {
	cfg := memoryConfig{
		Config:     DefaultConfig(),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	core := &memoryCore{
		cfg:     cfg.Config,
		inputs:  make(chan []byte, cfg.bufferSize),
		results: make(map[string]chan []byte, len(cfg.Topics)),
		done:    make(chan struct{}),
	}
	for _, topic := range cfg.Topics {
		if topic == "" {
			continue
		}
		core.results[topic] = make(chan []byte, cfg.bufferSize)
	}

	return &MemoryClient{core: core}, &MemoryServer{core: core}
}

// send blocks until the payload is queued, the pair closes, or ctx is done.
func (c *memoryCore) send(ctx context.Context, ch chan []byte, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case ch <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "queue send interrupted")
	}
}

// receive blocks up to timeout for the next payload. Zero or negative
// timeout waits until a payload arrives, the pair closes, or ctx is done.
func (c *memoryCore) receive(ctx context.Context, ch chan []byte, timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data := <-ch:
		return data, nil
	case <-expired:
		return nil, ErrTimeout
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "queue receive interrupted")
	}
}

// resultChan looks up the channel for a declared topic.
func (c *memoryCore) resultChan(topic string) (chan []byte, error) {
	ch, ok := c.results[topic]
	if !ok {
		return nil, errUnknownTopic(topic)
	}
	return ch, nil
}

// close is shared by both sides and idempotent.
func (c *memoryCore) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// SendInputs packages a method invocation and queues it for the server side.
func (c *MemoryClient) SendInputs(ctx context.Context, method string, args []any, opts ...SendOption) (string, error) {
	r, err := newOutbound(c.core.cfg, method, args, opts)
	if err != nil {
		return "", err
	}

	data, err := r.Encode()
	if err != nil {
		return "", err
	}
	if err := c.core.send(ctx, c.core.inputs, data); err != nil {
		return "", err
	}
	return r.TaskID, nil
}

// GetResult blocks up to timeout for the next completed record on the topic.
func (c *MemoryClient) GetResult(ctx context.Context, topic string, timeout time.Duration) (*task.Result, error) {
	ch, err := c.core.resultChan(topic)
	if err != nil {
		return nil, err
	}

	data, err := c.core.receive(ctx, ch, timeout)
	if err != nil {
		return nil, err
	}

	res, err := task.Decode(data)
	if err != nil {
		return nil, err
	}
	res.MarkResultReceived()
	return res, nil
}

// SendKillSignal queues the shutdown sentinel for the server side.
func (c *MemoryClient) SendKillSignal(ctx context.Context) error {
	return c.core.send(ctx, c.core.inputs, []byte(killSentinel))
}

// Close shuts down both sides of the pair.
func (c *MemoryClient) Close() error {
	c.core.close()
	return nil
}

// GetTask blocks up to timeout for the next submitted record.
func (s *MemoryServer) GetTask(ctx context.Context, timeout time.Duration) (*task.Result, error) {
	data, err := s.core.receive(ctx, s.core.inputs, timeout)
	if err != nil {
		return nil, err
	}
	if isKillSignal(data) {
		return nil, ErrKillSignal
	}

	res, err := task.Decode(data)
	if err != nil {
		return nil, err
	}
	res.MarkInputReceived()
	return res, nil
}

// SendResult routes a completed record to its topic's result queue.
func (s *MemoryServer) SendResult(ctx context.Context, res *task.Result) error {
	out, err := prepareResult(s.core.cfg, res)
	if err != nil {
		return err
	}

	ch, err := s.core.resultChan(out.Topic)
	if err != nil {
		return err
	}

	data, err := out.Encode()
	if err != nil {
		return err
	}
	return s.core.send(ctx, ch, data)
}

// Close shuts down both sides of the pair.
func (s *MemoryServer) Close() error {
	s.core.close()
	return nil
}
