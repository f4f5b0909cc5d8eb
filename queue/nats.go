package queue

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/task"
)

// inputsQueueGroup is the queue group servers join, so multiple server
// processes load-balance the task stream.
const inputsQueueGroup = "workers"

// NATSConfig holds NATS queue configuration.
type NATSConfig struct {
	Config // Embed base config

	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for identification.
	Name string

	// Token for token-based auth.
	Token string

	// User and Password for basic auth.
	User     string
	Password string

	// Prefix namespaces the subjects: "<prefix>.inputs" carries submitted
	// tasks, "<prefix>.results.<topic>" carries completed records.
	Prefix string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited
	MaxReconnects int

	// ConnectTimeout for initial connection.
	ConnectTimeout time.Duration
}

// DefaultNATSConfig returns configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		Prefix:         "tasks",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1, // Unlimited
		ConnectTimeout: 5 * time.Second,
	}
}

func (c *NATSConfig) normalize() {
	c.Config.normalize()
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Prefix == "" {
		c.Prefix = "tasks"
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// validate extends the base checks with NATS subject-token rules: topics
// become subject tokens, so wildcards and separators are not allowed.
func (c NATSConfig) validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	for _, topic := range c.Topics {
		if strings.ContainsAny(topic, ".*> ") {
			return errors.Config("topic " + topic + " is not a valid NATS subject token")
		}
	}
	return nil
}

func (c NATSConfig) inputsSubject() string {
	return c.Prefix + ".inputs"
}

func (c NATSConfig) resultsSubject(topic string) string {
	return c.Prefix + ".results." + topic
}

// buildNATSOptions constructs NATS connection options from config.
func buildNATSOptions(cfg NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}

	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	return opts
}

func connectNATS(cfg NATSConfig) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL, buildNATSOptions(cfg)...)
	if err != nil {
		return nil, errors.New(errors.CodeConnection, "nats unreachable at "+cfg.URL,
			errors.WithCause(err))
	}
	return conn, nil
}

func mapNATSErr(err error, op string) error {
	switch {
	case stderrors.Is(err, nats.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case stderrors.Is(err, nats.ErrConnectionClosed), stderrors.Is(err, nats.ErrBadSubscription):
		return ErrClosed
	case stderrors.Is(err, context.Canceled):
		return errors.Wrap(err, op+" interrupted")
	default:
		return errors.New(errors.CodeConnection, op+" failed", errors.WithCause(err))
	}
}

// nextMsg waits for the next message on a synchronous subscription.
// Positive timeouts bound the wait; otherwise it blocks until ctx is done.
func nextMsg(ctx context.Context, sub *nats.Subscription, timeout time.Duration) (*nats.Msg, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, mapNATSErr(err, "nats next msg")
	}
	return msg, nil
}

// NATSClient implements Client over NATS subjects.
type NATSClient struct {
	conn   *nats.Conn
	cfg    NATSConfig
	subs   map[string]*nats.Subscription
	closed atomic.Bool
}

// NewNATSClient connects a queue client to NATS and subscribes to the
// result subject of every declared topic. The constructor flushes the
// connection so interest is registered before any server can publish.
func NewNATSClient(cfg NATSConfig) (*NATSClient, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	conn, err := connectNATS(cfg)
	if err != nil {
		return nil, err
	}

	subs := make(map[string]*nats.Subscription, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		sub, err := conn.SubscribeSync(cfg.resultsSubject(topic))
		if err != nil {
			conn.Close()
			return nil, mapNATSErr(err, "nats subscribe "+topic)
		}
		subs[topic] = sub
	}

	if err := conn.FlushTimeout(cfg.ConnectTimeout); err != nil {
		conn.Close()
		return nil, mapNATSErr(err, "nats flush")
	}

	return &NATSClient{conn: conn, cfg: cfg, subs: subs}, nil
}

// SendInputs packages a method invocation and publishes it to the task
// subject.
func (c *NATSClient) SendInputs(ctx context.Context, method string, args []any, opts ...SendOption) (string, error) {
	if c.closed.Load() || c.conn.IsClosed() {
		return "", ErrClosed
	}

	r, err := newOutbound(c.cfg.Config, method, args, opts)
	if err != nil {
		return "", err
	}

	data, err := r.Encode()
	if err != nil {
		return "", err
	}
	if err := c.conn.Publish(c.cfg.inputsSubject(), data); err != nil {
		return "", mapNATSErr(err, "nats publish")
	}
	return r.TaskID, nil
}

// GetResult blocks up to timeout for the next completed record on the topic.
func (c *NATSClient) GetResult(ctx context.Context, topic string, timeout time.Duration) (*task.Result, error) {
	if c.closed.Load() || c.conn.IsClosed() {
		return nil, ErrClosed
	}

	sub, ok := c.subs[topic]
	if !ok {
		return nil, errUnknownTopic(topic)
	}

	msg, err := nextMsg(ctx, sub, timeout)
	if err != nil {
		return nil, err
	}

	res, err := task.Decode(msg.Data)
	if err != nil {
		return nil, err
	}
	res.MarkResultReceived()
	return res, nil
}

// SendKillSignal publishes the shutdown sentinel and flushes, so the signal
// is on the server even if the client exits immediately after.
func (c *NATSClient) SendKillSignal(ctx context.Context) error {
	if c.closed.Load() || c.conn.IsClosed() {
		return ErrClosed
	}

	if err := c.conn.Publish(c.cfg.inputsSubject(), []byte(killSentinel)); err != nil {
		return mapNATSErr(err, "nats publish")
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return mapNATSErr(err, "nats flush")
	}
	return nil
}

// Close drains the NATS connection. Idempotent.
func (c *NATSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.conn.Close()
	return nil
}

// NATSServer implements Server over NATS subjects.
type NATSServer struct {
	conn   *nats.Conn
	cfg    NATSConfig
	sub    *nats.Subscription
	closed atomic.Bool
}

// NewNATSServer connects a queue server to NATS and joins the task
// subject's queue group, so multiple servers load-balance the stream.
func NewNATSServer(cfg NATSConfig) (*NATSServer, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	conn, err := connectNATS(cfg)
	if err != nil {
		return nil, err
	}

	sub, err := conn.QueueSubscribeSync(cfg.inputsSubject(), inputsQueueGroup)
	if err != nil {
		conn.Close()
		return nil, mapNATSErr(err, "nats queue subscribe")
	}

	if err := conn.FlushTimeout(cfg.ConnectTimeout); err != nil {
		conn.Close()
		return nil, mapNATSErr(err, "nats flush")
	}

	return &NATSServer{conn: conn, cfg: cfg, sub: sub}, nil
}

// GetTask blocks up to timeout for the next submitted record.
func (s *NATSServer) GetTask(ctx context.Context, timeout time.Duration) (*task.Result, error) {
	if s.closed.Load() || s.conn.IsClosed() {
		return nil, ErrClosed
	}

	msg, err := nextMsg(ctx, s.sub, timeout)
	if err != nil {
		return nil, err
	}
	if isKillSignal(msg.Data) {
		return nil, ErrKillSignal
	}

	res, err := task.Decode(msg.Data)
	if err != nil {
		return nil, err
	}
	res.MarkInputReceived()
	return res, nil
}

// SendResult routes a completed record to its topic's result subject.
func (s *NATSServer) SendResult(ctx context.Context, res *task.Result) error {
	if s.closed.Load() || s.conn.IsClosed() {
		return ErrClosed
	}

	out, err := prepareResult(s.cfg.Config, res)
	if err != nil {
		return err
	}

	data, err := out.Encode()
	if err != nil {
		return err
	}
	if err := s.conn.Publish(s.cfg.resultsSubject(out.Topic), data); err != nil {
		return mapNATSErr(err, "nats publish")
	}
	return nil
}

// Close drains the NATS connection. Idempotent.
func (s *NATSServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.conn.Close()
	return nil
}
