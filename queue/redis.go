package queue

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/task"
)

// blockWait bounds each BLPOP when callers ask to block indefinitely, so
// context cancellation is still honored between attempts.
const blockWait = 5 * time.Second

// RedisConfig holds Redis queue configuration.
type RedisConfig struct {
	Config // Embed base config

	// Addr is the host:port of the Redis server.
	Addr string

	// Password for AUTH. Empty = no auth.
	Password string

	// DB selects the logical database.
	DB int

	// Prefix namespaces the queue keys: "<prefix>:inputs" holds submitted
	// tasks, "<prefix>:results:<topic>" holds completed records.
	Prefix string

	// CleanSlate flushes stale queue keys when the server is built.
	CleanSlate bool
}

// DefaultRedisConfig returns configuration with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Config:     DefaultConfig(),
		Addr:       "localhost:6379",
		Prefix:     "tasks",
		CleanSlate: true,
	}
}

func (c *RedisConfig) normalize() {
	c.Config.normalize()
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Prefix == "" {
		c.Prefix = "tasks"
	}
}

func (c RedisConfig) inputsKey() string {
	return c.Prefix + ":inputs"
}

func (c RedisConfig) resultsKey(topic string) string {
	return c.Prefix + ":results:" + topic
}

func (c RedisConfig) allKeys() []string {
	keys := []string{c.inputsKey()}
	for _, topic := range c.Topics {
		keys = append(keys, c.resultsKey(topic))
	}
	return keys
}

// connectRedis builds a client and pings it so construction fails fast when
// the server is unreachable.
func connectRedis(cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, errors.New(errors.CodeConnection, "redis unreachable at "+cfg.Addr,
			errors.WithCause(err))
	}
	return rdb, nil
}

func mapRedisErr(err error, op string) error {
	switch {
	case err == redis.Nil:
		return ErrTimeout
	case stderrors.Is(err, redis.ErrClosed):
		return ErrClosed
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(err, op+" interrupted")
	default:
		return errors.New(errors.CodeConnection, op+" failed", errors.WithCause(err))
	}
}

// blpop pops the next element from a list. Positive timeouts map directly
// onto BLPOP; zero or negative timeouts loop in blockWait slices.
func blpop(ctx context.Context, rdb *redis.Client, key string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		values, err := rdb.BLPop(ctx, timeout, key).Result()
		if err != nil {
			return "", mapRedisErr(err, "redis blpop")
		}
		return values[1], nil
	}

	for {
		values, err := rdb.BLPop(ctx, blockWait, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", mapRedisErr(err, "redis blpop")
		}
		return values[1], nil
	}
}

// RedisClient implements Client over Redis lists.
type RedisClient struct {
	rdb    *redis.Client
	cfg    RedisConfig
	closed atomic.Bool
}

// NewRedisClient connects a queue client to Redis.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rdb, err := connectRedis(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisClient{rdb: rdb, cfg: cfg}, nil
}

// SendInputs packages a method invocation and pushes it onto the task list.
func (c *RedisClient) SendInputs(ctx context.Context, method string, args []any, opts ...SendOption) (string, error) {
	if c.closed.Load() {
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
	if err := c.rdb.RPush(ctx, c.cfg.inputsKey(), data).Err(); err != nil {
		return "", mapRedisErr(err, "redis rpush")
	}
	return r.TaskID, nil
}

// GetResult blocks up to timeout for the next completed record on the topic.
func (c *RedisClient) GetResult(ctx context.Context, topic string, timeout time.Duration) (*task.Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if !c.cfg.declared(topic) {
		return nil, errUnknownTopic(topic)
	}

	payload, err := blpop(ctx, c.rdb, c.cfg.resultsKey(topic), timeout)
	if err != nil {
		return nil, err
	}

	res, err := task.Decode([]byte(payload))
	if err != nil {
		return nil, err
	}
	res.MarkResultReceived()
	return res, nil
}

// SendKillSignal pushes the shutdown sentinel onto the task list.
func (c *RedisClient) SendKillSignal(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.rdb.RPush(ctx, c.cfg.inputsKey(), killSentinel).Err(); err != nil {
		return mapRedisErr(err, "redis rpush")
	}
	return nil
}

// Close releases the Redis connection. Idempotent.
func (c *RedisClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.rdb.Close()
}

// RedisServer implements Server over Redis lists.
type RedisServer struct {
	rdb    *redis.Client
	cfg    RedisConfig
	closed atomic.Bool
}

// NewRedisServer connects a queue server to Redis. With CleanSlate set it
// deletes stale queue keys first so old runs cannot leak tasks into this
// one.
func NewRedisServer(cfg RedisConfig) (*RedisServer, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rdb, err := connectRedis(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.CleanSlate {
		if err := rdb.Del(context.Background(), cfg.allKeys()...).Err(); err != nil {
			rdb.Close()
			return nil, mapRedisErr(err, "redis flush")
		}
	}
	return &RedisServer{rdb: rdb, cfg: cfg}, nil
}

// GetTask blocks up to timeout for the next submitted record.
func (s *RedisServer) GetTask(ctx context.Context, timeout time.Duration) (*task.Result, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	payload, err := blpop(ctx, s.rdb, s.cfg.inputsKey(), timeout)
	if err != nil {
		return nil, err
	}
	if isKillSignal([]byte(payload)) {
		return nil, ErrKillSignal
	}

	res, err := task.Decode([]byte(payload))
	if err != nil {
		return nil, err
	}
	res.MarkInputReceived()
	return res, nil
}

// SendResult routes a completed record to its topic's result list.
func (s *RedisServer) SendResult(ctx context.Context, res *task.Result) error {
	if s.closed.Load() {
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
	if err := s.rdb.RPush(ctx, s.cfg.resultsKey(out.Topic), data).Err(); err != nil {
		return mapRedisErr(err, "redis rpush")
	}
	return nil
}

// Close releases the Redis connection. Idempotent.
func (s *RedisServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rdb.Close()
}
