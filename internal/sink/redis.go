package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/redis/go-redis/v9"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSink("redis", NewRedis)
}

// RedisConfig configures the redis sink.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Key is the list the batches are pushed onto.
	Key string `mapstructure:"key"`

	// MaxLen, when > 0, trims the list to a bounded length after each
	// batch so an unconsumed list cannot grow without bound.
	MaxLen int64 `mapstructure:"max_len"`
}

// Redis pushes JSON-encoded events onto a Redis list.
type Redis struct {
	name   string
	cfg    RedisConfig
	client *redis.Client
	log    logger.ILogger
}

// NewRedis creates a redis sink from its opaque config mapping.
func NewRedis(name string, cfg map[string]any, log logger.ILogger) (plugin.Sink, error) {
	c := RedisConfig{
		Addr: "localhost:6379",
		Key:  "logflow:events",
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("redis sink %q: %w", name, err)
	}
	if c.Key == "" {
		return nil, plugin.Configf("redis sink %q: key is required", name)
	}
	return &Redis{name: name, cfg: c, log: log.SubLogger("RedisSink")}, nil
}

// Name returns the instance name.
func (s *Redis) Name() string { return s.name }

// Open connects and pings the server.
func (s *Redis) Open(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", s.cfg.Addr, err)
	}
	return nil
}

// Flush is a no-op; RPUSH is synchronous.
func (s *Redis) Flush(ctx context.Context) error { return nil }

// Close releases the client.
func (s *Redis) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Write pushes the whole batch in one pipelined round trip.
func (s *Redis) Write(ctx context.Context, batch model.Batch) error {
	if s.client == nil {
		return plugin.Fatal(fmt.Errorf("redis sink %q is not open", s.name))
	}

	values := make([]any, 0, len(batch))
	for _, ev := range batch {
		data, err := json.Marshal(ev.ToMap())
		if err != nil {
			return plugin.Fatal(err)
		}
		values = append(values, data)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.cfg.Key, values...)
	if s.cfg.MaxLen > 0 {
		pipe.LTrim(ctx, s.cfg.Key, -s.cfg.MaxLen, -1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return plugin.Retryable(err)
	}
	return nil
}
