// Package redisstream is the broker backend: streams map to Redis Streams,
// producers append with XADD, consumers read with XREAD or XREADGROUP, and
// commits acknowledge with XACK. Ordering, retention, and group bookkeeping
// live on the server.
package redisstream

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carlocorradini/sea-streamer/internal/logger"
	"github.com/carlocorradini/sea-streamer/internal/metrics"
	"github.com/carlocorradini/sea-streamer/internal/schema"
	"github.com/carlocorradini/sea-streamer/stream"
)

const backendName = "redis"

// Connection is one open session against a Redis server.
type Connection struct {
	client  *redis.Client
	metrics *metrics.StreamerMetrics
	log     zerolog.Logger

	mu        sync.Mutex
	closed    bool
	consumers []*Consumer
}

// Connect parses the URL, dials, and pings. Options that only mean something
// on the byte-stream backend are rejected up front instead of silently
// dropped.
func Connect(ctx context.Context, url string, opts stream.ConnectOptions, m *metrics.StreamerMetrics) (*Connection, error) {
	if opts.RetentionCapacity > 0 {
		return nil, stream.UnsupportedOptionError{Backend: backendName, Option: "retention capacity"}
	}
	if opts.OffsetStoreDir != "" {
		return nil, stream.UnsupportedOptionError{Backend: backendName, Option: "offset store directory"}
	}
	if opts.LivenessTimeout > 0 {
		return nil, stream.UnsupportedOptionError{Backend: backendName, Option: "liveness timeout"}
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	log := logger.WithComponent(backendName)
	log.Info().Str("addr", redisOpts.Addr).Int("db", redisOpts.DB).Msg("Redis connection opened")

	return &Connection{client: client, metrics: m, log: log}, nil
}

// Name identifies the backend.
func (c *Connection) Name() string {
	return backendName
}

// CreateProducer anchors a producer to key. Redis streams are not sharded
// here, so the shard-spread option is rejected.
func (c *Connection) CreateProducer(key stream.StreamKey, opts stream.ProducerOptions) (stream.BackendProducer, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if opts.Shards > 1 {
		return nil, stream.UnsupportedOptionError{Backend: backendName, Option: "producer shards"}
	}

	var validator *schema.Validator
	if len(opts.JSONSchema) > 0 {
		var err error
		validator, err = schema.Compile(opts.JSONSchema)
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, stream.ChannelClosedError{}
	}
	return &Producer{
		conn:      c,
		anchor:    key,
		validator: validator,
		trim:      opts.TrimMaxLen,
	}, nil
}

// CreateConsumer subscribes to the given streams. Grouped consumers get a
// server-side consumer group per stream, created at the position the mode
// calls for.
func (c *Connection) CreateConsumer(keys []stream.StreamKey, opts stream.ConsumerOptions) (stream.BackendConsumer, error) {
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return nil, err
		}
	}
	if len(keys) == 0 {
		return nil, stream.InvalidStreamKeyError{Key: ""}
	}
	if opts.Mode == stream.ModeResumable && opts.Group == "" {
		return nil, stream.ConsumerGroupRequiredError{Op: "resumable mode"}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, stream.ChannelClosedError{}
	}
	c.mu.Unlock()

	consumer, err := newConsumer(c, keys, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		consumer.Close(context.Background())
		return nil, stream.ChannelClosedError{}
	}
	c.consumers = append(c.consumers, consumer)
	return consumer, nil
}

// Disconnect closes consumers and the client. Redis sends are synchronous so
// there is nothing to flush.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	consumers := c.consumers
	c.mu.Unlock()

	for _, consumer := range consumers {
		_ = consumer.Close(ctx)
	}

	err := c.client.Close()
	c.log.Info().Msg("Redis connection closed")
	return err
}
