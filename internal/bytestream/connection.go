package bytestream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carlocorradini/sea-streamer/internal/logger"
	"github.com/carlocorradini/sea-streamer/internal/metrics"
	"github.com/carlocorradini/sea-streamer/internal/offsetstore"
	"github.com/carlocorradini/sea-streamer/internal/schema"
	"github.com/carlocorradini/sea-streamer/stream"
)

// disconnectFlushTimeout bounds the flush of each owned producer during
// Disconnect.
const disconnectFlushTimeout = 5 * time.Second

// Connection is one open byte-stream session. It owns the window, the mux,
// the group coordinator, and every producer and consumer created from it.
type Connection struct {
	name    string
	opts    stream.ConnectOptions
	mux     *Mux
	window  *window
	coord   *Coordinator
	offsets *offsetstore.Store
	metrics *metrics.StreamerMetrics
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	producers []*Producer
	consumers []*Consumer
	closed    bool
}

// Connect opens a connection over the medium. name is the backend variant
// ("stdio", "file", or "pipe") used in errors, logs, and metrics.
func Connect(ctx context.Context, name string, medium Medium, opts stream.ConnectOptions, m *metrics.StreamerMetrics) (*Connection, error) {
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var store *offsetstore.Store
	if opts.OffsetStoreDir != "" {
		var err error
		store, err = offsetstore.Open(opts.OffsetStoreDir)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	win := newWindow(opts.RetentionCapacity)
	conn := &Connection{
		name:    name,
		opts:    opts,
		window:  win,
		coord:   NewCoordinator(cctx, opts.LivenessTimeout, m),
		offsets: store,
		metrics: m,
		log:     logger.WithComponent(name),
		ctx:     cctx,
		cancel:  cancel,
	}
	conn.mux = NewMux(cctx, name, medium, win, opts.SendQueueSize, m)

	conn.log.Info().
		Int("retention_capacity", opts.RetentionCapacity).
		Dur("liveness_timeout", opts.LivenessTimeout).
		Msg("Byte-stream connection opened")
	return conn, nil
}

// Name identifies the backend variant.
func (c *Connection) Name() string {
	return c.name
}

// CreateProducer anchors a producer to key. The broker-only trim option is
// rejected here rather than silently ignored.
func (c *Connection) CreateProducer(key stream.StreamKey, opts stream.ProducerOptions) (stream.BackendProducer, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if opts.TrimMaxLen > 0 {
		return nil, stream.UnsupportedOptionError{Backend: c.name, Option: "trim max length"}
	}

	var validator *schema.Validator
	if len(opts.JSONSchema) > 0 {
		var err error
		validator, err = schema.Compile(opts.JSONSchema)
		if err != nil {
			return nil, err
		}
	}

	shards := opts.Shards
	if shards < 1 {
		shards = 1
	}

	p := &Producer{
		conn:      c,
		anchor:    key,
		shards:    stream.ShardID(uint32(shards)),
		validator: validator,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, stream.ChannelClosedError{}
	}
	c.producers = append(c.producers, p)
	return p, nil
}

// CreateConsumer subscribes to the given streams, optionally joining a
// group. Resumable mode requires a group: commits are keyed by group name.
func (c *Connection) CreateConsumer(keys []stream.StreamKey, opts stream.ConsumerOptions) (stream.BackendConsumer, error) {
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Mode == stream.ModeResumable && opts.Group == "" {
		return nil, stream.ConsumerGroupRequiredError{Op: "resumable mode"}
	}
	if opts.BufferCapacity < 0 {
		panic("bytestream: negative shard buffer capacity")
	}
	if opts.BufferCapacity > 0 {
		c.window.tightenCapacity(opts.BufferCapacity)
	}

	consumer := newConsumer(c, keys, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		consumer.Close(context.Background())
		return nil, stream.ChannelClosedError{}
	}
	c.consumers = append(c.consumers, consumer)
	return consumer, nil
}

// Disconnect flushes and closes every owned producer, closes consumers, and
// tears the mux down. Later operations on the connection fail with
// ChannelClosedError.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	producers := c.producers
	consumers := c.consumers
	c.mu.Unlock()

	for _, p := range producers {
		if err := p.Close(ctx); err != nil {
			c.log.Warn().Err(err).Str("stream", string(p.anchor)).Msg("Producer close failed during disconnect")
		}
	}
	for _, consumer := range consumers {
		_ = consumer.Close(ctx)
	}

	err := c.mux.Close(nil)
	c.cancel()

	if c.offsets != nil {
		if cerr := c.offsets.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	c.log.Info().Msg("Byte-stream connection closed")
	return err
}
