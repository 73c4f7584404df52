package stream

import "time"

// ConsumerMode controls where a consumer starts and whether it commits.
type ConsumerMode int

const (
	// ModeRealTime consumes messages from now on and does not auto-commit.
	ModeRealTime ConsumerMode = iota
	// ModeResumable resumes from the previously committed sequence when the
	// process restarts. Requires a consumer group.
	ModeResumable
	// ModeReplay consumes from the beginning of the retained history.
	ModeReplay
)

// String returns the mode name.
func (m ConsumerMode) String() string {
	switch m {
	case ModeRealTime:
		return "real-time"
	case ModeResumable:
		return "resumable"
	case ModeReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// AutoOffsetReset decides where a resumable consumer starts when no offset
// has been committed yet.
type AutoOffsetReset int

const (
	// ResetEarliest starts from the oldest retained message.
	ResetEarliest AutoOffsetReset = iota
	// ResetLatest starts from the next new message.
	ResetLatest
)

// String returns the reset policy name.
func (r AutoOffsetReset) String() string {
	switch r {
	case ResetEarliest:
		return "earliest"
	case ResetLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// ConsumerOptions configures a consumer. The zero value is a real-time
// consumer with no group and unbounded per-shard buffers.
type ConsumerOptions struct {
	// Mode controls the starting position and commit behavior.
	Mode ConsumerMode

	// Group is the optional consumer group name. Members of the same group
	// share shard responsibility.
	Group string

	// AutoOffsetReset applies to resumable consumers with no committed
	// offset.
	AutoOffsetReset AutoOffsetReset

	// BufferCapacity bounds each per-shard buffer. Zero means unbounded.
	BufferCapacity int
}

// ConsumerOption mutates ConsumerOptions.
type ConsumerOption func(*ConsumerOptions)

// WithMode sets the consumer mode.
func WithMode(mode ConsumerMode) ConsumerOption {
	return func(o *ConsumerOptions) { o.Mode = mode }
}

// WithGroup assigns the consumer to a named group.
func WithGroup(group string) ConsumerOption {
	return func(o *ConsumerOptions) { o.Group = group }
}

// WithAutoOffsetReset sets the reset policy for resumable consumers.
func WithAutoOffsetReset(reset AutoOffsetReset) ConsumerOption {
	return func(o *ConsumerOptions) { o.AutoOffsetReset = reset }
}

// WithBufferCapacity bounds the per-shard buffer. Must be positive; zero
// keeps the buffer unbounded.
func WithBufferCapacity(capacity int) ConsumerOption {
	return func(o *ConsumerOptions) { o.BufferCapacity = capacity }
}

// NewConsumerOptions applies the given options over the defaults.
func NewConsumerOptions(opts ...ConsumerOption) ConsumerOptions {
	var o ConsumerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ProducerOptions configures a producer.
type ProducerOptions struct {
	// JSONSchema, when set, validates every payload against the given JSON
	// schema before it is sent. Works on every backend.
	JSONSchema []byte

	// TrimMaxLen caps the broker-side stream length (approximate trimming).
	// Broker backend only; the byte-stream backend rejects it with
	// UnsupportedOptionError.
	TrimMaxLen int64

	// Shards spreads sends round-robin over this many shards of the
	// anchored stream. Byte-stream backend only; zero or one keeps
	// everything on shard zero.
	Shards int
}

// ProducerOption mutates ProducerOptions.
type ProducerOption func(*ProducerOptions)

// WithJSONSchema validates payloads against schema before sending.
func WithJSONSchema(schema []byte) ProducerOption {
	return func(o *ProducerOptions) { o.JSONSchema = schema }
}

// WithTrimMaxLen caps the broker-side stream length. Broker backend only.
func WithTrimMaxLen(maxLen int64) ProducerOption {
	return func(o *ProducerOptions) { o.TrimMaxLen = maxLen }
}

// WithShards spreads sends round-robin over n shards. Byte-stream only.
func WithShards(n int) ProducerOption {
	return func(o *ProducerOptions) { o.Shards = n }
}

// NewProducerOptions applies the given options over the defaults.
func NewProducerOptions(opts ...ProducerOption) ProducerOptions {
	var o ProducerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ConnectOptions configures a connection before any producer or consumer is
// created from it.
type ConnectOptions struct {
	// RetentionCapacity bounds each shard's retained history window on the
	// byte-stream backend. Zero means unbounded. The broker backend rejects
	// it with UnsupportedOptionError.
	RetentionCapacity int

	// LivenessTimeout expires group members that have not polled recently.
	// Zero disables liveness detection.
	LivenessTimeout time.Duration

	// OffsetStoreDir holds committed offsets for resumable consumers on the
	// byte-stream backend. Empty disables the store; resumable consumers
	// then fall back to their AutoOffsetReset policy.
	OffsetStoreDir string

	// SendQueueSize bounds the outgoing write queue of the byte-stream
	// backend. Sends block once it is full.
	SendQueueSize int
}

// ConnectOption mutates ConnectOptions.
type ConnectOption func(*ConnectOptions)

// WithRetentionCapacity bounds per-shard retained history. Byte-stream only.
func WithRetentionCapacity(capacity int) ConnectOption {
	return func(o *ConnectOptions) { o.RetentionCapacity = capacity }
}

// WithLivenessTimeout expires group members that stopped polling.
func WithLivenessTimeout(timeout time.Duration) ConnectOption {
	return func(o *ConnectOptions) { o.LivenessTimeout = timeout }
}

// WithOffsetStoreDir enables the persistent committed-offset store.
func WithOffsetStoreDir(dir string) ConnectOption {
	return func(o *ConnectOptions) { o.OffsetStoreDir = dir }
}

// WithSendQueueSize bounds the outgoing write queue.
func WithSendQueueSize(size int) ConnectOption {
	return func(o *ConnectOptions) { o.SendQueueSize = size }
}

// NewConnectOptions applies the given options over the defaults.
func NewConnectOptions(opts ...ConnectOption) ConnectOptions {
	o := ConnectOptions{SendQueueSize: DefaultSendQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultSendQueueSize is the default bound of the outgoing write queue.
const DefaultSendQueueSize = 1024
