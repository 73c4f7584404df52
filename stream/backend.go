package stream

import (
	"context"
	"time"
)

// Backend is the uniform operation surface implemented once per transport.
// The set of implementations is closed: the byte-stream backend and the
// redis broker backend. Behavior must be observably consistent across them
// for the common operation subset.
type Backend interface {
	// Name identifies the backend variant in errors and logs.
	Name() string

	// CreateProducer anchors a producer to a stream. Backend-specific
	// options foreign to this backend fail with UnsupportedOptionError.
	CreateProducer(stream StreamKey, opts ProducerOptions) (BackendProducer, error)

	// CreateConsumer subscribes a consumer to one or more streams,
	// optionally joining a consumer group.
	CreateConsumer(streams []StreamKey, opts ConsumerOptions) (BackendConsumer, error)

	// Disconnect tears the session down. Owned producers are flushed and
	// closed first.
	Disconnect(ctx context.Context) error
}

// BackendProducer sends messages to the stream it was anchored to.
type BackendProducer interface {
	// Send queues one payload. It blocks while the outgoing channel lacks
	// buffer space and fails with ChannelClosedError once the channel is
	// gone. Sends are never dropped silently.
	Send(ctx context.Context, payload []byte) (Receipt, error)

	// SendTo sends to an explicit stream. Anchored producers reject foreign
	// streams with AlreadyAnchoredError.
	SendTo(ctx context.Context, stream StreamKey, payload []byte) (Receipt, error)

	// Flush waits until all in-flight sends are acknowledged by the sink or
	// the timeout elapses, returning TimeoutError without losing queued
	// sends.
	Flush(ctx context.Context, timeout time.Duration) error

	// Close flushes and releases the producer.
	Close(ctx context.Context) error
}

// BackendConsumer receives messages from its subscribed streams.
type BackendConsumer interface {
	// Next suspends until a message is available on an assigned shard or the
	// context is cancelled. Cancellation never consumes a message it does
	// not deliver.
	Next(ctx context.Context) (Message, error)

	// Commit records the message's position for the consumer's group.
	Commit(ctx context.Context, msg Message) error

	// Seek moves the consumer's cursor for one shard. A target outside the
	// retained window fails with OffsetOutOfRangeError and leaves other
	// shards untouched.
	Seek(shard ShardID, pos SeqPos) error

	// Close cancels pending polls and leaves the consumer group.
	Close(ctx context.Context) error
}
