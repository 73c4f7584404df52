package streamer

import (
	"context"

	"github.com/carlocorradini/sea-streamer/stream"
)

// Consumer polls messages from its subscribed streams.
type Consumer struct {
	inner   stream.BackendConsumer
	streams []stream.StreamKey
}

// Streams returns the subscription list given at creation.
func (c *Consumer) Streams() []stream.StreamKey {
	return c.streams
}

// Next blocks until a message is available, the context is cancelled, or the
// connection turns terminal.
func (c *Consumer) Next(ctx context.Context) (stream.Message, error) {
	return c.inner.Next(ctx)
}

// Commit durably records the message's sequence for this consumer's group so
// a later resumable consumer starts after it. Commits are idempotent;
// regressions are ignored.
func (c *Consumer) Commit(ctx context.Context, msg stream.Message) error {
	return c.inner.Commit(ctx, msg)
}

// Seek repositions the consumer on one shard of every subscribed stream.
func (c *Consumer) Seek(shard stream.ShardID, pos stream.SeqPos) error {
	return c.inner.Seek(shard, pos)
}

// Close leaves any group and releases the consumer's cursors. Pending and
// later polls fail with ConsumerClosedError.
func (c *Consumer) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}
