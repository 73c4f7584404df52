package streamer

import (
	"context"
	"time"

	"github.com/carlocorradini/sea-streamer/stream"
)

// Producer sends payloads to the stream it was anchored to at creation.
type Producer struct {
	inner  stream.BackendProducer
	anchor stream.StreamKey
}

// Anchor returns the stream this producer is bound to.
func (p *Producer) Anchor() stream.StreamKey {
	return p.anchor
}

// Send queues one payload for the anchored stream and returns its receipt.
func (p *Producer) Send(ctx context.Context, payload []byte) (stream.Receipt, error) {
	return p.inner.Send(ctx, payload)
}

// SendString is Send for text payloads.
func (p *Producer) SendString(ctx context.Context, payload string) (stream.Receipt, error) {
	return p.inner.Send(ctx, []byte(payload))
}

// SendTo sends to an explicit stream. It fails with AlreadyAnchoredError
// unless key matches the anchor; the explicit form exists so the mismatch is
// an error rather than a silent redirect.
func (p *Producer) SendTo(ctx context.Context, key stream.StreamKey, payload []byte) (stream.Receipt, error) {
	return p.inner.SendTo(ctx, key, payload)
}

// Flush blocks until every send accepted so far has reached the underlying
// sink, or the timeout elapses with TimeoutError. A zero timeout demands the
// queue be already drained.
func (p *Producer) Flush(ctx context.Context, timeout time.Duration) error {
	return p.inner.Flush(ctx, timeout)
}

// Close flushes and retires the producer. The connection stays usable.
func (p *Producer) Close(ctx context.Context) error {
	return p.inner.Close(ctx)
}
