package bytestream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/carlocorradini/sea-streamer/internal/schema"
	"github.com/carlocorradini/sea-streamer/stream"
)

// Producer is a byte-stream producer handle anchored to one stream. Handles
// are cheap; all writes funnel through the connection's serialized mux path.
type Producer struct {
	conn      *Connection
	anchor    stream.StreamKey
	shards    stream.ShardID
	validator *schema.Validator

	next   atomic.Uint64 // round-robin shard counter
	closed atomic.Bool
}

// Send queues one payload for the anchored stream.
func (p *Producer) Send(ctx context.Context, payload []byte) (stream.Receipt, error) {
	return p.SendTo(ctx, p.anchor, payload)
}

// SendTo enforces the anchor: producers address exactly the stream they were
// created for.
func (p *Producer) SendTo(ctx context.Context, key stream.StreamKey, payload []byte) (stream.Receipt, error) {
	if p.closed.Load() {
		return stream.Receipt{}, stream.ChannelClosedError{}
	}
	if key != p.anchor {
		return stream.Receipt{}, stream.AlreadyAnchoredError{Anchored: p.anchor, Requested: key}
	}
	if p.validator != nil {
		if err := p.validator.Validate(payload); err != nil {
			return stream.Receipt{}, stream.MalformedPayloadError{Line: string(payload), Reason: err.Error()}
		}
	}

	shard := stream.ZeroShard
	if p.shards > 1 {
		shard = stream.ShardID(uint32(p.next.Add(1)-1) % uint32(p.shards))
	}
	return p.conn.mux.Send(ctx, key, shard, payload)
}

// Flush waits for every in-flight send to reach the sink.
func (p *Producer) Flush(ctx context.Context, timeout time.Duration) error {
	return p.conn.mux.Flush(ctx, timeout)
}

// Close flushes and retires the handle. The underlying channel stays open
// for the connection's other producers.
func (p *Producer) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.conn.mux.Flush(ctx, disconnectFlushTimeout)
}
