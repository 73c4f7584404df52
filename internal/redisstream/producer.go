package redisstream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carlocorradini/sea-streamer/internal/schema"
	"github.com/carlocorradini/sea-streamer/stream"
)

// payloadField is the entry field carrying the message body.
const payloadField = "payload"

// Producer appends entries to its anchored stream with XADD. Sends are
// synchronous round trips, so every returned receipt is already durable on
// the server.
type Producer struct {
	conn      *Connection
	anchor    stream.StreamKey
	validator *schema.Validator
	trim      int64

	closed atomic.Bool
}

// Send appends one payload to the anchored stream.
func (p *Producer) Send(ctx context.Context, payload []byte) (stream.Receipt, error) {
	return p.SendTo(ctx, p.anchor, payload)
}

// SendTo enforces the anchor and appends. Trimming, when configured, is
// approximate so the server can trim whole macro nodes.
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

	args := &redis.XAddArgs{
		Stream: string(key),
		Values: map[string]interface{}{payloadField: payload},
	}
	if p.trim > 0 {
		args.MaxLen = p.trim
		args.Approx = true
	}

	id, err := p.conn.client.XAdd(ctx, args).Result()
	if err != nil {
		return stream.Receipt{}, err
	}
	seq, ts, err := seqFromID(id)
	if err != nil {
		return stream.Receipt{}, err
	}

	p.conn.metrics.RecordSend(backendName, key, stream.ZeroShard)
	return stream.Receipt{Stream: key, Shard: stream.ZeroShard, Seq: seq, Timestamp: ts}, nil
}

// Flush is a no-op: XADD confirms durability before returning.
func (p *Producer) Flush(ctx context.Context, timeout time.Duration) error {
	return nil
}

// Close retires the handle. The connection stays open.
func (p *Producer) Close(ctx context.Context) error {
	p.closed.Store(true)
	return nil
}
