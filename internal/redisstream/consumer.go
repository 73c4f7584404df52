package redisstream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carlocorradini/sea-streamer/stream"
)

// pollBlock bounds each blocking server read so close and cancellation are
// noticed promptly.
const pollBlock = 500 * time.Millisecond

// Consumer reads entries from its subscribed Redis streams. Standalone
// consumers track their own read position per stream; grouped consumers let
// the server deal entries out and track delivery, and Commit acknowledges
// with XACK.
type Consumer struct {
	conn    *Connection
	streams []stream.StreamKey
	opts    stream.ConsumerOptions
	name    string

	closedCh  chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	lastIDs map[stream.StreamKey]string
}

func newConsumer(conn *Connection, keys []stream.StreamKey, opts stream.ConsumerOptions) (*Consumer, error) {
	streams := make([]stream.StreamKey, 0, len(keys))
	seen := make(map[stream.StreamKey]bool)
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		streams = append(streams, key)
	}

	c := &Consumer{
		conn:     conn,
		streams:  streams,
		opts:     opts,
		name:     uuid.NewString(),
		closedCh: make(chan struct{}),
		lastIDs:  make(map[stream.StreamKey]string),
	}

	startID := "$"
	if opts.Mode == stream.ModeReplay ||
		(opts.Mode == stream.ModeResumable && opts.AutoOffsetReset == stream.ResetEarliest) {
		startID = "0"
	}

	if opts.Group != "" {
		// The group is created once per stream at the mode's starting
		// position; later members inherit the existing group state.
		ctx := context.Background()
		for _, key := range streams {
			err := conn.client.XGroupCreateMkStream(ctx, string(key), opts.Group, startID).Err()
			if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
				return nil, err
			}
		}
		return c, nil
	}

	for _, key := range streams {
		c.lastIDs[key] = startID
	}
	return c, nil
}

// Next delivers the next entry from any subscribed stream, blocking until
// one arrives, the context is cancelled, or the consumer is closed. Entries
// without a readable payload field are skipped.
func (c *Consumer) Next(ctx context.Context) (stream.Message, error) {
	for {
		select {
		case <-c.closedCh:
			return stream.Message{}, stream.ConsumerClosedError{}
		default:
		}
		if err := ctx.Err(); err != nil {
			return stream.Message{}, err
		}

		results, err := c.read(ctx)
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return stream.Message{}, ctx.Err()
			}
			select {
			case <-c.closedCh:
				return stream.Message{}, stream.ConsumerClosedError{}
			default:
			}
			return stream.Message{}, err
		}

		for _, res := range results {
			key := stream.StreamKey(res.Stream)
			for _, entry := range res.Messages {
				c.advance(key, entry.ID)
				msg, ok := c.decode(key, entry)
				if !ok {
					c.conn.metrics.RecordDecodeError(backendName)
					c.conn.log.Warn().
						Str("stream", res.Stream).
						Str("id", entry.ID).
						Msg("Skipping entry without a readable payload")
					continue
				}
				c.conn.metrics.RecordReceive(backendName, key, stream.ZeroShard)
				return msg, nil
			}
		}
	}
}

func (c *Consumer) read(ctx context.Context) ([]redis.XStream, error) {
	if c.opts.Group != "" {
		args := make([]string, 0, len(c.streams)*2)
		for _, key := range c.streams {
			args = append(args, string(key))
		}
		for range c.streams {
			args = append(args, ">")
		}
		return c.conn.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.name,
			Streams:  args,
			Count:    1,
			Block:    pollBlock,
		}).Result()
	}

	c.mu.Lock()
	args := make([]string, 0, len(c.streams)*2)
	for _, key := range c.streams {
		args = append(args, string(key))
	}
	for _, key := range c.streams {
		args = append(args, c.lastIDs[key])
	}
	c.mu.Unlock()

	return c.conn.client.XRead(ctx, &redis.XReadArgs{
		Streams: args,
		Count:   1,
		Block:   pollBlock,
	}).Result()
}

// advance moves a standalone consumer's read position past the entry.
func (c *Consumer) advance(key stream.StreamKey, id string) {
	if c.opts.Group != "" {
		return
	}
	c.mu.Lock()
	c.lastIDs[key] = id
	c.mu.Unlock()
}

func (c *Consumer) decode(key stream.StreamKey, entry redis.XMessage) (stream.Message, bool) {
	raw, ok := entry.Values[payloadField]
	if !ok {
		return stream.Message{}, false
	}
	var payload []byte
	switch v := raw.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	default:
		return stream.Message{}, false
	}

	seq, ts, err := seqFromID(entry.ID)
	if err != nil {
		return stream.Message{}, false
	}
	return stream.Message{
		Header: stream.MessageHeader{
			Stream:    key,
			Shard:     stream.ZeroShard,
			Seq:       seq,
			Timestamp: ts,
		},
		Payload: payload,
	}, true
}

// Commit acknowledges the entry in the consumer group.
func (c *Consumer) Commit(ctx context.Context, msg stream.Message) error {
	if c.opts.Group == "" {
		return stream.ConsumerGroupRequiredError{Op: "commit"}
	}
	if err := c.conn.client.XAck(ctx, string(msg.Header.Stream), c.opts.Group, idFromSeq(msg.Header.Seq)).Err(); err != nil {
		return err
	}
	c.conn.metrics.RecordCommit(backendName, c.opts.Group)
	return nil
}

// Seek repositions a standalone consumer on every subscribed stream. Grouped
// consumers cannot seek: the server owns their delivery position.
func (c *Consumer) Seek(shard stream.ShardID, pos stream.SeqPos) error {
	if c.opts.Group != "" {
		return stream.UnsupportedOptionError{Backend: backendName, Option: "seek in a consumer group"}
	}
	if shard != stream.ZeroShard {
		return stream.UnsupportedOptionError{Backend: backendName, Option: "non-zero shard"}
	}

	var id string
	switch pos.Kind {
	case stream.SeqPosStart:
		id = "0"
	case stream.SeqPosEnd:
		id = "$"
	case stream.SeqPosAt:
		// XREAD is exclusive, so position just before the requested entry.
		if pos.At == 0 {
			id = "0"
		} else {
			id = idFromSeq(pos.At - 1)
		}
	case stream.SeqPosAtTime:
		id = idFromTime(pos.Time)
	default:
		return stream.UnsupportedOptionError{Backend: backendName, Option: "unknown seek position"}
	}

	c.mu.Lock()
	for _, key := range c.streams {
		c.lastIDs[key] = id
	}
	c.mu.Unlock()
	return nil
}

// Close releases the server-side consumer record and cancels pending polls.
func (c *Consumer) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		if c.opts.Group != "" {
			for _, key := range c.streams {
				if err := c.conn.client.XGroupDelConsumer(ctx, string(key), c.opts.Group, c.name).Err(); err != nil {
					c.conn.log.Debug().Err(err).Str("stream", string(key)).Msg("Consumer deregistration failed")
				}
			}
		}
	})
	return nil
}
