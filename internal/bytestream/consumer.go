package bytestream

import (
	"context"
	"sync"

	"github.com/carlocorradini/sea-streamer/stream"
)

// Consumer reads from the shards it is responsible for: all shards of its
// subscribed streams when standalone, or its round-robin share when in a
// group. Broadcast messages are delivered regardless of subscription or
// assignment.
type Consumer struct {
	conn       *Connection
	subscribed []stream.StreamKey
	opts       stream.ConsumerOptions
	membership *Membership

	closedCh  chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	assign        Assignment
	hasAssign     bool
	cursors       map[shardKey]cursorID
	initialShards map[shardKey]bool
	rr            int
}

func newConsumer(conn *Connection, keys []stream.StreamKey, opts stream.ConsumerOptions) *Consumer {
	subscribed := make([]stream.StreamKey, 0, len(keys))
	seen := make(map[stream.StreamKey]bool)
	for _, key := range keys {
		if key.IsBroadcast() || seen[key] {
			continue
		}
		seen[key] = true
		subscribed = append(subscribed, key)
	}

	c := &Consumer{
		conn:          conn,
		subscribed:    subscribed,
		opts:          opts,
		closedCh:      make(chan struct{}),
		cursors:       make(map[shardKey]cursorID),
		initialShards: make(map[shardKey]bool),
	}
	if opts.Group != "" {
		c.membership = conn.coord.Join(opts.Group)
	}

	// Shards that already exist get the mode's starting position; shards
	// first seen later hold only post-subscription messages and are read
	// from their oldest retained message in every mode.
	for _, key := range c.deliverable() {
		for _, shard := range conn.window.Shards(key) {
			c.initialShards[shardKey{stream: key, shard: shard}] = true
		}
	}
	c.applyUpdates()
	return c
}

// deliverable lists the streams this consumer reads: the broadcast stream
// plus its subscriptions.
func (c *Consumer) deliverable() []stream.StreamKey {
	keys := make([]stream.StreamKey, 0, len(c.subscribed)+1)
	keys = append(keys, stream.BroadcastKey)
	keys = append(keys, c.subscribed...)
	return keys
}

// Next delivers the next message from an assigned shard. It suspends until
// one is available, the consumer is closed or cancelled, or the channel
// turns terminal. Buffered messages drain before ChannelClosedError
// surfaces.
func (c *Consumer) Next(ctx context.Context) (stream.Message, error) {
	for {
		select {
		case <-c.closedCh:
			return stream.Message{}, stream.ConsumerClosedError{}
		default:
		}

		c.heartbeat()
		c.applyUpdates()

		if msg, ok := c.tryRead(); ok {
			return msg, nil
		}

		if closed, err := c.conn.window.Closed(); closed {
			return stream.Message{}, err
		}

		notify := c.conn.window.NotifyCh()
		var updates chan Assignment
		if c.membership != nil {
			updates = c.membership.Updates
		}
		select {
		case <-notify:
		case a := <-updates:
			c.setAssignment(a)
		case <-ctx.Done():
			return stream.Message{}, ctx.Err()
		case <-c.closedCh:
			return stream.Message{}, stream.ConsumerClosedError{}
		}
	}
}

// tryRead scans the deliverable shards round-robin and pops at most one
// message. Wake-ups for shards no longer assigned are discarded here: their
// cursors are closed so eviction can move past them.
func (c *Consumer) tryRead() (stream.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var candidates []shardKey
	for _, key := range c.deliverable() {
		broadcast := key.IsBroadcast()
		for _, shard := range c.conn.window.Shards(key) {
			sk := shardKey{stream: key, shard: shard}
			if !broadcast && !c.ownsLocked(shard) {
				if cid, ok := c.cursors[sk]; ok {
					c.conn.window.CloseCursor(sk, cid)
					delete(c.cursors, sk)
				}
				continue
			}
			candidates = append(candidates, sk)
		}
	}
	if len(candidates) == 0 {
		return stream.Message{}, false
	}

	start := c.rr % len(candidates)
	c.rr++
	for i := range candidates {
		sk := candidates[(start+i)%len(candidates)]
		cid, ok := c.cursors[sk]
		if !ok {
			var err error
			cid, err = c.openCursor(sk)
			if err != nil {
				continue
			}
			c.cursors[sk] = cid
		}
		if msg, ok := c.conn.window.Read(sk, cid); ok {
			return msg, true
		}
	}
	return stream.Message{}, false
}

// openCursor resolves the starting position for a shard first touched now.
// Callers hold c.mu.
func (c *Consumer) openCursor(sk shardKey) (cursorID, error) {
	pos := c.startingPos(sk)
	cid, err := c.conn.window.OpenCursor(sk, pos)
	if err == nil {
		return cid, nil
	}
	if _, ok := err.(stream.OffsetOutOfRangeError); !ok {
		return 0, err
	}
	if pos.Kind == stream.SeqPosAt {
		// Resuming past what the source has re-ingested so far. Leave the
		// cursor unopened; the next wake-up retries once more history has
		// arrived.
		return 0, err
	}
	// The requested history is gone; fall forward to new messages only.
	return c.conn.window.OpenCursor(sk, stream.PosEnd())
}

// startingPos picks the cursor position per consumer mode. Shards that
// appeared after subscription always start from their oldest retained
// message: everything on them is post-subscription.
func (c *Consumer) startingPos(sk shardKey) stream.SeqPos {
	// A committed offset wins even on a shard first seen now: the byte
	// source may replay history the previous run already consumed.
	if c.opts.Mode == stream.ModeResumable && c.conn.offsets != nil {
		committed, ok, err := c.conn.offsets.Committed(c.opts.Group, sk.stream, sk.shard)
		if err == nil && ok {
			return stream.PosAt(committed + 1)
		}
	}
	if !c.initialShards[sk] {
		return stream.PosStart()
	}
	switch c.opts.Mode {
	case stream.ModeReplay, stream.ModeResumable:
		if c.opts.Mode == stream.ModeResumable && c.opts.AutoOffsetReset == stream.ResetLatest {
			return stream.PosEnd()
		}
		return stream.PosStart()
	default:
		return stream.PosEnd()
	}
}

// Commit persists the message's sequence for the consumer's group. Without
// an offset store the commit is accepted and dropped: nothing outlives the
// process.
func (c *Consumer) Commit(ctx context.Context, msg stream.Message) error {
	if c.membership == nil {
		return stream.ConsumerGroupRequiredError{Op: "commit"}
	}
	if c.conn.offsets == nil {
		return nil
	}
	if err := c.conn.offsets.Commit(c.opts.Group, msg.Header.Stream, msg.Header.Shard, msg.Header.Seq); err != nil {
		return err
	}
	c.conn.metrics.RecordCommit(c.conn.name, c.opts.Group)
	return nil
}

// Seek repositions this consumer's cursor on one shard of every subscribed
// stream. A failure on one stream does not disturb the others.
func (c *Consumer) Seek(shard stream.ShardID, pos stream.SeqPos) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, key := range c.subscribed {
		sk := shardKey{stream: key, shard: shard}
		if cid, ok := c.cursors[sk]; ok {
			if err := c.conn.window.Seek(sk, cid, pos); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		cid, err := c.conn.window.OpenCursor(sk, pos)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.cursors[sk] = cid
	}
	return firstErr
}

// Close cancels pending polls, leaves the group, and releases every cursor.
func (c *Consumer) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		if c.membership != nil {
			c.membership.Leave()
		}
		c.mu.Lock()
		for sk, cid := range c.cursors {
			c.conn.window.CloseCursor(sk, cid)
		}
		c.cursors = make(map[shardKey]cursorID)
		c.mu.Unlock()
	})
	return nil
}

func (c *Consumer) heartbeat() {
	if c.membership != nil {
		c.membership.Heartbeat()
	}
}

// applyUpdates drains pending assignment snapshots without blocking.
func (c *Consumer) applyUpdates() {
	if c.membership == nil {
		return
	}
	select {
	case a := <-c.membership.Updates:
		c.setAssignment(a)
	default:
	}
}

func (c *Consumer) setAssignment(a Assignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assign = a
	c.hasAssign = true
}

// ownsLocked reports shard ownership under the current assignment snapshot.
// Standalone consumers own everything. Callers hold c.mu.
func (c *Consumer) ownsLocked(shard stream.ShardID) bool {
	if c.membership == nil {
		return true
	}
	if !c.hasAssign {
		return false
	}
	return c.assign.Owns(shard)
}
