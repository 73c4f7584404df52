// Package bytestream turns a plain byte channel (standard streams, a file, a
// pipe) into a full streaming backend: logical streams and shards are
// multiplexed over one channel, offsets are assigned at ingestion, history
// is retained for replay, and consumer groups balance shards between members
// without a broker process.
package bytestream

import (
	"sort"
	"sync"
	"time"

	"github.com/carlocorradini/sea-streamer/internal/codec"
	"github.com/carlocorradini/sea-streamer/stream"
)

// cursorID names one consumer's read position within a shard window.
type cursorID uint64

// shardKey addresses one shard of one stream.
type shardKey struct {
	stream stream.StreamKey
	shard  stream.ShardID
}

// shardWindow is the retained history of one shard. Messages are ordered by
// strictly increasing sequence, but adopting a forward wire sequence can
// leave a gap, so positions are resolved by search, never by index from the
// oldest.
type shardWindow struct {
	msgs    []stream.Message
	nextSeq stream.SeqNo
	cursors map[cursorID]stream.SeqNo // next unconsumed seq per cursor
}

// oldestRetained returns the sequence of the oldest retained message.
func (w *shardWindow) oldestRetained() (stream.SeqNo, bool) {
	if len(w.msgs) == 0 {
		return 0, false
	}
	return w.msgs[0].Header.Seq, true
}

// referenced reports whether any cursor still points at seq or earlier.
func (w *shardWindow) referenced(seq stream.SeqNo) bool {
	for _, pos := range w.cursors {
		if pos <= seq {
			return true
		}
	}
	return false
}

// window is the offset and replay manager for one connection. It owns every
// shard's retained history and every consumer cursor. The background reader
// task is its only writer; consumers move cursors through Read and Seek.
type window struct {
	mu       sync.Mutex
	shards   map[shardKey]*shardWindow
	capacity int // retained messages per shard; 0 = unbounded
	nextID   cursorID
	notifyCh chan struct{}
	closed   bool
	closeErr error
}

func newWindow(capacity int) *window {
	if capacity < 0 {
		panic("bytestream: negative shard capacity")
	}
	return &window{
		shards:   make(map[shardKey]*shardWindow),
		capacity: capacity,
		notifyCh: make(chan struct{}),
	}
}

// tightenCapacity lowers the per-shard capacity. Used when a consumer asks
// for a bound smaller than the connection default.
func (w *window) tightenCapacity(capacity int) {
	if capacity < 0 {
		panic("bytestream: negative shard capacity")
	}
	if capacity == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.capacity == 0 || capacity < w.capacity {
		w.capacity = capacity
	}
}

// Append ingests a decoded frame: it resolves the stream key default,
// assigns the next sequence number unless the wire carried a usable one, and
// wakes every waiting reader. A wire sequence below the shard's next is
// ignored to keep the order strictly increasing.
func (w *window) Append(f codec.Frame) (stream.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return stream.Message{}, stream.ChannelClosedError{Err: w.closeErr}
	}

	key := shardKey{stream: f.Defaulted(), shard: f.Shard}
	sw := w.shard(key)

	seq := sw.nextSeq
	if f.HasSeq && f.Seq >= seq {
		seq = f.Seq
	}
	sw.nextSeq = seq + 1

	ts := f.Timestamp
	if !f.HasTimestamp {
		ts = time.Now().UTC().Truncate(time.Microsecond)
	}

	msg := stream.Message{
		Header: stream.MessageHeader{
			Stream:    key.stream,
			Shard:     key.shard,
			Seq:       seq,
			Timestamp: ts,
		},
		Payload: f.Payload,
	}
	sw.msgs = append(sw.msgs, msg)

	w.sweep(sw)
	w.wake()
	return msg, nil
}

// shard returns the window for key, creating it on first sight.
func (w *window) shard(key shardKey) *shardWindow {
	sw, ok := w.shards[key]
	if !ok {
		sw = &shardWindow{cursors: make(map[cursorID]stream.SeqNo)}
		w.shards[key] = sw
	}
	return sw
}

// sweep drops messages past capacity, oldest first, but never a message some
// live cursor has not consumed yet. Eviction is deferred, not refused: the
// next sweep retries once the blocking cursor moves or closes.
func (w *window) sweep(sw *shardWindow) {
	if w.capacity == 0 {
		return
	}
	for len(sw.msgs) > w.capacity {
		oldest := sw.msgs[0].Header.Seq
		if sw.referenced(oldest) {
			return
		}
		sw.msgs = sw.msgs[1:]
	}
}

// wake signals every waiter that state changed. Waiters re-check and wait on
// the replacement channel.
func (w *window) wake() {
	close(w.notifyCh)
	w.notifyCh = make(chan struct{})
}

// NotifyCh returns the channel closed on the next append, close, or seek.
func (w *window) NotifyCh() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notifyCh
}

// Closed reports the terminal state and its cause.
func (w *window) Closed() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed, w.closeErr
}

// Close marks the window terminal and wakes all waiters. Retained messages
// stay readable until the connection is torn down.
func (w *window) Close(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.closeErr = err
	close(w.notifyCh)
	w.notifyCh = make(chan struct{})
}

// Shards lists the shards seen so far for one stream.
func (w *window) Shards(key stream.StreamKey) []stream.ShardID {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []stream.ShardID
	for sk := range w.shards {
		if sk.stream == key {
			out = append(out, sk.shard)
		}
	}
	return out
}

// OpenCursor registers a consumer position resolved from pos. The cursor
// then pins its unconsumed suffix of the window against eviction.
func (w *window) OpenCursor(key shardKey, pos stream.SeqPos) (cursorID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sw := w.shard(key)
	at, err := w.resolve(key, sw, pos)
	if err != nil {
		return 0, err
	}

	w.nextID++
	id := w.nextID
	sw.cursors[id] = at
	return id, nil
}

// Seek repositions an existing cursor. Failure leaves the cursor untouched.
func (w *window) Seek(key shardKey, id cursorID, pos stream.SeqPos) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sw, ok := w.shards[key]
	if !ok {
		sw = w.shard(key)
	}
	if _, ok := sw.cursors[id]; !ok {
		return stream.ConsumerClosedError{}
	}
	at, err := w.resolve(key, sw, pos)
	if err != nil {
		return err
	}
	sw.cursors[id] = at
	w.sweep(sw)
	w.wake()
	return nil
}

// resolve maps a requested position onto a concrete next-unconsumed
// sequence. Callers hold w.mu.
func (w *window) resolve(key shardKey, sw *shardWindow, pos stream.SeqPos) (stream.SeqNo, error) {
	switch pos.Kind {
	case stream.SeqPosStart:
		if oldest, ok := sw.oldestRetained(); ok {
			return oldest, nil
		}
		if sw.nextSeq == 0 {
			// Nothing ever appended; start means "from the first message".
			return 0, nil
		}
		return 0, stream.OffsetOutOfRangeError{Stream: key.stream, Shard: key.shard, Requested: pos}
	case stream.SeqPosEnd:
		return sw.nextSeq, nil
	case stream.SeqPosAt:
		if pos.At > sw.nextSeq {
			// Beyond everything ever assigned on this shard.
			return 0, stream.OffsetOutOfRangeError{Stream: key.stream, Shard: key.shard, Requested: pos}
		}
		if pos.At == sw.nextSeq {
			// Equivalent to end: wait for the next message.
			return pos.At, nil
		}
		oldest, ok := sw.oldestRetained()
		if !ok {
			// Assigned once but evicted since.
			return 0, stream.OffsetOutOfRangeError{Stream: key.stream, Shard: key.shard, Requested: pos}
		}
		if pos.At < oldest {
			return oldest, nil
		}
		return pos.At, nil
	case stream.SeqPosAtTime:
		for _, m := range sw.msgs {
			if !m.Header.Timestamp.Before(pos.Time) {
				return m.Header.Seq, nil
			}
		}
		return sw.nextSeq, nil
	default:
		panic("bytestream: unknown seek position kind")
	}
}

// CloseCursor drops a consumer position and lets eviction advance past it.
func (w *window) CloseCursor(key shardKey, id cursorID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sw, ok := w.shards[key]
	if !ok {
		return
	}
	delete(sw.cursors, id)
	w.sweep(sw)
}

// Read delivers the message at the cursor and advances it, or reports that
// the cursor has nothing to consume yet. Check and advance are atomic, so a
// cancelled waiter can never lose a message it did not deliver.
func (w *window) Read(key shardKey, id cursorID) (stream.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sw, ok := w.shards[key]
	if !ok {
		return stream.Message{}, false
	}
	pos, ok := sw.cursors[id]
	if !ok {
		return stream.Message{}, false
	}
	// Deliver the first retained message at or past the cursor. A cursor
	// sitting inside a wire-sequence gap skips forward to the next message.
	i := sort.Search(len(sw.msgs), func(i int) bool {
		return sw.msgs[i].Header.Seq >= pos
	})
	if i == len(sw.msgs) {
		return stream.Message{}, false
	}
	msg := sw.msgs[i]
	sw.cursors[id] = msg.Header.Seq + 1
	w.sweep(sw)
	return msg, true
}

// Depth returns the number of retained messages on one shard.
func (w *window) Depth(key shardKey) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	sw, ok := w.shards[key]
	if !ok {
		return 0
	}
	return len(sw.msgs)
}

// Position returns the cursor's next unconsumed sequence.
func (w *window) Position(key shardKey, id cursorID) (stream.SeqNo, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sw, ok := w.shards[key]
	if !ok {
		return 0, false
	}
	pos, ok := sw.cursors[id]
	return pos, ok
}
