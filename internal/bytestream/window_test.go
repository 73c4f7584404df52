package bytestream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/internal/codec"
	"github.com/carlocorradini/sea-streamer/stream"
)

func appendLine(t *testing.T, w *window, key stream.StreamKey, shard stream.ShardID, payload string) stream.Message {
	t.Helper()
	msg, err := w.Append(codec.Frame{
		Stream:    key,
		HasStream: true,
		Shard:     shard,
		HasShard:  true,
		Payload:   []byte(payload),
	})
	require.NoError(t, err)
	return msg
}

func TestWindowAssignsGaplessSequences(t *testing.T) {
	w := newWindow(0)
	sk := shardKey{stream: "orders", shard: 0}

	for i := 0; i < 3; i++ {
		msg := appendLine(t, w, "orders", 0, "m")
		assert.Equal(t, stream.SeqNo(i), msg.Header.Seq)
	}

	id, err := w.OpenCursor(sk, stream.PosStart())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		msg, ok := w.Read(sk, id)
		require.True(t, ok)
		assert.Equal(t, stream.SeqNo(i), msg.Header.Seq)
	}
	_, ok := w.Read(sk, id)
	assert.False(t, ok, "cursor past the newest message has nothing to read")
}

func TestWindowAdoptsWireSequences(t *testing.T) {
	w := newWindow(0)
	sk := shardKey{stream: "orders", shard: 0}

	m1, err := w.Append(codec.Frame{Stream: "orders", HasStream: true, Seq: 5, HasSeq: true, Payload: []byte("a")})
	require.NoError(t, err)
	m2, err := w.Append(codec.Frame{Stream: "orders", HasStream: true, Seq: 6, HasSeq: true, Payload: []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, stream.SeqNo(5), m1.Header.Seq)
	assert.Equal(t, stream.SeqNo(6), m2.Header.Seq)

	// A wire sequence behind the shard's order is ignored, never reused.
	m3, err := w.Append(codec.Frame{Stream: "orders", HasStream: true, Seq: 3, HasSeq: true, Payload: []byte("c")})
	require.NoError(t, err)
	assert.Equal(t, stream.SeqNo(7), m3.Header.Seq)

	id, err := w.OpenCursor(sk, stream.PosAt(6))
	require.NoError(t, err)
	msg, ok := w.Read(sk, id)
	require.True(t, ok)
	assert.Equal(t, "b", string(msg.Payload))
}

func TestWindowReadsAcrossAdoptedGap(t *testing.T) {
	w := newWindow(0)
	sk := shardKey{stream: "orders", shard: 0}

	id, err := w.OpenCursor(sk, stream.PosStart())
	require.NoError(t, err)

	// Two assigned sequences, then a wire sequence jumping past them.
	appendLine(t, w, "orders", 0, "a")
	appendLine(t, w, "orders", 0, "b")
	_, err = w.Append(codec.Frame{Stream: "orders", HasStream: true, Seq: 5, HasSeq: true, Payload: []byte("c")})
	require.NoError(t, err)

	var got []stream.SeqNo
	for {
		msg, ok := w.Read(sk, id)
		if !ok {
			break
		}
		got = append(got, msg.Header.Seq)
	}
	assert.Equal(t, []stream.SeqNo{0, 1, 5}, got)

	// A cursor placed inside the gap lands on the first message past it.
	id2, err := w.OpenCursor(sk, stream.PosAt(3))
	require.NoError(t, err)
	msg, ok := w.Read(sk, id2)
	require.True(t, ok)
	assert.Equal(t, stream.SeqNo(5), msg.Header.Seq)
	assert.Equal(t, "c", string(msg.Payload))

	// Assignment continues after the adopted sequence.
	next := appendLine(t, w, "orders", 0, "d")
	assert.Equal(t, stream.SeqNo(6), next.Header.Seq)
	msg, ok = w.Read(sk, id)
	require.True(t, ok)
	assert.Equal(t, stream.SeqNo(6), msg.Header.Seq)
}

func TestWindowEvictsPastCapacity(t *testing.T) {
	w := newWindow(2)
	sk := shardKey{stream: "orders", shard: 0}

	for i := 0; i < 5; i++ {
		appendLine(t, w, "orders", 0, "m")
	}
	assert.Equal(t, 2, w.Depth(sk))

	// Only the two newest survive.
	id, err := w.OpenCursor(sk, stream.PosStart())
	require.NoError(t, err)
	msg, ok := w.Read(sk, id)
	require.True(t, ok)
	assert.Equal(t, stream.SeqNo(3), msg.Header.Seq)
}

func TestWindowNeverEvictsUnderLiveCursor(t *testing.T) {
	w := newWindow(2)
	sk := shardKey{stream: "orders", shard: 0}

	appendLine(t, w, "orders", 0, "m0")
	id, err := w.OpenCursor(sk, stream.PosStart())
	require.NoError(t, err)

	for i := 1; i < 5; i++ {
		appendLine(t, w, "orders", 0, "m")
	}
	// The cursor pins the whole window open.
	assert.Equal(t, 5, w.Depth(sk))

	// Reading releases messages and lets eviction catch up.
	for i := 0; i < 5; i++ {
		msg, ok := w.Read(sk, id)
		require.True(t, ok)
		assert.Equal(t, stream.SeqNo(i), msg.Header.Seq)
	}
	assert.Equal(t, 2, w.Depth(sk))

	// Closing the cursor has the same effect.
	id2, err := w.OpenCursor(sk, stream.PosStart())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		appendLine(t, w, "orders", 0, "m")
	}
	assert.Greater(t, w.Depth(sk), 2)
	w.CloseCursor(sk, id)
	w.CloseCursor(sk, id2)
	appendLine(t, w, "orders", 0, "m")
	assert.Equal(t, 2, w.Depth(sk))
}

func TestWindowSeekPositions(t *testing.T) {
	w := newWindow(0)
	sk := shardKey{stream: "orders", shard: 0}

	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := w.Append(codec.Frame{
			Stream:       "orders",
			HasStream:    true,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			HasTimestamp: true,
			Payload:      []byte{byte('a' + i)},
		})
		require.NoError(t, err)
	}

	t.Run("end waits for the next message", func(t *testing.T) {
		id, err := w.OpenCursor(sk, stream.PosEnd())
		require.NoError(t, err)
		_, ok := w.Read(sk, id)
		assert.False(t, ok)

		appendLine(t, w, "orders", 0, "new")
		msg, ok := w.Read(sk, id)
		require.True(t, ok)
		assert.Equal(t, "new", string(msg.Payload))
	})

	t.Run("at a retained sequence", func(t *testing.T) {
		id, err := w.OpenCursor(sk, stream.PosAt(2))
		require.NoError(t, err)
		msg, ok := w.Read(sk, id)
		require.True(t, ok)
		assert.Equal(t, stream.SeqNo(2), msg.Header.Seq)
	})

	t.Run("beyond the assigned range fails", func(t *testing.T) {
		_, err := w.OpenCursor(sk, stream.PosAt(100))
		require.Error(t, err)
		assert.IsType(t, stream.OffsetOutOfRangeError{}, err)
	})

	t.Run("at a point in time", func(t *testing.T) {
		id, err := w.OpenCursor(sk, stream.PosAtTime(base.Add(90*time.Second)))
		require.NoError(t, err)
		msg, ok := w.Read(sk, id)
		require.True(t, ok)
		assert.Equal(t, stream.SeqNo(2), msg.Header.Seq)
	})

	t.Run("failed seek leaves the cursor in place", func(t *testing.T) {
		id, err := w.OpenCursor(sk, stream.PosAt(1))
		require.NoError(t, err)
		require.Error(t, w.Seek(sk, id, stream.PosAt(100)))
		msg, ok := w.Read(sk, id)
		require.True(t, ok)
		assert.Equal(t, stream.SeqNo(1), msg.Header.Seq)
	})
}

func TestWindowSeekAffectsOnlyOneShard(t *testing.T) {
	w := newWindow(0)
	sk0 := shardKey{stream: "orders", shard: 0}
	sk1 := shardKey{stream: "orders", shard: 1}

	appendLine(t, w, "orders", 0, "s0")
	appendLine(t, w, "orders", 1, "s1")

	id0, err := w.OpenCursor(sk0, stream.PosStart())
	require.NoError(t, err)
	id1, err := w.OpenCursor(sk1, stream.PosStart())
	require.NoError(t, err)

	require.NoError(t, w.Seek(sk0, id0, stream.PosEnd()))

	_, ok := w.Read(sk0, id0)
	assert.False(t, ok)
	msg, ok := w.Read(sk1, id1)
	require.True(t, ok)
	assert.Equal(t, "s1", string(msg.Payload))
}

func TestWindowCloseIsTerminal(t *testing.T) {
	w := newWindow(0)
	appendLine(t, w, "orders", 0, "kept")

	cause := stream.ChannelClosedError{}
	w.Close(cause)

	closed, err := w.Closed()
	assert.True(t, closed)
	assert.Equal(t, cause, err)

	_, err = w.Append(codec.Frame{Stream: "orders", HasStream: true, Payload: []byte("late")})
	require.Error(t, err)
	assert.IsType(t, stream.ChannelClosedError{}, err)

	// Retained history stays readable after close.
	sk := shardKey{stream: "orders", shard: 0}
	id, err := w.OpenCursor(sk, stream.PosStart())
	require.NoError(t, err)
	msg, ok := w.Read(sk, id)
	require.True(t, ok)
	assert.Equal(t, "kept", string(msg.Payload))
}

func TestWindowNotifyOnAppend(t *testing.T) {
	w := newWindow(0)
	ch := w.NotifyCh()

	select {
	case <-ch:
		t.Fatal("notify fired before any append")
	default:
	}

	appendLine(t, w, "orders", 0, "m")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("append did not wake waiters")
	}
}

func TestWindowStartOnEmptyShard(t *testing.T) {
	w := newWindow(0)
	sk := shardKey{stream: "orders", shard: 0}

	// Nothing appended yet: start means "from the first message ever".
	id, err := w.OpenCursor(sk, stream.PosStart())
	require.NoError(t, err)
	_, ok := w.Read(sk, id)
	assert.False(t, ok)

	appendLine(t, w, "orders", 0, "first")
	msg, ok := w.Read(sk, id)
	require.True(t, ok)
	assert.Equal(t, stream.SeqNo(0), msg.Header.Seq)
}
