package bytestream

import (
	"bufio"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/carlocorradini/sea-streamer/internal/codec"
	"github.com/carlocorradini/sea-streamer/internal/logger"
	"github.com/carlocorradini/sea-streamer/internal/metrics"
	"github.com/carlocorradini/sea-streamer/internal/runtime"
	"github.com/carlocorradini/sea-streamer/stream"
)

const (
	// initialScanBuffer and maxScanBuffer bound the line scanner. A line
	// longer than maxScanBuffer fails the channel rather than silently
	// truncating a message.
	initialScanBuffer = 64 * 1024
	maxScanBuffer     = 16 * 1024 * 1024
)

// outRequest is one unit on the serialized outgoing path: either a framed
// line or a flush barrier. Barriers are acknowledged only after every write
// queued before them has reached the sink.
type outRequest struct {
	line    []byte
	barrier chan error
}

// Mux multiplexes logical streams over one byte channel. A background
// reader task decodes incoming lines into the window's per-shard buffers; a
// single writer task owns the outgoing side, so concurrent producer handles
// can never interleave mid-line.
type Mux struct {
	name   string
	medium Medium
	window *window
	out    chan outRequest

	ctx    context.Context
	cancel context.CancelFunc

	pending atomic.Int64

	failOnce sync.Once
	closeErr error

	seqMu  sync.Mutex
	outSeq map[shardKey]stream.SeqNo

	log     zerolog.Logger
	metrics *metrics.StreamerMetrics
}

// NewMux starts the reader and writer tasks over the medium. Either side of
// the medium may be nil for a one-directional channel.
func NewMux(ctx context.Context, name string, medium Medium, win *window, sendQueueSize int, m *metrics.StreamerMetrics) *Mux {
	if sendQueueSize <= 0 {
		sendQueueSize = stream.DefaultSendQueueSize
	}
	mctx, cancel := context.WithCancel(ctx)
	mux := &Mux{
		name:    name,
		medium:  medium,
		window:  win,
		out:     make(chan outRequest, sendQueueSize),
		ctx:     mctx,
		cancel:  cancel,
		outSeq:  make(map[shardKey]stream.SeqNo),
		log:     logger.WithComponent("mux"),
		metrics: m,
	}
	if medium.Reader != nil {
		runtime.Spawn("mux-reader", mux.readLoop)
	}
	if medium.Writer != nil {
		runtime.Spawn("mux-writer", mux.writeLoop)
	}
	return mux
}

// Window exposes the offset manager fed by this mux.
func (m *Mux) Window() *window {
	return m.window
}

// Name is the backend variant name, used in logs and metrics.
func (m *Mux) Name() string {
	return m.name
}

// Send frames one payload and queues it on the outgoing channel, blocking
// while the channel lacks buffer space. Sequence assignment and enqueueing
// happen under one lock, so the wire carries sequences in order.
func (m *Mux) Send(ctx context.Context, key stream.StreamKey, shard stream.ShardID, payload []byte) (stream.Receipt, error) {
	if err := m.ctx.Err(); err != nil {
		return stream.Receipt{}, stream.ChannelClosedError{Err: m.closeErr}
	}
	if !stream.ValidPayload(payload) {
		return stream.Receipt{}, stream.MalformedPayloadError{Line: string(payload), Reason: "payload is not valid UTF-8"}
	}

	m.seqMu.Lock()
	sk := shardKey{stream: key, shard: shard}
	seq := m.outSeq[sk]

	msg := stream.NewMessage(key, shard, seq, payload)
	line, err := codec.Encode(msg)
	if err != nil {
		m.seqMu.Unlock()
		return stream.Receipt{}, err
	}

	m.pending.Add(1)
	select {
	case m.out <- outRequest{line: []byte(line)}:
		m.outSeq[sk] = seq + 1
		m.seqMu.Unlock()
	case <-m.ctx.Done():
		m.pending.Add(-1)
		m.seqMu.Unlock()
		return stream.Receipt{}, stream.ChannelClosedError{Err: m.closeErr}
	case <-ctx.Done():
		m.pending.Add(-1)
		m.seqMu.Unlock()
		return stream.Receipt{}, ctx.Err()
	}

	m.metrics.RecordSend(m.name, key, shard)
	return stream.Receipt{
		Stream:    key,
		Shard:     shard,
		Seq:       seq,
		Timestamp: msg.Header.Timestamp,
	}, nil
}

// Flush waits until every send queued before it has reached the sink. On
// deadline it returns a TimeoutError and leaves queued sends in place.
func (m *Mux) Flush(ctx context.Context, timeout time.Duration) error {
	if m.pending.Load() == 0 {
		if err := m.ctx.Err(); err != nil {
			return stream.ChannelClosedError{Err: m.closeErr}
		}
		return nil
	}

	start := time.Now()
	defer func() {
		m.metrics.ObserveFlush(m.name, time.Since(start))
	}()

	_, err := runtime.Timeout(ctx, "flush", timeout, func(ctx context.Context) (struct{}, error) {
		barrier := make(chan error, 1)
		select {
		case m.out <- outRequest{barrier: barrier}:
		case <-m.ctx.Done():
			return struct{}{}, stream.ChannelClosedError{Err: m.closeErr}
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
		select {
		case err := <-barrier:
			return struct{}{}, err
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})
	if err == context.DeadlineExceeded {
		return stream.TimeoutError{Op: "flush", Timeout: timeout}
	}
	return err
}

// Close tears the mux down: the window turns terminal, pending barriers are
// failed, and the medium is closed.
func (m *Mux) Close(err error) error {
	m.fail(err)
	return m.medium.Close()
}

// fail records the first terminal error, closes the window, and cancels both
// background tasks. Pending and future sends and polls observe
// ChannelClosedError.
func (m *Mux) fail(err error) {
	m.failOnce.Do(func() {
		m.closeErr = err
		m.window.Close(stream.ChannelClosedError{Err: err})
		m.cancel()
	})
}

// readLoop decodes incoming lines and appends them to the window. Decode
// failures are local: the offending line is logged and skipped, and the
// reader continues. Only a source error or end of input is terminal.
func (m *Mux) readLoop() {
	scanner := bufio.NewScanner(m.medium.Reader)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxScanBuffer)

	for scanner.Scan() {
		line := scanner.Text()
		frame, err := codec.Decode(line)
		if err != nil {
			m.log.Warn().Err(err).Str("line", line).Msg("Skipping undecodable line")
			m.metrics.RecordDecodeError(m.name)
			continue
		}
		msg, err := m.window.Append(frame)
		if err != nil {
			return
		}
		m.metrics.RecordReceive(m.name, msg.Header.Stream, msg.Header.Shard)
		m.metrics.SetBufferDepth(msg.Header.Stream, msg.Header.Shard, m.window.Depth(shardKey{stream: msg.Header.Stream, shard: msg.Header.Shard}))
	}

	err := scanner.Err()
	if err != nil {
		m.log.Error().Err(err).Msg("Byte source failed")
	}
	m.fail(err)
}

// writeLoop is the single writer: it drains the outgoing queue, writing one
// whole line per call to the sink. On a sink error the whole channel fails.
func (m *Mux) writeLoop() {
	for {
		select {
		case req := <-m.out:
			if req.barrier != nil {
				req.barrier <- nil
				continue
			}
			if err := m.writeLine(req.line); err != nil {
				m.pending.Add(-1)
				m.log.Error().Err(err).Msg("Byte sink failed")
				m.fail(err)
				m.drain()
				return
			}
			m.pending.Add(-1)
		case <-m.ctx.Done():
			m.drain()
			return
		}
	}
}

func (m *Mux) writeLine(line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := m.medium.Writer.Write(buf)
	return err
}

// drain fails every queued barrier so no flusher waits forever.
func (m *Mux) drain() {
	for {
		select {
		case req := <-m.out:
			if req.barrier != nil {
				req.barrier <- stream.ChannelClosedError{Err: m.closeErr}
			} else {
				m.pending.Add(-1)
			}
		default:
			return
		}
	}
}
