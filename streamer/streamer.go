// Package streamer is the backend-agnostic entry point: it parses a
// connection string, dials the backend the scheme names, and hands out
// producer and consumer handles with one API regardless of what carries the
// bytes underneath.
package streamer

import (
	"context"

	"github.com/carlocorradini/sea-streamer/internal/bytestream"
	"github.com/carlocorradini/sea-streamer/internal/metrics"
	"github.com/carlocorradini/sea-streamer/internal/redisstream"
	"github.com/carlocorradini/sea-streamer/stream"
)

// Streamer is one open connection to a backend.
type Streamer struct {
	backend stream.Backend
	uri     URI
	cancel  context.CancelFunc
}

// Connect parses the connection string and dials the matching backend.
// Metrics may be nil.
func Connect(ctx context.Context, raw string, opts stream.ConnectOptions, m *metrics.StreamerMetrics) (*Streamer, error) {
	uri, err := ParseURI(raw)
	if err != nil {
		return nil, err
	}

	s := &Streamer{uri: uri}
	switch uri.Scheme {
	case SchemeStdio:
		s.backend, err = bytestream.Connect(ctx, "stdio", bytestream.StdioMedium(), opts, m)

	case SchemePipe:
		s.backend, err = bytestream.Connect(ctx, "pipe", bytestream.PipeMedium(), opts, m)

	case SchemeFile:
		// The tail reader outlives ctx and stops at Disconnect.
		fctx, fcancel := context.WithCancel(context.WithoutCancel(ctx))
		var medium bytestream.Medium
		medium, err = bytestream.FileMedium(fctx, uri.Path)
		if err != nil {
			fcancel()
			return nil, err
		}
		s.cancel = fcancel
		s.backend, err = bytestream.Connect(ctx, "file", medium, opts, m)
		if err != nil {
			fcancel()
		}

	case SchemeRedis, SchemeTLS:
		s.backend, err = redisstream.Connect(ctx, uri.Addr, opts, m)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Backend names the connected backend variant.
func (s *Streamer) Backend() string {
	return s.backend.Name()
}

// URI returns the parsed connection string.
func (s *Streamer) URI() URI {
	return s.uri
}

// CreateProducer anchors a new producer to key.
func (s *Streamer) CreateProducer(key stream.StreamKey, opts ...stream.ProducerOption) (*Producer, error) {
	p, err := s.backend.CreateProducer(key, stream.NewProducerOptions(opts...))
	if err != nil {
		return nil, err
	}
	return &Producer{inner: p, anchor: key}, nil
}

// CreateConsumer subscribes a new consumer to the given streams. With no
// keys the subscription defaults to the streams named in the connection
// string's path.
func (s *Streamer) CreateConsumer(keys []stream.StreamKey, opts ...stream.ConsumerOption) (*Consumer, error) {
	if len(keys) == 0 {
		keys = s.uri.Streams
	}
	c, err := s.backend.CreateConsumer(keys, stream.NewConsumerOptions(opts...))
	if err != nil {
		return nil, err
	}
	return &Consumer{inner: c, streams: keys}, nil
}

// Disconnect flushes producers, closes consumers, and tears the backend
// down. Handles created from this streamer fail afterwards.
func (s *Streamer) Disconnect(ctx context.Context) error {
	err := s.backend.Disconnect(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	return err
}
