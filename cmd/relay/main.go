// Command relay consumes messages from one connection and re-sends them on
// another. With a stdio input and a redis output it turns any line-producing
// program into a stream publisher; reversed, it dumps a broker stream to
// stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carlocorradini/sea-streamer/internal/config"
	"github.com/carlocorradini/sea-streamer/internal/logger"
	"github.com/carlocorradini/sea-streamer/internal/metrics"
	"github.com/carlocorradini/sea-streamer/internal/version"
	"github.com/carlocorradini/sea-streamer/stream"
	"github.com/carlocorradini/sea-streamer/streamer"
)

const shutdownFlushTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Rotation:   cfg.Logging.Rotation,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return err
	}
	log := logger.WithComponent("relay")
	log.Info().Str("version", version.Get().Version).Msg("Starting relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sm *metrics.StreamerMetrics
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		sm = metrics.NewStreamerMetrics(collector)
		server := metrics.NewServer(cfg.Metrics.Addr, collector)
		if err := server.Start(ctx); err != nil {
			return err
		}
		defer server.Stop(context.Background())
	}

	input, err := streamer.Connect(ctx, cfg.Relay.Input, connectOptions(cfg, cfg.Relay.Input), sm)
	if err != nil {
		return fmt.Errorf("input %s: %w", cfg.Relay.Input, err)
	}
	defer input.Disconnect(context.Background())

	output, err := streamer.Connect(ctx, cfg.Relay.Output, connectOptions(cfg, cfg.Relay.Output), sm)
	if err != nil {
		return fmt.Errorf("output %s: %w", cfg.Relay.Output, err)
	}
	defer output.Disconnect(context.Background())

	mode, err := cfg.Mode()
	if err != nil {
		return err
	}
	reset, err := cfg.AutoOffsetReset()
	if err != nil {
		return err
	}

	keys := cfg.StreamKeys()
	consumer, err := input.CreateConsumer(keys,
		stream.WithMode(mode),
		stream.WithGroup(cfg.Relay.Group),
		stream.WithAutoOffsetReset(reset),
	)
	if err != nil {
		return err
	}
	defer consumer.Close(context.Background())

	producers := make(map[stream.StreamKey]*streamer.Producer, len(keys))
	for _, key := range keys {
		p, err := output.CreateProducer(key)
		if err != nil {
			return err
		}
		producers[key] = p
	}
	fallback := producers[keys[0]]

	log.Info().
		Str("input", cfg.Relay.Input).
		Str("output", cfg.Relay.Output).
		Strs("streams", cfg.Relay.Streams).
		Str("mode", mode.String()).
		Msg("Relay running")

	relayed, err := pump(ctx, consumer, producers, fallback, mode, log)

	for key, p := range producers {
		if ferr := p.Flush(context.Background(), shutdownFlushTimeout); ferr != nil {
			log.Warn().Err(ferr).Str("stream", string(key)).Msg("Final flush failed")
		}
	}

	log.Info().Uint64("relayed", relayed).Msg("Relay stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pump moves messages until the context is cancelled or the input turns
// terminal. Broadcast deliveries have no matching producer and go through
// the fallback.
func pump(ctx context.Context, consumer *streamer.Consumer, producers map[stream.StreamKey]*streamer.Producer, fallback *streamer.Producer, mode stream.ConsumerMode, log zerolog.Logger) (uint64, error) {
	var relayed uint64
	for {
		msg, err := consumer.Next(ctx)
		if err != nil {
			var closed stream.ChannelClosedError
			if errors.As(err, &closed) {
				// End of input: a finite file or a closed pipe.
				return relayed, nil
			}
			return relayed, err
		}

		producer, ok := producers[msg.Header.Stream]
		if !ok {
			producer = fallback
		}
		if _, err := producer.Send(ctx, msg.Payload); err != nil {
			return relayed, err
		}
		relayed++

		if mode == stream.ModeResumable {
			if err := consumer.Commit(ctx, msg); err != nil {
				log.Warn().Err(err).
					Str("stream", string(msg.Header.Stream)).
					Uint64("seq", uint64(msg.Header.Seq)).
					Msg("Commit failed")
			}
		}
	}
}

// connectOptions scopes byte-stream-only options to byte-stream connection
// strings; broker backends reject them outright.
func connectOptions(cfg *config.Config, raw string) stream.ConnectOptions {
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		return stream.NewConnectOptions()
	}
	return cfg.ConnectOptions()
}
