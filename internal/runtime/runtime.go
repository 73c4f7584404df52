// Package runtime is the scheduling shim the core is written against. It
// exposes exactly three primitives: spawn a task, sleep, and bound a wait
// with a timeout. Backends never reach for goroutine or timer APIs directly,
// which keeps every suspension point of the core in one place.
package runtime

import (
	"context"
	"time"

	"github.com/carlocorradini/sea-streamer/internal/logger"
	"github.com/carlocorradini/sea-streamer/stream"
)

// Spawn starts a named background task. A panic in the task is logged and
// contained; it never takes the process down.
func Spawn(name string, task func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log := logger.WithComponent("runtime")
				log.Error().
					Str("task", name).
					Interface("panic", r).
					Msg("Background task panicked")
			}
		}()
		task()
	}()
}

// Sleep pauses the calling task for d, waking early if ctx is cancelled.
// It reports whether the full duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Timeout runs fn with a deadline of d. When the deadline elapses first, the
// result is discarded and a TimeoutError naming op is returned. A
// non-positive d still gives fn one immediate chance to complete.
func Timeout[T any](ctx context.Context, op string, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d < 0 {
		d = 0
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	Spawn(op, func() {
		v, err := fn(tctx)
		done <- result{value: v, err: err}
	})

	select {
	case res := <-done:
		return res.value, res.err
	case <-tctx.Done():
		select {
		case res := <-done:
			// fn finished in the same instant; prefer its result.
			return res.value, res.err
		default:
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, stream.TimeoutError{Op: op, Timeout: d}
	}
}
