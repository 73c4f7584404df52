package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/stream"
)

func TestSpawnContainsPanics(t *testing.T) {
	done := make(chan struct{})
	Spawn("panicky", func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestSleepFullDuration(t *testing.T) {
	start := time.Now()
	elapsed := Sleep(context.Background(), 20*time.Millisecond)
	assert.True(t, elapsed)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleepWakesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	elapsed := Sleep(ctx, 5*time.Second)
	assert.False(t, elapsed)
}

func TestTimeoutReturnsResult(t *testing.T) {
	v, err := Timeout(context.Background(), "fast", time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTimeoutPropagatesError(t *testing.T) {
	want := errors.New("inner failure")
	_, err := Timeout(context.Background(), "failing", time.Second, func(ctx context.Context) (int, error) {
		return 0, want
	})
	assert.ErrorIs(t, err, want)
}

func TestTimeoutExpires(t *testing.T) {
	_, err := Timeout(context.Background(), "slow", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return 0, ctx.Err()
	})
	var timeout stream.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "slow", timeout.Op)
}

func TestTimeoutZeroGivesOneChance(t *testing.T) {
	// A zero timeout still lets an already-satisfied wait succeed.
	v, err := Timeout(context.Background(), "instant", 0, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if err == nil {
		assert.Equal(t, "done", v)
	} else {
		assert.IsType(t, stream.TimeoutError{}, err)
	}
}

func TestTimeoutPrefersParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Timeout(ctx, "cancelled", time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
