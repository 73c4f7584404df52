package streamer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/stream"
)

func setupPipeStreamer(t *testing.T) *Streamer {
	t.Helper()

	s, err := Connect(context.Background(), "pipe://", stream.NewConnectOptions(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestConnectRejectsUnknownScheme(t *testing.T) {
	_, err := Connect(context.Background(), "kafka://localhost:9092", stream.NewConnectOptions(), nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &stream.UnknownSchemeError{})
}

func TestPipeRoundTrip(t *testing.T) {
	s := setupPipeStreamer(t)
	assert.Equal(t, "pipe", s.Backend())

	consumer, err := s.CreateConsumer([]stream.StreamKey{"orders"})
	require.NoError(t, err)
	defer consumer.Close(context.Background())

	producer, err := s.CreateProducer("orders")
	require.NoError(t, err)
	assert.Equal(t, stream.StreamKey("orders"), producer.Anchor())

	receipt, err := producer.SendString(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, stream.StreamKey("orders"), receipt.Stream)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := consumer.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, stream.StreamKey("orders"), msg.Header.Stream)
	assert.Equal(t, "hello", string(msg.Payload))

	require.NoError(t, producer.Flush(context.Background(), time.Second))
}

func TestConsumerDefaultsToStreamsFromURI(t *testing.T) {
	s, err := Connect(context.Background(), "pipe:///orders", stream.NewConnectOptions(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })

	consumer, err := s.CreateConsumer(nil)
	require.NoError(t, err)
	defer consumer.Close(context.Background())
	assert.Equal(t, []stream.StreamKey{"orders"}, consumer.Streams())

	producer, err := s.CreateProducer("orders")
	require.NoError(t, err)
	_, err = producer.Send(context.Background(), []byte("routed"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := consumer.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "routed", string(msg.Payload))
}

func TestDisconnectTurnsHandlesTerminal(t *testing.T) {
	s, err := Connect(context.Background(), "pipe://", stream.NewConnectOptions(), nil)
	require.NoError(t, err)

	producer, err := s.CreateProducer("orders")
	require.NoError(t, err)

	require.NoError(t, s.Disconnect(context.Background()))

	_, err = producer.Send(context.Background(), []byte("late"))
	require.Error(t, err)
	assert.ErrorAs(t, err, &stream.ChannelClosedError{})
}
