package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamKeyValidate(t *testing.T) {
	valid := []string{"orders", "my-stream", "a.b_c-d", "123", "broadcast", strings.Repeat("k", 249)}
	for _, key := range valid {
		assert.NoError(t, StreamKey(key).Validate(), "key %q", key)
	}

	invalid := []string{"", "has space", "pipe|char", "slash/char", strings.Repeat("k", 250), "emojié"}
	for _, key := range invalid {
		err := StreamKey(key).Validate()
		require.Error(t, err, "key %q", key)
		assert.IsType(t, InvalidStreamKeyError{}, err)
	}
}

func TestBroadcastKey(t *testing.T) {
	assert.True(t, BroadcastKey.IsBroadcast())
	assert.False(t, StreamKey("orders").IsBroadcast())
	assert.NoError(t, BroadcastKey.Validate())
}

func TestNewMessageStampsUTCMicroseconds(t *testing.T) {
	msg := NewMessage("orders", 1, 2, []byte("x"))

	assert.Equal(t, time.UTC, msg.Header.Timestamp.Location())
	assert.Zero(t, msg.Header.Timestamp.Nanosecond()%1000, "timestamp truncated to microseconds")
	assert.Equal(t, StreamKey("orders"), msg.Header.Stream)
	assert.Equal(t, ShardID(1), msg.Header.Shard)
	assert.Equal(t, SeqNo(2), msg.Header.Seq)
}

func TestValidPayload(t *testing.T) {
	assert.True(t, ValidPayload([]byte("hello")))
	assert.True(t, ValidPayload([]byte("")))
	assert.False(t, ValidPayload([]byte{0xff, 0xfe}))
}

func TestSeqPosString(t *testing.T) {
	assert.Equal(t, "start", PosStart().String())
	assert.Equal(t, "end", PosEnd().String())
	assert.Equal(t, "at(9)", PosAt(9).String())
	assert.Contains(t, PosAtTime(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)).String(), "2022-01-01")
}
