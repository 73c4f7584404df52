package redisstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/stream"
)

func TestSeqFromID(t *testing.T) {
	seq, ts, err := seqFromID("1640995200000-3")
	require.NoError(t, err)
	assert.Equal(t, stream.SeqNo(1640995200000<<subSeqBits|3), seq)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), ts)
}

func TestIDRoundTrip(t *testing.T) {
	for _, id := range []string{"0-0", "1640995200000-3", "1-65535"} {
		seq, _, err := seqFromID(id)
		require.NoError(t, err)
		assert.Equal(t, id, idFromSeq(seq))
	}
}

func TestSeqOrderMatchesIDOrder(t *testing.T) {
	a, _, err := seqFromID("1000-5")
	require.NoError(t, err)
	b, _, err := seqFromID("1000-6")
	require.NoError(t, err)
	c, _, err := seqFromID("1001-0")
	require.NoError(t, err)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestSeqFromIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "123", "a-b", "1-", "-1"} {
		_, _, err := seqFromID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestIDFromTime(t *testing.T) {
	// The exclusive-read start just before the requested millisecond.
	assert.Equal(t, "1640995199999-18446744073709551615",
		idFromTime(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "0", idFromTime(time.Time{}))
}
