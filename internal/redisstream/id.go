package redisstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carlocorradini/sea-streamer/stream"
)

// Redis stream entry IDs are "<ms>-<sub>" pairs. They pack into one SeqNo
// with the millisecond timestamp in the high 48 bits and the sub-sequence in
// the low 16, which keeps sequences totally ordered and round-trippable as
// long as a single millisecond holds fewer than 65536 entries.

const subSeqBits = 16

func seqFromID(id string) (stream.SeqNo, time.Time, error) {
	ms, sub, ok := strings.Cut(id, "-")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redisstream: malformed entry id %q", id)
	}
	msN, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redisstream: malformed entry id %q: %w", id, err)
	}
	subN, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redisstream: malformed entry id %q: %w", id, err)
	}
	seq := stream.SeqNo(msN<<subSeqBits | subN&(1<<subSeqBits-1))
	ts := time.UnixMilli(int64(msN)).UTC()
	return seq, ts, nil
}

func idFromSeq(seq stream.SeqNo) string {
	return strconv.FormatUint(uint64(seq)>>subSeqBits, 10) + "-" + strconv.FormatUint(uint64(seq)&(1<<subSeqBits-1), 10)
}

// idFromTime yields the ID to start an XREAD at so delivery begins with the
// first entry stamped at or after t. XREAD is exclusive, so it is the
// greatest possible ID of the preceding millisecond.
func idFromTime(t time.Time) string {
	ms := t.UnixMilli()
	if ms <= 0 {
		return "0"
	}
	return strconv.FormatInt(ms-1, 10) + "-18446744073709551615"
}
