// Package stream defines the value types, options, and backend contract
// shared by every transport implementation. It has no dependencies on the
// backends themselves; the streamer package wires the two together.
package stream

import (
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	// BroadcastKey is the reserved stream key for messages addressed to every
	// consumer on a connection, regardless of subscription or group
	// assignment.
	BroadcastKey = StreamKey("broadcast")

	// ZeroShard is the shard messages land on when the wire carries no shard.
	ZeroShard = ShardID(0)

	// TimestampFormat is the wire timestamp layout. No zone; UTC implied.
	TimestampFormat = "2006-01-02T15:04:05.000000"
)

// streamKeyPattern is the set of valid stream key names.
var streamKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,249}$`)

// StreamKey identifies a stream within one backend connection.
type StreamKey string

// Validate checks the key against the allowed pattern.
func (k StreamKey) Validate() error {
	if !streamKeyPattern.MatchString(string(k)) {
		return InvalidStreamKeyError{Key: string(k)}
	}
	return nil
}

// IsBroadcast reports whether the key is the reserved broadcast key.
func (k StreamKey) IsBroadcast() bool {
	return k == BroadcastKey
}

// ShardID identifies an ordered sub-partition of a stream. Shard numbering
// is independent per stream.
type ShardID uint32

// SeqNo is the position of a message within a shard's order. Sequence
// numbers within a shard are strictly increasing and gapless from the
// shard's first retained message.
type SeqNo uint64

// MessageHeader carries everything about a message except its payload.
type MessageHeader struct {
	Stream    StreamKey
	Shard     ShardID
	Seq       SeqNo
	Timestamp time.Time
}

// Message is an immutable payload plus header. Treat it as a value; the
// payload must be valid UTF-8 text.
type Message struct {
	Header  MessageHeader
	Payload []byte
}

// NewMessage builds a message stamped with the current time.
func NewMessage(stream StreamKey, shard ShardID, seq SeqNo, payload []byte) Message {
	return Message{
		Header: MessageHeader{
			Stream:    stream,
			Shard:     shard,
			Seq:       seq,
			Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		},
		Payload: payload,
	}
}

// PayloadString returns the payload as a string.
func (m Message) PayloadString() string {
	return string(m.Payload)
}

// ValidPayload reports whether the payload is valid text.
func ValidPayload(payload []byte) bool {
	return utf8.Valid(payload)
}

// Receipt is returned by a successful send.
type Receipt struct {
	Stream    StreamKey
	Shard     ShardID
	Seq       SeqNo
	Timestamp time.Time
}

// SeqPosKind tags the variants of SeqPos.
type SeqPosKind int

const (
	// SeqPosStart seeks to the oldest retained message.
	SeqPosStart SeqPosKind = iota
	// SeqPosEnd skips everything buffered and waits for the next message.
	SeqPosEnd
	// SeqPosAt seeks to the first retained message with sequence >= At.
	SeqPosAt
	// SeqPosAtTime seeks to the first retained message with timestamp >= Time.
	SeqPosAtTime
)

// SeqPos is a cursor request into a shard: one of start, end, a specific
// sequence number, or a point in time.
type SeqPos struct {
	Kind SeqPosKind
	At   SeqNo
	Time time.Time
}

// PosStart requests the oldest retained message.
func PosStart() SeqPos { return SeqPos{Kind: SeqPosStart} }

// PosEnd requests "wait for the next new message".
func PosEnd() SeqPos { return SeqPos{Kind: SeqPosEnd} }

// PosAt requests the first message with sequence >= n.
func PosAt(n SeqNo) SeqPos { return SeqPos{Kind: SeqPosAt, At: n} }

// PosAtTime requests the first message with timestamp >= t.
func PosAtTime(t time.Time) SeqPos { return SeqPos{Kind: SeqPosAtTime, Time: t} }

// String renders the position for logs and errors.
func (p SeqPos) String() string {
	switch p.Kind {
	case SeqPosStart:
		return "start"
	case SeqPosEnd:
		return "end"
	case SeqPosAt:
		return "at(" + strconv.FormatUint(uint64(p.At), 10) + ")"
	case SeqPosAtTime:
		return "at-time(" + p.Time.UTC().Format(TimestampFormat) + ")"
	default:
		return "unknown"
	}
}
