package stream

import (
	"fmt"
	"time"
)

// MalformedMetaError indicates a line whose bracketed meta block could not be
// parsed. The whole line is rejected, never reinterpreted as payload.
type MalformedMetaError struct {
	Line   string
	Reason string
}

func (e MalformedMetaError) Error() string {
	return fmt.Sprintf("malformed meta in line %q: %s", e.Line, e.Reason)
}

// MalformedPayloadError indicates a payload that is not valid text.
type MalformedPayloadError struct {
	Line   string
	Reason string
}

func (e MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload in line %q: %s", e.Line, e.Reason)
}

// ChannelClosedError indicates the underlying byte channel or broker session
// reached end of life. It is terminal for the connection: all pending and
// future sends and polls fail with it.
type ChannelClosedError struct {
	Err error
}

func (e ChannelClosedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("channel closed: %v", e.Err)
	}
	return "channel closed"
}

func (e ChannelClosedError) Unwrap() error {
	return e.Err
}

// OffsetOutOfRangeError indicates a seek target that is no longer retained
// or was never assigned. It affects only the requested shard.
type OffsetOutOfRangeError struct {
	Stream    StreamKey
	Shard     ShardID
	Requested SeqPos
}

func (e OffsetOutOfRangeError) Error() string {
	return fmt.Sprintf("offset out of range: stream %s shard %d position %s", e.Stream, e.Shard, e.Requested)
}

// TimeoutError indicates a flush or bounded wait exceeded its deadline. The
// caller may retry; queued work is not lost.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// UnsupportedOptionError indicates a backend-specific option was used against
// an incompatible backend. Surfaced at producer/consumer creation, never
// silently dropped.
type UnsupportedOptionError struct {
	Backend string
	Option  string
}

func (e UnsupportedOptionError) Error() string {
	return fmt.Sprintf("option %s is not supported by the %s backend", e.Option, e.Backend)
}

// InvalidStreamKeyError indicates a stream key outside the valid pattern
// [a-zA-Z0-9._-]{1,249}.
type InvalidStreamKeyError struct {
	Key string
}

func (e InvalidStreamKeyError) Error() string {
	return fmt.Sprintf("invalid stream key %q: valid pattern is [a-zA-Z0-9._-]{1,249}", e.Key)
}

// AlreadyAnchoredError indicates a send addressed to a stream other than the
// one the producer was anchored to at creation.
type AlreadyAnchoredError struct {
	Anchored  StreamKey
	Requested StreamKey
}

func (e AlreadyAnchoredError) Error() string {
	return fmt.Sprintf("producer is anchored to stream %s, cannot send to %s", e.Anchored, e.Requested)
}

// ConnectionStringError indicates a connection string that parsed to a known
// scheme but is otherwise unusable.
type ConnectionStringError struct {
	URI    string
	Reason string
}

func (e ConnectionStringError) Error() string {
	return fmt.Sprintf("bad connection string %q: %s", e.URI, e.Reason)
}

// UnknownSchemeError indicates a connection string whose scheme matches no
// backend variant.
type UnknownSchemeError struct {
	Scheme string
}

func (e UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown backend scheme %q", e.Scheme)
}

// ConsumerGroupRequiredError indicates an operation that only makes sense for
// a consumer in a group, such as commit on the broker backend.
type ConsumerGroupRequiredError struct {
	Op string
}

func (e ConsumerGroupRequiredError) Error() string {
	return fmt.Sprintf("%s requires a consumer group", e.Op)
}

// ConsumerClosedError indicates an operation on a consumer that has been
// closed or cancelled.
type ConsumerClosedError struct{}

func (e ConsumerClosedError) Error() string {
	return "consumer is closed"
}
