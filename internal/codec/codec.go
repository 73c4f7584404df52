// Package codec implements the line-oriented wire format of the byte-stream
// backend. One message per newline-terminated line:
//
//	["[" meta "]" ] payload
//	meta := timestamp [ "|" stream_key ] [ "|" sequence ] [ "|" shard ]
//
// Decode is total over line input: every line yields a Frame or a typed
// error, never a panic.
package codec

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/carlocorradini/sea-streamer/stream"
)

// timestampLayouts are tried in order when parsing the first meta token.
// The wire format is RFC3339-like with optional fractional seconds; a zone
// suffix is accepted but not emitted.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
}

// Frame is a decoded line. Missing meta fields are reported through the Has
// flags so the multiplexer can apply defaults: absent stream key means the
// broadcast key, absent sequence means "assign next", absent shard means
// shard zero.
type Frame struct {
	Stream    stream.StreamKey
	Shard     stream.ShardID
	Seq       stream.SeqNo
	Timestamp time.Time

	HasStream    bool
	HasSeq       bool
	HasShard     bool
	HasTimestamp bool

	Payload []byte
}

// Defaulted returns the frame's stream key, falling back to the broadcast
// key when the wire carried none.
func (f Frame) Defaulted() stream.StreamKey {
	if f.HasStream {
		return f.Stream
	}
	return stream.BroadcastKey
}

// Encode renders a message as one line of text, without the trailing
// newline. Payloads containing a newline cannot be framed and are rejected.
func Encode(m stream.Message) (string, error) {
	if !stream.ValidPayload(m.Payload) {
		return "", stream.MalformedPayloadError{Line: string(m.Payload), Reason: "payload is not valid UTF-8"}
	}
	if strings.ContainsRune(string(m.Payload), '\n') {
		return "", stream.MalformedPayloadError{Line: string(m.Payload), Reason: "payload contains a newline"}
	}

	var b strings.Builder
	b.Grow(len(m.Payload) + 64)
	b.WriteByte('[')
	b.WriteString(m.Header.Timestamp.UTC().Format(stream.TimestampFormat))
	b.WriteString(" | ")
	b.WriteString(string(m.Header.Stream))
	b.WriteString(" | ")
	b.WriteString(strconv.FormatUint(uint64(m.Header.Seq), 10))
	b.WriteString(" | ")
	b.WriteString(strconv.FormatUint(uint64(m.Header.Shard), 10))
	b.WriteString("] ")
	b.Write(m.Payload)
	return b.String(), nil
}

// Decode parses one line. The bracket block is optional; a line without one
// is all payload, addressed to the broadcast key.
func Decode(line string) (Frame, error) {
	var f Frame

	rest := line
	if strings.HasPrefix(line, "[") {
		end := strings.IndexByte(line, ']')
		if end < 0 {
			return Frame{}, stream.MalformedMetaError{Line: line, Reason: "unterminated meta block"}
		}
		meta := line[1:end]
		var err error
		f, err = parseMeta(line, meta)
		if err != nil {
			return Frame{}, err
		}
		rest = line[end+1:]
		// Exactly one leading space separates meta from payload.
		rest = strings.TrimPrefix(rest, " ")
	}

	if !utf8.ValidString(rest) {
		return Frame{}, stream.MalformedPayloadError{Line: line, Reason: "payload is not valid UTF-8"}
	}
	f.Payload = []byte(rest)
	return f, nil
}

// parseMeta parses the inside of the bracket block. The first token is
// tried as a timestamp first; if that fails it may still be a bare stream
// key. Anything else rejects the whole line.
func parseMeta(line, meta string) (Frame, error) {
	var f Frame

	tokens := strings.Split(meta, "|")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}
	if len(tokens) == 1 && tokens[0] == "" {
		return Frame{}, stream.MalformedMetaError{Line: line, Reason: "empty meta block"}
	}
	if len(tokens) > 4 {
		return Frame{}, stream.MalformedMetaError{Line: line, Reason: "too many meta fields"}
	}

	first := tokens[0]
	if ts, ok := parseTimestamp(first); ok {
		f.Timestamp = ts
		f.HasTimestamp = true
		tokens = tokens[1:]
	} else if key := stream.StreamKey(first); key.Validate() == nil {
		f.Stream = key
		f.HasStream = true
		tokens = tokens[1:]
	} else {
		return Frame{}, stream.MalformedMetaError{Line: line, Reason: "first meta field is neither a timestamp nor a stream key"}
	}

	for _, tok := range tokens {
		switch {
		case isNumeric(tok):
			n, err := strconv.ParseUint(tok, 10, 64)
			if err != nil {
				return Frame{}, stream.MalformedMetaError{Line: line, Reason: "numeric meta field out of range"}
			}
			if !f.HasSeq {
				f.Seq = stream.SeqNo(n)
				f.HasSeq = true
			} else if !f.HasShard {
				if n > uint64(^uint32(0)) {
					return Frame{}, stream.MalformedMetaError{Line: line, Reason: "shard id out of range"}
				}
				f.Shard = stream.ShardID(n)
				f.HasShard = true
			} else {
				return Frame{}, stream.MalformedMetaError{Line: line, Reason: "too many numeric meta fields"}
			}
		case !f.HasStream && !f.HasSeq && stream.StreamKey(tok).Validate() == nil:
			f.Stream = stream.StreamKey(tok)
			f.HasStream = true
		default:
			return Frame{}, stream.MalformedMetaError{Line: line, Reason: "unrecognized meta field " + strconv.Quote(tok)}
		}
	}

	return f, nil
}

// parseTimestamp attempts the known wire layouts. Naive timestamps are
// interpreted as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
