package streamer

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/carlocorradini/sea-streamer/stream"
)

// Backend schemes. The set is closed: a scheme outside it fails with
// UnknownSchemeError at parse time rather than at first use.
const (
	SchemeStdio = "stdio"
	SchemeFile  = "file"
	SchemePipe  = "pipe"
	SchemeRedis = "redis"
	SchemeTLS   = "rediss"
)

// URI is a parsed connection string of the form
// <backend>://<host[:port]>/<stream_key[,stream_key...]>. The scheme picks
// the backend; Path is the filesystem path for file connections; Streams
// holds the stream keys named by the path, used as the default consumer
// subscription; Addr is the dialable form with stream keys stripped, for
// backends that parse their own URL; Raw is the original string.
type URI struct {
	Scheme  string
	Path    string
	Streams []stream.StreamKey
	Addr    string
	Raw     string
}

// ParseURI validates the connection string against the known schemes.
func ParseURI(raw string) (URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URI{}, stream.ConnectionStringError{URI: raw, Reason: err.Error()}
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case SchemeStdio, SchemePipe:
		// No host means the process's standard streams; anything after the
		// scheme names stream keys.
		rest := u.Opaque
		if rest == "" {
			rest = u.Host + u.Path
		}
		streams, err := parseStreamList(raw, rest)
		if err != nil {
			return URI{}, err
		}
		return URI{Scheme: scheme, Streams: streams, Addr: raw, Raw: raw}, nil

	case SchemeFile:
		// The whole path addresses the file; stream keys cannot be told apart
		// from path segments, so file subscriptions are always explicit.
		path := u.Path
		if u.Opaque != "" {
			path = u.Opaque
		}
		if u.Host != "" && u.Host != "localhost" {
			// file://relative/path parses the first segment as a host.
			path = u.Host + path
		}
		if path == "" {
			return URI{}, stream.ConnectionStringError{URI: raw, Reason: "file connection string has no path"}
		}
		return URI{Scheme: scheme, Path: path, Addr: raw, Raw: raw}, nil

	case SchemeRedis, SchemeTLS:
		if u.Host == "" {
			return URI{}, stream.ConnectionStringError{URI: raw, Reason: "redis connection string has no host"}
		}
		addr := raw
		var streams []stream.StreamKey
		rest := strings.Trim(u.Path, "/")
		// A purely numeric path is the database index, not a stream key; it
		// stays in the dial URL.
		if _, dbErr := strconv.Atoi(rest); rest != "" && dbErr != nil {
			streams, err = parseStreamList(raw, rest)
			if err != nil {
				return URI{}, err
			}
			stripped := *u
			stripped.Path = ""
			addr = stripped.String()
		}
		return URI{Scheme: scheme, Streams: streams, Addr: addr, Raw: raw}, nil

	default:
		return URI{}, stream.UnknownSchemeError{Scheme: u.Scheme}
	}
}

// parseStreamList splits a path segment into validated stream keys.
func parseStreamList(raw, path string) ([]stream.StreamKey, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, ",")
	keys := make([]stream.StreamKey, 0, len(parts))
	for _, part := range parts {
		key := stream.StreamKey(part)
		if err := key.Validate(); err != nil {
			return nil, stream.ConnectionStringError{URI: raw, Reason: err.Error()}
		}
		keys = append(keys, key)
	}
	return keys, nil
}
