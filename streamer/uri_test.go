package streamer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/stream"
)

func TestParseURISchemes(t *testing.T) {
	cases := []struct {
		raw    string
		scheme string
		path   string
	}{
		{"stdio://", SchemeStdio, ""},
		{"pipe://", SchemePipe, ""},
		{"file:///var/log/app.log", SchemeFile, "/var/log/app.log"},
		{"file://relative/app.log", SchemeFile, "relative/app.log"},
		{"file:data.log", SchemeFile, "data.log"},
		{"redis://localhost:6379", SchemeRedis, ""},
		{"rediss://cache.example.com:6380/2", SchemeTLS, ""},
		{"REDIS://localhost:6379", SchemeRedis, ""},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			u, err := ParseURI(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.scheme, u.Scheme)
			assert.Equal(t, tc.path, u.Path)
			assert.Equal(t, tc.raw, u.Raw)
		})
	}
}

func TestParseURIStreamKeys(t *testing.T) {
	cases := []struct {
		raw     string
		streams []stream.StreamKey
		addr    string
	}{
		{"stdio:///orders", []stream.StreamKey{"orders"}, "stdio:///orders"},
		{"stdio://orders,shipments", []stream.StreamKey{"orders", "shipments"}, "stdio://orders,shipments"},
		{"pipe:///jobs", []stream.StreamKey{"jobs"}, "pipe:///jobs"},
		{"redis://localhost:6379/orders", []stream.StreamKey{"orders"}, "redis://localhost:6379"},
		{"redis://localhost/orders,shipments", []stream.StreamKey{"orders", "shipments"}, "redis://localhost"},
		{"redis://localhost:6379/2", nil, "redis://localhost:6379/2"},
		{"rediss://cache.example.com:6380", nil, "rediss://cache.example.com:6380"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			u, err := ParseURI(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.streams, u.Streams)
			assert.Equal(t, tc.addr, u.Addr)
			assert.Equal(t, tc.raw, u.Raw)
		})
	}
}

func TestParseURIRejectsInvalidStreamKey(t *testing.T) {
	for _, raw := range []string{"redis://localhost/bad*key", "stdio:///orders,bad*key"} {
		_, err := ParseURI(raw)
		require.Error(t, err, "uri %q", raw)
		assert.IsType(t, stream.ConnectionStringError{}, err)
	}
}

func TestParseURIUnknownScheme(t *testing.T) {
	for _, raw := range []string{"kafka://broker:9092", "http://example.com", "orders"} {
		_, err := ParseURI(raw)
		require.Error(t, err, "uri %q", raw)
		assert.IsType(t, stream.UnknownSchemeError{}, err)
	}
}

func TestParseURIRejectsIncomplete(t *testing.T) {
	_, err := ParseURI("file://")
	require.Error(t, err)
	assert.IsType(t, stream.ConnectionStringError{}, err)

	_, err = ParseURI("redis://")
	require.Error(t, err)
	assert.IsType(t, stream.ConnectionStringError{}, err)
}
