package test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TempDir creates a temporary directory for testing and returns its path.
// The directory is automatically cleaned up after the test.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sea-streamer-test-*")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir) // Ignore cleanup errors in tests
	})
	return dir
}

// TempFile creates a temporary file for testing and returns its path.
// The file is automatically cleaned up after the test.
func TempFile(t *testing.T, dir, pattern string) string {
	t.Helper()
	if dir == "" {
		dir = TempDir(t)
	}
	file, err := os.CreateTemp(dir, pattern)
	require.NoError(t, err)
	_ = file.Close() // Ignore close error
	t.Cleanup(func() {
		_ = os.Remove(file.Name()) // Ignore cleanup errors in tests
	})
	return file.Name()
}

// AssertFileExists checks if a file exists and fails the test if it doesn't.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.NoError(t, err, "file should exist: %s", path)
}

// AssertFileNotExists checks if a file doesn't exist and fails the test if it does.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.Error(t, err, "file should not exist: %s", path)
	require.True(t, os.IsNotExist(err), "expected file not to exist: %s", path)
}
