package test_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/internal/test"
)

// TestExample demonstrates basic test utilities usage
func TestExample(t *testing.T) {
	// Create a temporary directory
	dir := test.TempDir(t)
	assert.DirExists(t, dir)

	// Create a temporary file
	file := test.TempFile(t, dir, "test-*.log")
	test.AssertFileExists(t, file)

	// Verify the file path is correct
	require.True(t, filepath.IsAbs(file))
}
