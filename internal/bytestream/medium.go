package bytestream

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/carlocorradini/sea-streamer/internal/runtime"
)

// tailPollInterval is how long the file reader sleeps at end of file before
// probing for appended data.
const tailPollInterval = 50 * time.Millisecond

// Medium is the byte channel a connection runs over. Either side may be nil:
// a write-only file connection has no Reader, a read-only one no Writer.
type Medium struct {
	Reader io.ReadCloser
	Writer io.WriteCloser
}

// Close closes both ends.
func (m Medium) Close() error {
	var first error
	if m.Reader != nil {
		if err := m.Reader.Close(); err != nil {
			first = err
		}
	}
	if m.Writer != nil {
		if err := m.Writer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// nopCloser wraps a writer we do not own, such as os.Stdout.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type nopReadCloser struct {
	io.Reader
}

func (nopReadCloser) Close() error { return nil }

// StdioMedium uses the process's standard input and output. The process does
// not own either descriptor, so Close leaves them open.
func StdioMedium() Medium {
	return Medium{
		Reader: nopReadCloser{os.Stdin},
		Writer: nopWriteCloser{os.Stdout},
	}
}

// PipeMedium is an in-process loopback: everything written to the connection
// comes back on its reader. Used for tests and same-process pipelines.
func PipeMedium() Medium {
	r, w := io.Pipe()
	return Medium{Reader: r, Writer: w}
}

// FileMedium opens path for appending and tails it for reading. The reader
// never reports EOF while ctx is live; it waits for more data instead, which
// is what makes a plain file behave like a stream.
func FileMedium(ctx context.Context, path string) (Medium, error) {
	w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Medium{}, err
	}
	r, err := os.Open(path)
	if err != nil {
		_ = w.Close()
		return Medium{}, err
	}
	return Medium{
		Reader: &tailReader{ctx: ctx, f: r},
		Writer: w,
	}, nil
}

// tailReader reads a file like a pipe: end of file means "not yet", not
// "done". It gives up only when its context is cancelled or the file errors.
type tailReader struct {
	ctx context.Context
	f   *os.File
}

func (t *tailReader) Read(p []byte) (int, error) {
	for {
		n, err := t.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if t.ctx.Err() != nil {
			return 0, io.EOF
		}
		if !runtime.Sleep(t.ctx, tailPollInterval) {
			return 0, io.EOF
		}
	}
}

func (t *tailReader) Close() error {
	return t.f.Close()
}
