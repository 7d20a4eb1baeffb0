// Package stdout writes messages to a stream, standard output by default.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/output"
)

// Sink writes each message verbatim to w. Writes are serialized so
// messages from different pipelines never interleave.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a sink writing to w, or os.Stdout when w is nil
func New(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{w: w}
}

// Factory returns an output.Factory that shares one sink over w. The
// target is ignored.
func Factory(w io.Writer) output.Factory {
	s := New(w)
	return func(string, bool) (output.Sink, error) {
		return s, nil
	}
}

// Deliver writes data
func (s *Sink) Deliver(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.w.Write(data)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrIO, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: %w", errors.ErrIO, io.ErrShortWrite)
	}
	return nil
}
