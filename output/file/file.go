// Package file provides the file sink for writing messages to disk
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/output"
)

// Sink writes messages to one file. In append mode every message is added
// to the end; otherwise each message replaces the file contents.
type Sink struct {
	path   string
	append bool
	logger *slog.Logger

	// File handling
	file   *os.File
	fileMu sync.Mutex

	// Metrics
	messagesWritten atomic.Int64
	bytesWritten    atomic.Int64
	errors          atomic.Int64
	lastActivity    atomic.Int64
}

// Stats is a snapshot of the sink counters
type Stats struct {
	Path            string
	MessagesWritten int64
	BytesWritten    int64
	Errors          int64
	LastActivity    time.Time
}

// Open creates the parent directory and opens path for writing
func Open(path string, appendMode bool, logger *slog.Logger) (*Sink, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Sink", "Open", "file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrIO, err), "Sink", "Open", "create output directory")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrIO, err), "Sink", "Open", "open output file")
	}

	logger = logger.With("component", "file-sink", "path", path)
	logger.Debug("File sink opened", "append", appendMode)

	return &Sink{
		path:   path,
		append: appendMode,
		logger: logger,
		file:   f,
	}, nil
}

// Factory is an output.Factory for file sinks using the default logger
func Factory(target string, appendMode bool) (output.Sink, error) {
	return NewFactory(nil)(target, appendMode)
}

// NewFactory returns an output.Factory whose sinks log through logger
func NewFactory(logger *slog.Logger) output.Factory {
	return func(target string, appendMode bool) (output.Sink, error) {
		s, err := Open(target, appendMode, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Path returns the file path
func (s *Sink) Path() string { return s.path }

// Deliver writes data to the file
func (s *Sink) Deliver(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if s.file == nil {
		s.errors.Add(1)
		return fmt.Errorf("%w: %s is closed", errors.ErrIO, s.path)
	}

	if !s.append {
		if err := s.file.Truncate(0); err != nil {
			s.errors.Add(1)
			return fmt.Errorf("%w: truncate %s: %w", errors.ErrIO, s.path, err)
		}
		if _, err := s.file.Seek(0, 0); err != nil {
			s.errors.Add(1)
			return fmt.Errorf("%w: seek %s: %w", errors.ErrIO, s.path, err)
		}
	}

	n, err := s.file.Write(data)
	if err != nil {
		s.errors.Add(1)
		s.logger.Error("Failed to write message to file", "error", err)
		return fmt.Errorf("%w: write %s: %w", errors.ErrIO, s.path, err)
	}

	s.messagesWritten.Add(1)
	s.bytesWritten.Add(int64(n))
	s.lastActivity.Store(time.Now().UnixNano())
	s.logger.Debug("Message written to file", "bytes_written", n)
	return nil
}

// Stats returns the sink counters
func (s *Sink) Stats() Stats {
	st := Stats{
		Path:            s.path,
		MessagesWritten: s.messagesWritten.Load(),
		BytesWritten:    s.bytesWritten.Load(),
		Errors:          s.errors.Load(),
	}
	if ns := s.lastActivity.Load(); ns != 0 {
		st.LastActivity = time.Unix(0, ns)
	}
	return st
}

// Close closes the file. It is safe to call more than once.
func (s *Sink) Close() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		s.logger.Warn("failed to close output file", "error", err)
		return errors.Wrap(err, "Sink", "Close", "close output file")
	}
	return nil
}
