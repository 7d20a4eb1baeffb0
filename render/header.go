package render

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
)

var placeholder = regexp.MustCompile(`\$\{([^}\s]+)\}`)

// Directory is what header expansion needs from the variable directory
type Directory interface {
	Reader
	Lookup(ctx context.Context, name string) (directory.Var, error)
}

// Header is a template file prefixed to rendered messages. ${name}
// references are replaced with the current value of the named variable;
// names that do not exist expand to nothing.
type Header struct {
	path    string
	tmpl    atomic.Pointer[[]byte]
	reloads atomic.Uint64
	logger  *slog.Logger
}

// LoadHeader reads the template at path
func LoadHeader(path string, logger *slog.Logger) (*Header, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Header{
		path:   filepath.Clean(path),
		logger: logger.With("component", "header", "path", path),
	}
	if err := h.Reload(); err != nil {
		return nil, err
	}
	return h, nil
}

// Path returns the template file path
func (h *Header) Path() string { return h.path }

// Template returns the raw template bytes
func (h *Header) Template() []byte { return *h.tmpl.Load() }

// Reloads returns how many times the file has been re-read after a change
func (h *Header) Reloads() uint64 { return h.reloads.Load() }

// Reload re-reads the template file. On failure the previous template is
// kept.
func (h *Header) Reload() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return errors.WrapInvalid(errors.Join(errors.ErrIO, err), "Header", "Reload", "read "+h.path)
	}
	h.tmpl.Store(&data)
	return nil
}

// Expand returns the template with every ${name} replaced. The result
// never aliases the stored template.
func (h *Header) Expand(ctx context.Context, dir Directory) ([]byte, error) {
	tmpl := h.Template()
	matches := placeholder.FindAllSubmatchIndex(tmpl, -1)
	if len(matches) == 0 {
		return bytes.Clone(tmpl), nil
	}

	var buf bytes.Buffer
	last := 0
	for _, m := range matches {
		buf.Write(tmpl[last:m[0]])
		last = m[1]

		value, err := lookupValue(ctx, dir, string(tmpl[m[2]:m[3]]))
		if err != nil {
			return nil, errors.Wrap(err, "Header", "Expand", "expand "+string(tmpl[m[0]:m[1]]))
		}
		buf.WriteString(value)
	}
	buf.Write(tmpl[last:])
	return buf.Bytes(), nil
}

func lookupValue(ctx context.Context, dir Directory, name string) (string, error) {
	v, err := dir.Lookup(ctx, name)
	if errors.Is(err, errors.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	value, err := dir.Read(ctx, v)
	if errors.Is(err, errors.ErrNotFound) {
		return "", nil
	}
	return value, err
}

// Watch reloads the template whenever the file is written or recreated,
// until ctx is cancelled. The parent directory is watched so editors that
// replace the file are seen too.
func (h *Header) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapTransient(err, "Header", "Watch", "create watcher")
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return errors.WrapInvalid(err, "Header", "Watch", "watch "+filepath.Dir(h.path))
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != h.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := h.Reload(); err != nil {
					h.logger.Warn("Header reload failed, keeping previous template", "error", err)
					continue
				}
				h.reloads.Add(1)
				h.logger.Debug("Header reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.logger.Warn("Header watch error", "error", err)
			}
		}
	}()
	return nil
}

// Headers shares one Header per path between pipelines
type Headers struct {
	ctx    context.Context
	logger *slog.Logger

	mu     sync.Mutex
	byPath map[string]*Header
}

// NewHeaders creates a header set. Watches started by Get stop when ctx
// is cancelled.
func NewHeaders(ctx context.Context, logger *slog.Logger) *Headers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Headers{ctx: ctx, logger: logger, byPath: make(map[string]*Header)}
}

// Get returns the header for path, loading it and starting its watch on
// first use
func (s *Headers) Get(path string) (*Header, error) {
	key := filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byPath[key]; ok {
		return h, nil
	}

	h, err := LoadHeader(key, s.logger)
	if err != nil {
		return nil, err
	}
	if err := h.Watch(s.ctx); err != nil {
		s.logger.Warn("Header changes will not be picked up", "path", key, "error", err)
	}
	s.byPath[key] = h
	return h, nil
}
