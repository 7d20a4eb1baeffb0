package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/varmsg/errors"
)

// watchBuffer is the per-watcher queue depth. A watcher that falls this far
// behind loses changes rather than stalling writers; writers include the
// watcher's own owner, so a blocking send could deadlock it.
const watchBuffer = 256

type memEntry struct {
	v     Var
	value string
}

// Memory is an in-process Directory. Search returns variables in the order
// they were first defined.
type Memory struct {
	mu       sync.RWMutex
	entries  []*memEntry
	byKey    map[string]*memEntry
	watchers map[int]chan Change
	nextID   int
	closed   bool
	dropped  atomic.Uint64
	logger   *slog.Logger
}

// NewMemory creates an empty in-process directory
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		byKey:    make(map[string]*memEntry),
		watchers: make(map[int]chan Change),
		logger:   logger.With("component", "directory", "backend", "memory"),
	}
}

// Define creates v with an initial value, or replaces the metadata and value
// of an existing variable with the same key. Watchers are notified.
func (m *Memory) Define(v Var, value string) error {
	if v.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "Memory", "Define", "empty variable name")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrShuttingDown
	}
	e, ok := m.byKey[v.Key()]
	if ok {
		e.v = v
		e.value = value
	} else {
		e = &memEntry{v: v, value: value}
		m.entries = append(m.entries, e)
		m.byKey[v.Key()] = e
	}
	m.mu.Unlock()

	m.notify(Change{Var: v, Value: value})
	return nil
}

// Remove deletes the variable identified by key. Unknown keys are ignored.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[key]; !ok {
		return
	}
	delete(m.byKey, key)
	for i, e := range m.entries {
		if e.v.Key() == key {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
}

// Lookup implements Directory
func (m *Memory) Lookup(_ context.Context, name string) (Var, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		found Var
		ok    bool
	)
	for _, e := range m.entries {
		if e.v.Name != name {
			continue
		}
		if !ok || e.v.InstanceID < found.InstanceID {
			found, ok = e.v, true
		}
	}
	if !ok {
		return Var{}, fmt.Errorf("%w: %s", errors.ErrNotFound, name)
	}
	return found, nil
}

// Search implements Directory
func (m *Memory) Search(_ context.Context, matcher Matcher) ([]Var, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Var{}
	for _, e := range m.entries {
		if matcher.Match(e.v) {
			out = append(out, e.v)
		}
	}
	return out, nil
}

// Read implements Directory
func (m *Memory) Read(_ context.Context, v Var) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byKey[v.Key()]
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrNotFound, v.Key())
	}
	return e.value, nil
}

// Write implements Directory
func (m *Memory) Write(_ context.Context, name, value string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrShuttingDown
	}
	e, ok := m.byKey[name]
	if !ok {
		e = &memEntry{v: Var{Name: name}}
		m.entries = append(m.entries, e)
		m.byKey[name] = e
	}
	e.value = value
	v := e.v
	m.mu.Unlock()

	m.notify(Change{Var: v, Value: value})
	return nil
}

// Watch implements Directory
func (m *Memory) Watch(ctx context.Context) (<-chan Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.ErrShuttingDown
	}

	id := m.nextID
	m.nextID++
	ch := make(chan Change, watchBuffer)
	m.watchers[id] = ch

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(c)
		}
	}()

	return ch, nil
}

// Dropped returns the number of changes discarded because a watcher was full
func (m *Memory) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Memory) notify(c Change) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.watchers {
		select {
		case ch <- c:
		default:
			m.dropped.Add(1)
			m.logger.Warn("watcher full, change dropped", "var", c.Var.Key())
		}
	}
}

// Close implements Directory. Open watch channels are closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
	return nil
}
