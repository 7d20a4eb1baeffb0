package output

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/message"
)

// Sink receives rendered messages
type Sink interface {
	Deliver(ctx context.Context, data []byte) error
}

// Closer is implemented by sinks that hold resources
type Closer interface {
	Close() error
}

// Factory opens the sink for one output type and target
type Factory func(target string, appendMode bool) (Sink, error)

type sinkKey struct {
	kind   message.OutputType
	target string
	append bool
}

// Dispatcher routes each definition's messages to the sink its output
// type and target select. Sinks are opened on first use and shared by
// definitions with the same destination.
type Dispatcher struct {
	factories map[message.OutputType]Factory
	logger    *slog.Logger

	mu     sync.Mutex
	sinks  map[sinkKey]Sink
	closed bool
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithFactory registers the sink factory for an output type
func WithFactory(kind message.OutputType, f Factory) Option {
	return func(d *Dispatcher) {
		d.factories[kind] = f
	}
}

// WithLogger sets the dispatcher logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher. Output types without a factory fail
// delivery with ErrUnsupported.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		factories: make(map[message.OutputType]Factory),
		sinks:     make(map[sinkKey]Sink),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Deliver sends data to the sink of def. Disabled output succeeds without
// doing anything. Sink failures wrap ErrIO.
func (d *Dispatcher) Deliver(ctx context.Context, def *message.Definition, data []byte) error {
	if def.Output == message.OutputDisabled {
		return nil
	}

	sink, err := d.sink(def)
	if err != nil {
		return err
	}

	if err := sink.Deliver(ctx, data); err != nil {
		if !errors.Is(err, errors.ErrIO) {
			err = fmt.Errorf("%w: %w", errors.ErrIO, err)
		}
		return errors.Wrap(err, "Dispatcher", "Deliver", def.Output.String()+" "+def.Target)
	}
	return nil
}

func (d *Dispatcher) sink(def *message.Definition) (Sink, error) {
	key := sinkKey{kind: def.Output, target: def.Target, append: def.Append}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.ErrShuttingDown
	}
	if s, ok := d.sinks[key]; ok {
		return s, nil
	}

	factory, ok := d.factories[def.Output]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: no sink for output type %s", errors.ErrUnsupported, def.Output),
			"Dispatcher", "Deliver", "open sink")
	}
	s, err := factory(def.Target, def.Append)
	if err != nil {
		if !errors.Is(err, errors.ErrIO) {
			err = fmt.Errorf("%w: %w", errors.ErrIO, err)
		}
		return nil, errors.Wrap(err, "Dispatcher", "Deliver", "open "+def.Output.String()+" sink")
	}

	d.sinks[key] = s
	d.logger.Debug("Sink opened", "type", def.Output.String(), "target", def.Target)
	return s, nil
}

// Sinks returns the number of open sinks
func (d *Dispatcher) Sinks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sinks)
}

// Close closes every open sink. Further deliveries fail.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for key, s := range d.sinks {
		if c, ok := s.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", key.kind, key.target, err))
			}
		}
	}
	d.sinks = nil
	return errors.Join(errs...)
}
