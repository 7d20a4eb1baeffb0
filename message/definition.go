package message

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/varmsg/config"
	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/query"
	"github.com/c360/varmsg/varcache"
)

// Status variable names published under each prefix
const (
	StatusTxCount  = "txcount"
	StatusErrCount = "errcount"
	StatusEnable   = "enable"
	StatusRescan   = "rescan"
)

// OutputType selects the sink for a definition
type OutputType int

// Output types
const (
	OutputDisabled OutputType = iota
	OutputStdout
	OutputMQueue
	OutputFile
)

// String returns the configuration name of t
func (t OutputType) String() string {
	switch t {
	case OutputDisabled:
		return config.OutputDisabled
	case OutputStdout:
		return config.OutputStdout
	case OutputMQueue:
		return config.OutputMQueue
	case OutputFile:
		return config.OutputFile
	default:
		return "unknown"
	}
}

// ParseOutputType maps a configuration name to an OutputType
func ParseOutputType(s string) (OutputType, error) {
	switch s {
	case config.OutputDisabled:
		return OutputDisabled, nil
	case config.OutputStdout:
		return OutputStdout, nil
	case config.OutputMQueue:
		return OutputMQueue, nil
	case config.OutputFile:
		return OutputFile, nil
	default:
		return OutputDisabled, fmt.Errorf("%w: output type %q", errors.ErrInvalidArgument, s)
	}
}

// Definition is one configured pipeline. Configuration fields are fixed
// after New. Countdown and the pending trigger flag are owned by the
// scheduler loop; counters, the enable flag and the caches may be read
// from any goroutine.
type Definition struct {
	Prefix     string
	Interval   int
	Trigger    varcache.Source
	Body       varcache.Source
	Output     OutputType
	Target     string
	Append     bool
	HeaderPath string
	Source     string

	enabled   atomic.Bool
	countdown atomic.Int64
	txCount   atomic.Uint32
	errCount  atomic.Uint32
	triggered atomic.Bool

	triggerCache atomic.Pointer[varcache.Cache]
	bodyCache    atomic.Pointer[varcache.Cache]

	// serializes SetEnabled so the frozen countdown is read consistently
	mu sync.Mutex
}

// New builds a definition from a validated pipeline configuration. Query
// sources are decoded here; a malformed query fails the definition.
func New(cfg *config.PipelineConfig) (*Definition, error) {
	if cfg.Prefix == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: empty prefix", errors.ErrInvalidArgument), "Definition", "New", "check prefix")
	}
	if cfg.Interval < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: negative interval %d", errors.ErrInvalidArgument, cfg.Interval),
			"Definition", "New", "check interval")
	}

	out, err := ParseOutputType(cfg.OutputType)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Definition", "New", "parse output type")
	}

	trigger, err := sourceOf(cfg.Trigger)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Definition", "New", "decode trigger")
	}
	body, err := sourceOf(cfg.Vars)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Definition", "New", "decode vars")
	}
	if body.IsZero() {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: vars is required", errors.ErrInvalidArgument),
			"Definition", "New", "decode vars")
	}

	d := &Definition{
		Prefix:     cfg.Prefix,
		Interval:   cfg.Interval,
		Trigger:    trigger,
		Body:       body,
		Output:     out,
		Target:     cfg.Output,
		Append:     cfg.AppendMode(),
		HeaderPath: cfg.Header,
		Source:     cfg.Source,
	}
	d.enabled.Store(cfg.Enabled)
	d.countdown.Store(int64(cfg.Interval))
	d.triggerCache.Store(varcache.Empty())
	d.bodyCache.Store(varcache.Empty())
	return d, nil
}

func sourceOf(spec config.VarSpec) (varcache.Source, error) {
	switch {
	case spec.Query != nil:
		q, err := query.Build(*spec.Query)
		if err != nil {
			return varcache.Source{}, err
		}
		return varcache.Source{Query: &q}, nil
	case spec.List != nil:
		return varcache.Source{List: spec.List}, nil
	default:
		return varcache.Source{}, nil
	}
}

// StatusName returns the directory name of a status variable
func (d *Definition) StatusName(name string) string {
	return directory.JoinName(d.Prefix, name)
}

// Enabled reports whether the definition may fire
func (d *Definition) Enabled() bool {
	return d.enabled.Load()
}

// SetEnabled toggles the definition. The countdown is left as is, so a
// re-enabled definition resumes where it stopped. It reports whether the
// state changed.
func (d *Definition) SetEnabled(on bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled.Load() == on {
		return false
	}
	d.enabled.Store(on)
	if !on {
		d.triggered.Store(false)
	}
	return true
}

// Countdown returns the seconds left until the next interval firing
func (d *Definition) Countdown() int {
	return int(d.countdown.Load())
}

// Tick advances the interval countdown by one second and reports whether
// the definition is due. Disabled and trigger-only definitions never move.
func (d *Definition) Tick() bool {
	if !d.Enabled() || d.Interval == 0 {
		return false
	}
	n := d.countdown.Load()
	if n > 0 {
		n--
	}
	if n == 0 {
		d.countdown.Store(int64(d.Interval))
		return true
	}
	d.countdown.Store(n)
	return false
}

// MarkTriggered records that a trigger variable changed. Ignored while
// disabled.
func (d *Definition) MarkTriggered() {
	if d.Enabled() {
		d.triggered.Store(true)
	}
}

// TakeTriggered reports and clears a pending trigger
func (d *Definition) TakeTriggered() bool {
	return d.triggered.Swap(false) && d.Enabled()
}

// RecordTransmission counts a successful message. Counters wrap.
func (d *Definition) RecordTransmission() uint32 {
	return d.txCount.Add(1)
}

// RecordError counts a failed generation or delivery. Counters wrap.
func (d *Definition) RecordError() uint32 {
	return d.errCount.Add(1)
}

// TxCount returns the number of successful messages
func (d *Definition) TxCount() uint32 {
	return d.txCount.Load()
}

// ErrCount returns the number of failed generations and deliveries
func (d *Definition) ErrCount() uint32 {
	return d.errCount.Load()
}

// TriggerCache returns the current trigger cache, never nil
func (d *Definition) TriggerCache() *varcache.Cache {
	return d.triggerCache.Load()
}

// BodyCache returns the current body cache, never nil
func (d *Definition) BodyCache() *varcache.Cache {
	return d.bodyCache.Load()
}

// SetTriggerCache replaces the trigger cache in one step
func (d *Definition) SetTriggerCache(c *varcache.Cache) {
	if c == nil {
		c = varcache.Empty()
	}
	d.triggerCache.Store(c)
}

// SetBodyCache replaces the body cache in one step
func (d *Definition) SetBodyCache(c *varcache.Cache) {
	if c == nil {
		c = varcache.Empty()
	}
	d.bodyCache.Store(c)
}

// Load resolves both sources for the first time. A failed query leaves
// the definition disabled with empty caches. A list with missing names
// keeps the names that resolved and the definition stays as configured.
func (d *Definition) Load(ctx context.Context, r *varcache.Resolver) error {
	trigger, terr := r.ResolveSource(ctx, d.Trigger)
	body, berr := r.ResolveSource(ctx, d.Body)

	if (terr != nil && d.Trigger.Query != nil) || (berr != nil && d.Body.Query != nil) {
		d.enabled.Store(false)
		d.SetTriggerCache(nil)
		d.SetBodyCache(nil)
		return errors.Join(terr, berr)
	}

	d.SetTriggerCache(trigger)
	d.SetBodyCache(body)
	return errors.Join(terr, berr)
}

// Rescan rebuilds both caches from their sources. A cache whose query
// fails is left unchanged; list caches are always replaced, keeping the
// names that still resolve.
func (d *Definition) Rescan(ctx context.Context, r *varcache.Resolver) error {
	var errs []error
	if c, err := r.ResolveSource(ctx, d.Trigger); c != nil {
		d.SetTriggerCache(c)
		errs = append(errs, err)
	} else {
		errs = append(errs, fmt.Errorf("trigger: %w", err))
	}
	if c, err := r.ResolveSource(ctx, d.Body); c != nil {
		d.SetBodyCache(c)
		errs = append(errs, err)
	} else {
		errs = append(errs, fmt.Errorf("vars: %w", err))
	}
	return errors.Join(errs...)
}

// Status is a point-in-time view of a definition
type Status struct {
	Prefix      string `json:"prefix"`
	Source      string `json:"source,omitempty"`
	Enabled     bool   `json:"enabled"`
	Interval    int    `json:"interval"`
	Countdown   int    `json:"countdown"`
	TxCount     uint32 `json:"txcount"`
	ErrCount    uint32 `json:"errcount"`
	TriggerVars int    `json:"trigger_vars"`
	BodyVars    int    `json:"body_vars"`
	Trigger     string `json:"trigger"`
	Body        string `json:"body"`
	OutputType  string `json:"output_type"`
	Output      string `json:"output,omitempty"`
	Header      string `json:"header,omitempty"`
}

// Status returns a snapshot of the definition
func (d *Definition) Status() Status {
	return Status{
		Prefix:      d.Prefix,
		Source:      d.Source,
		Enabled:     d.Enabled(),
		Interval:    d.Interval,
		Countdown:   d.Countdown(),
		TxCount:     d.TxCount(),
		ErrCount:    d.ErrCount(),
		TriggerVars: d.TriggerCache().Len(),
		BodyVars:    d.BodyCache().Len(),
		Trigger:     d.Trigger.String(),
		Body:        d.Body.String(),
		OutputType:  d.Output.String(),
		Output:      d.Target,
		Header:      d.HeaderPath,
	}
}
