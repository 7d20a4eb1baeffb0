package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/health"
	"github.com/c360/varmsg/message"
	"github.com/c360/varmsg/metric"
	"github.com/c360/varmsg/render"
	"github.com/c360/varmsg/varcache"
)

// Status is the lifecycle state of the scheduler
type Status int32

// Scheduler states
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Reason says why the loop woke up
type Reason int

// Wake reasons
const (
	ReasonTick Reason = iota
	ReasonTrigger
	ReasonControl
)

type controlKind int

const (
	controlEnable controlKind = iota
	controlRescan
)

type control struct {
	def     *message.Definition
	kind    controlKind
	enabled bool
	done    chan error
}

type wake struct {
	reason Reason
	ctrl   *control
}

// wakeBuffer bounds queued wake reasons. Tick and trigger wakes are
// coalesced when the queue is full.
const wakeBuffer = 64

// Deliverer sends rendered bytes to a definition's sink
type Deliverer interface {
	Deliver(ctx context.Context, def *message.Definition, data []byte) error
}

// Scheduler owns the pipeline definitions and runs the single loop that
// ticks countdowns, fires due definitions and applies control requests.
type Scheduler struct {
	defs     []*message.Definition
	byPrefix map[string]*message.Definition
	status   map[string]statusVar
	headers  *render.Headers
	hdrByDef map[*message.Definition]*render.Header

	dir      directory.Directory
	resolver *varcache.Resolver
	renderer *render.Renderer
	out      Deliverer

	logger  *slog.Logger
	metrics *metric.PipelineMetrics
	core    *metric.Metrics
	verbose bool
	tick    time.Duration

	wake    chan wake
	stopped chan struct{}
	state   atomic.Int32
	ticks   atomic.Uint64
	changes atomic.Uint64
	wg      sync.WaitGroup
}

// statusVar identifies one status variable of one definition
type statusVar struct {
	def  *message.Definition
	name string
}

// New creates a scheduler for defs, which keep their order. Prefixes must
// be unique.
func New(dir directory.Directory, out Deliverer, defs []*message.Definition, opts ...Option) (*Scheduler, error) {
	if dir == nil || out == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Scheduler", "New", "directory and dispatcher are required")
	}

	s := &Scheduler{
		defs:     defs,
		byPrefix: make(map[string]*message.Definition, len(defs)),
		status:   make(map[string]statusVar, 4*len(defs)),
		hdrByDef: make(map[*message.Definition]*render.Header),
		dir:      dir,
		resolver: varcache.NewResolver(dir),
		out:      out,
		logger:   slog.Default(),
		tick:     time.Second,
		wake:     make(chan wake, wakeBuffer),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	s.renderer = render.NewRenderer(dir, func(v directory.Var, err error) {
		s.logger.Warn("Variable vanished, skipped from message", "var", v.Key(), "error", err)
	})

	for _, d := range defs {
		if _, dup := s.byPrefix[d.Prefix]; dup {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: duplicate prefix %q", errors.ErrInvalidArgument, d.Prefix),
				"Scheduler", "New", "index definitions")
		}
		s.byPrefix[d.Prefix] = d
		for _, name := range []string{message.StatusTxCount, message.StatusErrCount, message.StatusEnable, message.StatusRescan} {
			s.status[d.StatusName(name)] = statusVar{def: d, name: name}
		}
	}
	return s, nil
}

// Status returns the lifecycle state
func (s *Scheduler) Status() Status {
	return Status(s.state.Load())
}

// Definitions returns the definitions in load order
func (s *Scheduler) Definitions() []*message.Definition {
	out := make([]*message.Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Definition returns the definition with prefix
func (s *Scheduler) Definition(prefix string) (*message.Definition, bool) {
	d, ok := s.byPrefix[prefix]
	return d, ok
}

// Ticks returns the number of ticks processed
func (s *Scheduler) Ticks() uint64 { return s.ticks.Load() }

// Health reports the loop state and how many definitions failed to resolve
func (s *Scheduler) Health() health.Status {
	switch s.Status() {
	case StatusRunning:
	case StatusStarting, StatusStopping:
		return health.NewDegraded("scheduler", "Scheduler is "+s.Status().String())
	default:
		return health.NewUnhealthy("scheduler", "Scheduler is stopped")
	}

	failing := 0
	for _, d := range s.defs {
		if d.ErrCount() > 0 {
			failing++
		}
	}
	st := health.NewHealthy("scheduler", fmt.Sprintf("%d pipelines running", len(s.defs)))
	if failing > 0 {
		st = health.NewDegraded("scheduler", fmt.Sprintf("%d of %d pipelines have errors", failing, len(s.defs)))
	}
	return st.WithMetrics(&health.Metrics{ErrorCount: int64(failing), Transmitted: int64(s.totalTx())})
}

func (s *Scheduler) totalTx() uint64 {
	var n uint64
	for _, d := range s.defs {
		n += uint64(d.TxCount())
	}
	return n
}

// Setup resolves every definition's caches, loads headers and publishes
// the status variables. A definition that fails is logged and counted,
// and the others still load.
func (s *Scheduler) Setup(ctx context.Context) error {
	s.state.Store(int32(StatusStarting))

	for _, d := range s.defs {
		logger := s.logger.With("prefix", d.Prefix)

		if err := d.Load(ctx, s.resolver); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.RecordError()
			s.metrics.RecordError(d.Prefix, metric.StageResolve)
			logger.Warn("Pipeline resolved with errors", "enabled", d.Enabled(), "error", err)
		}

		if d.HeaderPath != "" {
			if err := s.loadHeader(ctx, d); err != nil {
				d.RecordError()
				s.metrics.RecordError(d.Prefix, metric.StageHeader)
				logger.Warn("Header unavailable, messages sent without it", "header", d.HeaderPath, "error", err)
			}
		}

		s.metrics.RecordEnabled(d.Prefix, d.Enabled())
		s.metrics.RecordCacheSizes(d.Prefix, d.TriggerCache().Len(), d.BodyCache().Len())

		for name, value := range map[string]string{
			message.StatusEnable: strconv.FormatBool(d.Enabled()),
			message.StatusRescan: "0",
		} {
			s.writeStatus(ctx, d, name, value)
		}
		s.publishCounters(ctx, d)

		logger.Info("Pipeline loaded",
			"source", d.Source,
			"enabled", d.Enabled(),
			"interval", d.Interval,
			"trigger_vars", d.TriggerCache().Len(),
			"body_vars", d.BodyCache().Len(),
			"output_type", d.Output.String(),
			"output", d.Target)
	}
	return nil
}

func (s *Scheduler) loadHeader(ctx context.Context, d *message.Definition) error {
	if s.headers == nil {
		s.headers = render.NewHeaders(ctx, s.logger)
	}
	h, err := s.headers.Get(d.HeaderPath)
	if err != nil {
		return err
	}
	s.hdrByDef[d] = h
	return nil
}

// Run drives the loop until ctx is cancelled. Setup must have been
// called. The directory watch is started here so the status variables
// written by Setup are not seen as changes.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StatusStarting), int32(StatusRunning)) {
		return errors.WrapFatal(errors.ErrNotStarted, "Scheduler", "Run", "check state (Setup not called or already running)")
	}

	changes, err := s.dir.Watch(ctx)
	if err != nil {
		s.state.Store(int32(StatusStopped))
		return errors.WrapFatal(err, "Scheduler", "Run", "watch directory")
	}

	s.wg.Add(2)
	go s.ticker(ctx)
	go s.forward(ctx, changes)

	s.logger.Info("Scheduler running", "pipelines", len(s.defs), "tick", s.tick)

	defer func() {
		s.state.Store(int32(StatusStopping))
		s.wg.Wait()
		s.state.Store(int32(StatusStopped))
		close(s.stopped)
		s.logger.Info("Scheduler stopped", "ticks", s.ticks.Load())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case w := <-s.wake:
			s.handle(ctx, w)
		}
	}
}

func (s *Scheduler) ticker(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(s.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			select {
			case s.wake <- wake{reason: ReasonTick}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// forward turns directory changes into wake reasons. It never blocks on
// trigger wakes: the pending flag on the definition carries the trigger
// even when the wake is dropped.
func (s *Scheduler) forward(ctx context.Context, changes <-chan directory.Change) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			s.changes.Add(1)
			if s.core != nil {
				s.core.RecordDirectoryChange()
			}
			s.route(ctx, c)
		}
	}
}

func (s *Scheduler) route(ctx context.Context, c directory.Change) {
	if sv, ok := s.status[c.Var.Name]; ok && c.Var.InstanceID == 0 {
		s.statusChanged(ctx, sv, c.Value)
		return
	}

	key := c.Var.Key()
	triggered := false
	for _, d := range s.defs {
		if d.Enabled() && d.TriggerCache().Contains(key) {
			d.MarkTriggered()
			triggered = true
		}
	}
	if !triggered {
		return
	}
	select {
	case s.wake <- wake{reason: ReasonTrigger}:
	default:
	}
}

func (s *Scheduler) statusChanged(ctx context.Context, sv statusVar, value string) {
	var ctrl *control
	switch sv.name {
	case message.StatusEnable:
		on, err := strconv.ParseBool(value)
		if err != nil {
			s.logger.Warn("Ignoring enable value", "prefix", sv.def.Prefix, "value", value)
			return
		}
		if on == sv.def.Enabled() {
			return
		}
		ctrl = &control{def: sv.def, kind: controlEnable, enabled: on}
	case message.StatusRescan:
		ctrl = &control{def: sv.def, kind: controlRescan}
	default:
		return
	}

	select {
	case s.wake <- wake{reason: ReasonControl, ctrl: ctrl}:
	case <-ctx.Done():
	}
}

// SetEnabled enables or disables the pipeline with prefix and waits until
// the loop has applied it
func (s *Scheduler) SetEnabled(ctx context.Context, prefix string, on bool) error {
	return s.request(ctx, prefix, controlEnable, on)
}

// Rescan rebuilds the caches of the pipeline with prefix and waits for the
// result
func (s *Scheduler) Rescan(ctx context.Context, prefix string) error {
	return s.request(ctx, prefix, controlRescan, false)
}

func (s *Scheduler) request(ctx context.Context, prefix string, kind controlKind, on bool) error {
	d, ok := s.byPrefix[prefix]
	if !ok {
		return fmt.Errorf("%w: pipeline %q", errors.ErrNotFound, prefix)
	}
	if s.Status() != StatusRunning {
		return errors.WrapTransient(errors.ErrNotStarted, "Scheduler", "request", "queue control")
	}

	ctrl := &control{def: d, kind: kind, enabled: on, done: make(chan error, 1)}
	select {
	case s.wake <- wake{reason: ReasonControl, ctrl: ctrl}:
	case <-s.stopped:
		return errors.ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ctrl.done:
		return err
	case <-s.stopped:
		return errors.ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) handle(ctx context.Context, w wake) {
	switch w.reason {
	case ReasonTick:
		s.ticks.Add(1)
		for _, d := range s.defs {
			due := d.Tick()
			triggered := d.TakeTriggered()
			if due {
				s.fire(ctx, d, metric.TriggerInterval)
			}
			if triggered {
				s.fire(ctx, d, metric.TriggerChange)
			}
		}
	case ReasonTrigger:
		for _, d := range s.defs {
			if d.TakeTriggered() {
				s.fire(ctx, d, metric.TriggerChange)
			}
		}
	case ReasonControl:
		err := s.apply(ctx, w.ctrl)
		if w.ctrl.done != nil {
			w.ctrl.done <- err
		}
	}
}

func (s *Scheduler) apply(ctx context.Context, c *control) error {
	d := c.def
	logger := s.logger.With("prefix", d.Prefix)

	switch c.kind {
	case controlEnable:
		if !d.SetEnabled(c.enabled) {
			return nil
		}
		s.metrics.RecordEnabled(d.Prefix, c.enabled)
		s.writeStatus(ctx, d, message.StatusEnable, strconv.FormatBool(c.enabled))
		logger.Info("Pipeline enable changed", "enabled", c.enabled, "countdown", d.Countdown())
		return nil

	case controlRescan:
		err := d.Rescan(ctx, s.resolver)
		s.metrics.RecordCacheSizes(d.Prefix, d.TriggerCache().Len(), d.BodyCache().Len())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.RecordError()
			s.metrics.RecordError(d.Prefix, metric.StageResolve)
			s.publishCounters(ctx, d)
			logger.Warn("Rescan completed with errors",
				"trigger_vars", d.TriggerCache().Len(), "body_vars", d.BodyCache().Len(), "error", err)
			return err
		}
		logger.Info("Rescan completed", "trigger_vars", d.TriggerCache().Len(), "body_vars", d.BodyCache().Len())
		return nil
	}
	return nil
}

// fire renders and delivers one message. A cancelled ctx abandons the
// message without touching the counters.
func (s *Scheduler) fire(ctx context.Context, d *message.Definition, cause string) {
	start := time.Now()
	data, err := s.renderer.Render(ctx, d.BodyCache())
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.failed(ctx, d, metric.StageRender, err)
		return
	}

	if h, ok := s.hdrByDef[d]; ok {
		prefix, err := h.Expand(ctx, s.dir)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.failed(ctx, d, metric.StageHeader, err)
			return
		}
		s.metrics.RecordHeaderReloads(d.Prefix, h.Reloads())
		msg := make([]byte, 0, len(prefix)+len(data))
		data = append(append(msg, prefix...), data...)
	}
	s.metrics.RecordRender(d.Prefix, time.Since(start))

	if err := s.out.Deliver(ctx, d, data); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failed(ctx, d, metric.StageDeliver, err)
		return
	}

	d.RecordTransmission()
	s.metrics.RecordTransmission(d.Prefix, cause)
	if s.verbose {
		s.logger.Info("Message sent",
			"prefix", d.Prefix,
			"cause", cause,
			"output_type", d.Output.String(),
			"bytes", len(data),
			"message", string(data))
	}
	s.publishCounters(ctx, d)
}

func (s *Scheduler) failed(ctx context.Context, d *message.Definition, stage string, err error) {
	d.RecordError()
	s.metrics.RecordError(d.Prefix, stage)
	s.logger.Warn("Message not sent", "prefix", d.Prefix, "stage", stage, "code", errors.Code(err), "error", err)
	s.publishCounters(ctx, d)
}

func (s *Scheduler) publishCounters(ctx context.Context, d *message.Definition) {
	s.writeStatus(ctx, d, message.StatusTxCount, strconv.FormatUint(uint64(d.TxCount()), 10))
	s.writeStatus(ctx, d, message.StatusErrCount, strconv.FormatUint(uint64(d.ErrCount()), 10))
}

func (s *Scheduler) writeStatus(ctx context.Context, d *message.Definition, name, value string) {
	if err := s.dir.Write(ctx, d.StatusName(name), value); err != nil && ctx.Err() == nil {
		s.metrics.RecordError(d.Prefix, metric.StageStatus)
		s.logger.Debug("Status variable not updated", "prefix", d.Prefix, "var", name, "error", err)
	}
}
