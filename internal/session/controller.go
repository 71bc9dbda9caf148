// Package session owns the lifetime of one simulation engine instance: a
// handle that binds and releases engines, a controller that runs the
// idle/running/finished state machine over it, an auto-run scheduler, and an
// error sink. The engine itself stays opaque behind the handle.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agon/internal/config"
	"agon/internal/engine"
	"agon/internal/model"
)

var (
	// ErrBusy reports an advance attempted while another is in flight or
	// while auto-run owns the session.
	ErrBusy = errors.New("session: engine busy")
	// ErrAlreadyRunning reports a start on a running session.
	ErrAlreadyRunning = errors.New("session: already running")
	// ErrClosed reports any operation after teardown.
	ErrClosed = errors.New("session: controller is closed")
)

// Config wires a controller. Factory and Configs are required.
type Config struct {
	Factory engine.Factory
	Configs *config.Store
	Logger  *logrus.Logger
	// AutoRunInterval seeds the scheduler period; zero means DefaultInterval.
	AutoRunInterval time.Duration
}

// Controller is the session state machine. It owns the engine handle, the
// auto-run scheduler and the error sink, and subscribes to the configuration
// store: every configuration change disables auto-run first and then rebinds
// a fresh engine. All engine work is serialized through a single operation
// token; advance-class operations give up with ErrBusy instead of waiting,
// bind and reset wait their turn.
type Controller struct {
	id      string
	log     *logrus.Logger
	cfgs    *config.Store
	handle  *Handle
	sink    *Sink
	autorun *AutoRun

	// gate is the operation token: holding the single slot means exclusive
	// right to drive the engine.
	gate chan struct{}

	mu          sync.RWMutex
	status      model.SessionStatus
	snap        model.Snapshot
	seq         uint64
	bindErr     error
	closed      bool
	observers   []observer
	nextObs     int
	unsubscribe func()
}

type observer struct {
	id int
	fn func(model.Snapshot)
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Factory == nil {
		return nil, errors.New("engine factory is required")
	}
	if cfg.Configs == nil {
		return nil, errors.New("config store is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	c := &Controller{
		id:     uuid.New().String(),
		log:    log,
		cfgs:   cfg.Configs,
		handle: NewHandle(cfg.Factory),
		gate:   make(chan struct{}, 1),
		status: model.StatusIdle,
	}
	c.sink = NewSink(log, c.onFatal)
	c.autorun = NewAutoRun(log, c.autoTick)
	if cfg.AutoRunInterval > 0 {
		c.autorun.SetInterval(cfg.AutoRunInterval)
	}
	c.unsubscribe = cfg.Configs.Subscribe(c.applyConfiguration)
	return c, nil
}

// ID is the unique session identifier.
func (c *Controller) ID() string { return c.id }

// CreateNew replaces the configuration wholesale, with an optional world-size
// override, and binds a fresh engine to it. The previous engine, if any, is
// released first. On construct failure the session holds no engine and stays
// idle.
func (c *Controller) CreateNew(cfg model.Config, dims model.Dimensions) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !dims.IsZero() {
		cfg.WorldWidth = dims.Width
		cfg.WorldHeight = dims.Height
	}
	// Replace notifies subscribers synchronously, so the bind outcome is
	// recorded by the time it returns.
	c.cfgs.Replace(cfg)
	return c.lastBindError()
}

// UpdateConfiguration merges a partial update and rebinds. Auto-run is
// disabled before the old engine is released.
func (c *Controller) UpdateConfiguration(patch model.ConfigPatch) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.cfgs.Update(patch)
	return c.lastBindError()
}

// ApplyPreset replaces the configuration with a named preset and rebinds.
func (c *Controller) ApplyPreset(name string) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.cfgs.LoadPreset(name); err != nil {
		return err
	}
	return c.lastBindError()
}

// applyConfiguration reacts to every configuration change: scheduler off
// first, then release-and-rebind under the operation token.
func (c *Controller) applyConfiguration(cfg model.Config) {
	if c.isClosed() {
		return
	}
	c.autorun.Disable()

	c.gate <- struct{}{}
	snap, err := c.handle.Bind(cfg)
	var published model.Snapshot
	var warn *SnapshotWarning
	switch {
	case err == nil:
		published = c.publish(snap)
	case errors.As(err, &warn):
		published = c.publish(snap)
	}
	<-c.gate

	c.setStatus(model.StatusIdle)
	switch {
	case err == nil:
		c.setBindError(nil)
		c.log.WithFields(logrus.Fields{
			"session":    c.id,
			"population": cfg.PopulationSize,
			"max_gen":    cfg.MaxGenerations,
			"snapshot":   published.Seq,
		}).Info("Engine bound")
	case warn != nil:
		c.setBindError(nil)
		c.sink.Warn("bind", err)
	default:
		c.setBindError(err)
		c.sink.Report("bind", err)
	}
}

// Start moves the session to running. A run always begins from generation
// zero: a bound engine is reset first, and a session with no engine binds a
// fresh one from the current configuration. The scheduler keeps its own
// state; arm it through AutoRun.
func (c *Controller) Start() error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.Status() == model.StatusRunning {
		return ErrAlreadyRunning
	}

	if !c.handle.Bound() {
		if err := c.bindCurrent(); err != nil {
			return err
		}
	} else if err := c.Reset(); err != nil {
		return err
	}

	c.setStatus(model.StatusRunning)
	c.log.WithField("session", c.id).Info("Session started")
	return nil
}

// Stop halts auto-run and parks the session idle. The engine stays bound, so
// a manual step resumes from the current generation; a new Start begins
// again from generation zero.
func (c *Controller) Stop() {
	if c.isClosed() {
		return
	}
	c.autorun.Disable()
	if c.Status() == model.StatusRunning {
		c.setStatus(model.StatusIdle)
		c.log.WithField("session", c.id).Info("Session stopped")
	}
}

// Step advances one battle round.
func (c *Controller) Step() (model.Snapshot, error) {
	return c.advance("step", (*Handle).Step)
}

// RunGeneration advances one full generation.
func (c *Controller) RunGeneration() (model.Snapshot, error) {
	return c.advance("run_generation", (*Handle).RunGeneration)
}

// RunMany advances up to n generations as one operation.
func (c *Controller) RunMany(n int) (model.Snapshot, error) {
	return c.advance("run_many", func(h *Handle) (model.Snapshot, bool, error) {
		return h.RunMany(n)
	})
}

func (c *Controller) advance(op string, fn func(*Handle) (model.Snapshot, bool, error)) (model.Snapshot, error) {
	c.mu.RLock()
	closed := c.closed
	status := c.status
	c.mu.RUnlock()
	if closed {
		return model.Snapshot{}, ErrClosed
	}
	// Auto-run owns a running session; manual advances would race its ticks.
	if status == model.StatusRunning && c.autorun.Enabled() {
		return model.Snapshot{}, ErrBusy
	}

	select {
	case c.gate <- struct{}{}:
	default:
		return model.Snapshot{}, ErrBusy
	}

	snap, finished, err := fn(c.handle)
	if err != nil {
		var warn *SnapshotWarning
		switch {
		case errors.Is(err, ErrNotBound):
			<-c.gate
			return model.Snapshot{}, ErrNotBound
		case errors.As(err, &warn):
			published := c.publish(snap)
			<-c.gate
			c.sink.Warn(op, err)
			if finished {
				c.finish()
			}
			return published, nil
		default:
			<-c.gate
			c.sink.Report(op, err)
			return model.Snapshot{}, err
		}
	}

	published := c.publish(snap)
	<-c.gate
	if finished {
		c.finish()
	}
	return published, nil
}

// Reset reinitializes the bound engine to generation zero and parks the
// session idle. Auto-run is disabled first and waits out any in-flight
// advance.
func (c *Controller) Reset() error {
	if c.isClosed() {
		return ErrClosed
	}
	c.autorun.Disable()

	c.gate <- struct{}{}
	snap, err := c.handle.Reset()
	var warn *SnapshotWarning
	switch {
	case err == nil, errors.As(err, &warn):
		c.publish(snap)
	}
	<-c.gate

	switch {
	case err == nil:
	case errors.Is(err, ErrNotBound):
		return ErrNotBound
	case warn != nil:
		c.sink.Warn("reset", err)
	default:
		c.sink.Report("reset", err)
		return err
	}
	c.setStatus(model.StatusIdle)
	c.log.WithField("session", c.id).Info("Session reset")
	return nil
}

// Teardown disables auto-run, detaches from the configuration store and
// releases the engine. The controller is unusable afterwards; calling it
// again is a no-op.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.autorun.Disable()
	if unsubscribe != nil {
		unsubscribe()
	}

	// Wait out any in-flight operation before releasing the engine.
	c.gate <- struct{}{}
	c.handle.Release()
	<-c.gate

	c.setStatus(model.StatusIdle)
	c.log.WithField("session", c.id).Info("Session torn down")
}

// autoTick runs one scheduler tick: advance a generation if the session is
// running and the engine is free, otherwise drop the tick.
func (c *Controller) autoTick() {
	c.mu.RLock()
	closed := c.closed
	status := c.status
	c.mu.RUnlock()
	if closed || status != model.StatusRunning {
		return
	}

	select {
	case c.gate <- struct{}{}:
	default:
		c.log.WithField("session", c.id).Debug("Auto-run tick dropped, engine busy")
		return
	}

	snap, finished, err := c.handle.RunGeneration()
	if err != nil {
		var warn *SnapshotWarning
		switch {
		case errors.Is(err, ErrNotBound):
			<-c.gate
			return
		case errors.As(err, &warn):
			c.publish(snap)
			<-c.gate
			c.sink.Warn("auto_run", err)
		default:
			<-c.gate
			c.sink.Report("auto_run", err)
			return
		}
	} else {
		c.publish(snap)
		<-c.gate
	}

	if finished {
		c.finish()
		c.log.WithFields(logrus.Fields{
			"session":    c.id,
			"generation": snap.Stats.Generation,
		}).Info("Session finished")
	}
}

// finish force-disables auto-run and marks the session finished.
func (c *Controller) finish() {
	c.autorun.Disable()
	c.setStatus(model.StatusFinished)
}

// onFatal is the sink hook: a fatal error always stops auto-run and forces
// the session idle.
func (c *Controller) onFatal() {
	c.autorun.Disable()
	c.setStatus(model.StatusIdle)
}

func (c *Controller) bindCurrent() error {
	cfg := c.cfgs.Get()

	c.gate <- struct{}{}
	snap, err := c.handle.Bind(cfg)
	var warn *SnapshotWarning
	switch {
	case err == nil, errors.As(err, &warn):
		c.publish(snap)
	}
	<-c.gate

	switch {
	case err == nil:
		return nil
	case warn != nil:
		c.sink.Warn("bind", err)
		return nil
	default:
		c.sink.Report("bind", err)
		return err
	}
}

// publish stamps and stores a snapshot and hands copies to observers.
// Publishers hold the operation token, so sequence numbers are strictly
// increasing and no stale snapshot can overwrite a newer one.
func (c *Controller) publish(snap model.Snapshot) model.Snapshot {
	c.mu.Lock()
	c.seq++
	snap.Seq = c.seq
	snap.CapturedAt = time.Now()
	c.snap = snap
	observers := append([]observer(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range observers {
		o.fn(snap.Clone())
	}
	return snap
}

// Subscribe registers a snapshot observer and returns its unsubscribe
// function. Observers receive copies and may not call back into the
// controller.
func (c *Controller) Subscribe(fn func(model.Snapshot)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers = append(c.observers, observer{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}
}

// Status returns the current lifecycle state.
func (c *Controller) Status() model.SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Snapshot returns a copy of the last published snapshot. A zero Seq means
// nothing has been published yet.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// Config returns the live configuration.
func (c *Controller) Config() model.Config {
	return c.cfgs.Get()
}

// AutoRun exposes the scheduler for enable/disable/interval control.
func (c *Controller) AutoRun() *AutoRun { return c.autorun }

// Errors exposes the session's error sink.
func (c *Controller) Errors() *Sink { return c.sink }

// Bound reports whether an engine is currently bound.
func (c *Controller) Bound() bool { return c.handle.Bound() }

func (c *Controller) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Controller) setStatus(status model.SessionStatus) {
	c.mu.Lock()
	prev := c.status
	c.status = status
	c.mu.Unlock()

	if prev != status {
		c.log.WithFields(logrus.Fields{
			"session": c.id,
			"from":    prev.String(),
			"to":      status.String(),
		}).Debug("Session status changed")
	}
}

func (c *Controller) setBindError(err error) {
	c.mu.Lock()
	c.bindErr = err
	c.mu.Unlock()
}

func (c *Controller) lastBindError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bindErr
}
