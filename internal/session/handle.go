package session

import (
	"errors"
	"fmt"
	"sync"

	"agon/internal/engine"
	"agon/internal/model"
)

// ErrNotBound reports an operation that needs a bound engine on an empty
// handle.
var ErrNotBound = errors.New("session: engine not bound")

// SnapshotWarning reports an engine snapshot that could not be captured or
// parsed. The operation that produced it still succeeded; the snapshot
// returned alongside is a degraded substitute.
type SnapshotWarning struct {
	Err error
}

func (w *SnapshotWarning) Error() string {
	return fmt.Sprintf("snapshot unavailable: %v", w.Err)
}

func (w *SnapshotWarning) Unwrap() error { return w.Err }

// Handle owns at most one live engine instance. Binding a new configuration
// always releases the previous instance first, and the raw engine never
// escapes: callers only ever see decoded snapshots. All methods are safe for
// concurrent use; engine calls are serialized under the handle lock, so a
// bind waits out an in-flight advance.
type Handle struct {
	factory engine.Factory

	mu      sync.Mutex
	eng     engine.Engine
	cfg     model.Config
	lastGen int
}

func NewHandle(factory engine.Factory) *Handle {
	return &Handle{factory: factory}
}

// Bind releases any current engine, constructs a fresh one from cfg, and
// returns its initial snapshot. On construct failure the handle is left
// empty.
func (h *Handle) Bind(cfg model.Config) (model.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.eng != nil {
		h.eng.Release()
		h.eng = nil
	}
	h.lastGen = 0

	eng, err := h.factory.New(cfg)
	if err != nil {
		h.cfg = model.Config{}
		return model.Snapshot{}, fmt.Errorf("bind engine: %w", err)
	}
	h.eng = eng
	h.cfg = cfg
	return h.snapshotLocked()
}

// Step advances one battle round.
func (h *Handle) Step() (model.Snapshot, bool, error) {
	return h.advance("step", func(e engine.Engine) (bool, error) { return e.Step() })
}

// RunGeneration advances one full generation.
func (h *Handle) RunGeneration() (model.Snapshot, bool, error) {
	return h.advance("run generation", func(e engine.Engine) (bool, error) { return e.RunGeneration() })
}

// RunMany advances up to n generations.
func (h *Handle) RunMany(n int) (model.Snapshot, bool, error) {
	return h.advance("run many", func(e engine.Engine) (bool, error) { return e.RunMany(n) })
}

func (h *Handle) advance(op string, fn func(engine.Engine) (bool, error)) (model.Snapshot, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.eng == nil {
		return model.Snapshot{}, false, ErrNotBound
	}
	finished, err := fn(h.eng)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("%s: %w", op, err)
	}
	snap, warn := h.snapshotLocked()
	return snap, finished, warn
}

// Reset reinitializes the bound engine in place, back to generation zero.
func (h *Handle) Reset() (model.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.eng == nil {
		return model.Snapshot{}, ErrNotBound
	}
	if err := h.eng.Reset(); err != nil {
		return model.Snapshot{}, fmt.Errorf("reset: %w", err)
	}
	h.lastGen = 0
	snap, warn := h.snapshotLocked()
	return snap, warn
}

// Release frees the bound engine, if any. Safe to call repeatedly.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.eng != nil {
		h.eng.Release()
		h.eng = nil
	}
}

// Bound reports whether an engine is currently held.
func (h *Handle) Bound() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.eng != nil
}

// Config returns the configuration of the bound engine.
func (h *Handle) Config() (model.Config, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg, h.eng != nil
}

// snapshotLocked captures and decodes the engine snapshot. Failures degrade:
// the returned snapshot is an empty one at the last known generation and the
// error is a SnapshotWarning, never fatal.
func (h *Handle) snapshotLocked() (model.Snapshot, error) {
	payload, err := h.eng.Snapshot()
	if err != nil {
		return model.DegradedSnapshot(h.lastGen), &SnapshotWarning{Err: err}
	}
	snap, err := model.DecodeSnapshot(payload)
	if err != nil {
		return model.DegradedSnapshot(h.lastGen), &SnapshotWarning{Err: err}
	}
	h.lastGen = snap.Stats.Generation
	return snap, nil
}
