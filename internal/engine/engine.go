// Package engine defines the contract between the session layer and a
// simulation engine instance. The session layer treats engines as opaque:
// construct, advance, reset, snapshot, release. Everything else — world
// rules, genome encoding, scoring — belongs to the implementation.
package engine

import "agon/internal/model"

// Engine is one constructed simulation instance. Implementations are not
// required to be safe for concurrent use; the session layer serializes all
// calls. Advance calls report finished=true once the generation cap is
// reached and keep reporting it on further calls.
type Engine interface {
	// Step advances the smallest unit of work (one battle round).
	Step() (finished bool, err error)
	// RunGeneration advances one full generation.
	RunGeneration() (finished bool, err error)
	// RunMany advances up to n generations, stopping early when finished.
	RunMany(n int) (finished bool, err error)
	// Reset reinitializes the instance to generation zero with its original
	// configuration and seed.
	Reset() error
	// Snapshot serializes current agents and statistics. Callers parse the
	// payload defensively and must never assume it is well formed.
	Snapshot() ([]byte, error)
	// Release frees the instance. Idempotent; the instance is unusable after.
	Release()
}

// Factory constructs engines from a configuration. Bounds validation is the
// factory's job: an out-of-range configuration fails with ConstructError and
// no instance is created.
type Factory interface {
	New(cfg model.Config) (Engine, error)
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func(cfg model.Config) (Engine, error)

func (f FactoryFunc) New(cfg model.Config) (Engine, error) { return f(cfg) }
