package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the auto-run tick period used when none is configured.
const DefaultInterval = 200 * time.Millisecond

// AutoRun drives a tick callback at a fixed interval on its own goroutine.
// Ticks are dispatched one at a time and never queued: the callback decides
// whether the engine is free and drops the tick otherwise. Disable stops new
// dispatches immediately; a tick already in its callback runs to completion.
type AutoRun struct {
	log  *logrus.Logger
	tick func()

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	stop     chan struct{}
}

func NewAutoRun(log *logrus.Logger, tick func()) *AutoRun {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}
	return &AutoRun{log: log, tick: tick, interval: DefaultInterval}
}

// Enable arms the scheduler at the given interval. Enabling an armed
// scheduler only updates the interval, picked up on the next tick.
func (r *AutoRun) Enable(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.mu.Lock()
	r.interval = interval
	if r.enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = true
	stop := make(chan struct{})
	r.stop = stop
	r.mu.Unlock()

	go r.loop(stop)
	r.log.WithField("interval", interval.String()).Info("Auto-run enabled")
}

// Disable stops the scheduler. Idempotent; it does not wait for a callback
// already in flight, which finishes on its own.
func (r *AutoRun) Disable() {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = false
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	close(stop)
	r.log.Info("Auto-run disabled")
}

// SetInterval changes the tick period. The change applies from the next tick;
// the current wait is not restarted. A non-positive value falls back to the
// default.
func (r *AutoRun) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.mu.Lock()
	r.interval = interval
	r.mu.Unlock()
}

func (r *AutoRun) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *AutoRun) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

func (r *AutoRun) loop(stop chan struct{}) {
	timer := time.NewTimer(r.Interval())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			if r.currentLoop(stop) {
				r.tick()
			}
			timer.Reset(r.Interval())
		}
	}
}

// currentLoop guards against a stale loop racing a rapid disable/enable
// cycle: only the loop holding the live stop channel may dispatch.
func (r *AutoRun) currentLoop(stop chan struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled && r.stop == stop
}
