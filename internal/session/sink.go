package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one recorded failure. Warning events carry degraded-but-usable
// outcomes (a snapshot that failed to parse); non-warning events ended the
// operation that reported them.
type Event struct {
	Op      string
	Err     error
	Warning bool
	At      time.Time
}

// Sink records the most recent failure of a session. A fatal report runs the
// onFatal hook, which the controller uses to disable auto-run and force the
// session idle. The last event is retained until cleared or superseded.
type Sink struct {
	log     *logrus.Logger
	onFatal func()

	mu   sync.Mutex
	last *Event
}

func NewSink(log *logrus.Logger, onFatal func()) *Sink {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}
	return &Sink{log: log, onFatal: onFatal}
}

// Report records a fatal failure and runs the onFatal hook. A nil error is
// ignored.
func (s *Sink) Report(op string, err error) {
	if err == nil {
		return
	}
	ev := Event{Op: op, Err: err, At: time.Now()}
	s.mu.Lock()
	s.last = &ev
	s.mu.Unlock()

	s.log.WithError(err).WithField("op", op).Error("Session operation failed")
	if s.onFatal != nil {
		s.onFatal()
	}
}

// Warn records a warning-class failure. No hook runs; the session keeps
// going.
func (s *Sink) Warn(op string, err error) {
	if err == nil {
		return
	}
	ev := Event{Op: op, Err: err, Warning: true, At: time.Now()}
	s.mu.Lock()
	s.last = &ev
	s.mu.Unlock()

	s.log.WithError(err).WithField("op", op).Warn("Session operation degraded")
}

// Last returns the most recent event, if any.
func (s *Sink) Last() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Event{}, false
	}
	return *s.last, true
}

// Clear drops the retained event.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}
