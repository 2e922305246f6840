// Package timer implements the timer service: a schedule/single_timer API
// returning a cancellable timer ID, backed by one of three interchangeable
// engines (wheel, heap, list) behind a common Engine interface. Grounded on
// original_source/dev/so_5/h/timers.hpp's timer_thread_t interface
// (start/finish/schedule) and, for periodic cron-style scheduling, on the
// teacher's modules/scheduler/scheduler.go worker-pool pattern.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sobjgo/actorcore/logger"
)

// ID identifies a scheduled timer entry and lets the caller cancel it.
// Mirrors so_5's timer_id_t: copyable, and release()/Cancel() is
// idempotent.
type ID struct {
	key string
}

// Deliverer is called when a timer fires. It must never block: engines
// call it directly from their own dispatch goroutine, and a slow
// deliverer would delay every other pending timer behind it. Callers that
// need to do real work should hand off to a dispatcher Queue instead of
// doing it inline.
type Deliverer func()

// Engine is the pluggable scheduling strategy a Service delegates to.
type Engine interface {
	// Start begins the engine's internal dispatch loop.
	Start(ctx context.Context)
	// Stop signals the engine's dispatch loop to exit. The wheel, heap and
	// list engines return at once without waiting for the loop, so a
	// delivery already under way may still finish after Stop returns.
	Stop()
	// ScheduleAt arranges for deliver to run at fireAt, then every period
	// thereafter (period == 0 means single-shot). Returns the internal
	// key used to cancel.
	ScheduleAt(fireAt time.Time, period time.Duration, deliver Deliverer) uuid.UUID
	// Cancel prevents a previously scheduled entry from firing again. It
	// has no effect on a delivery already in flight.
	Cancel(key uuid.UUID)
}

// Service is the environment-facing timer API: Schedule/SingleTimer.
type Service struct {
	engine Engine
	log    logger.Logger
	mu     sync.Mutex
	active map[string]uuid.UUID
}

// NewService constructs a Service over the given Engine. The engine's own
// dispatch loop is started immediately; call Stop to tear it down.
func NewService(engine Engine, log logger.Logger) *Service {
	if log == nil {
		log = logger.Noop{}
	}
	s := &Service{engine: engine, log: log, active: make(map[string]uuid.UUID)}
	s.engine.Start(context.Background())
	return s
}

// Stop shuts down the underlying engine. Per timer_thread_t::finish(), the
// timer thread's own internal errors are never surfaced to callers of
// Schedule/Cancel; an engine that hits an unrecoverable internal error is
// expected to abort the process itself rather than return from Stop with
// pending work silently dropped.
func (s *Service) Stop() {
	s.engine.Stop()
}

// Schedule arranges for deliver to run once after delay, and then every
// period thereafter if period > 0. Returns an ID that can be used to
// cancel the timer; the returned ID remains valid (Cancel is a no-op) even
// after a single-shot timer has already fired.
func (s *Service) Schedule(delay, period time.Duration, deliver Deliverer) ID {
	key := s.engine.ScheduleAt(time.Now().Add(delay), period, deliver)
	id := ID{key: key.String()}
	s.mu.Lock()
	s.active[id.key] = key
	s.mu.Unlock()
	return id
}

// SingleTimer schedules a one-shot delivery after delay. Equivalent to
// Schedule(delay, 0, deliver).
func (s *Service) SingleTimer(delay time.Duration, deliver Deliverer) ID {
	return s.Schedule(delay, 0, deliver)
}

// Cancel releases a timer so it will not fire again. Safe to call more
// than once, and safe to call after the timer has already fired.
func (s *Service) Cancel(id ID) {
	s.mu.Lock()
	key, ok := s.active[id.key]
	delete(s.active, id.key)
	s.mu.Unlock()
	if ok {
		s.engine.Cancel(key)
	}
}
