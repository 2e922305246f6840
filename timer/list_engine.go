package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type listEntry struct {
	key      uuid.UUID
	fireAt   time.Time
	period   time.Duration
	deliver  Deliverer
	canceled bool
}

// ListEngine keeps pending timers in a slice sorted by fire time,
// re-sorting on each insert. O(n) per schedule instead of the heap
// engine's O(log n), but simpler and cache-friendly for the small timer
// counts typical of a single cooperation's housekeeping timers. Grounded
// on original_source's timer_list mechanism (create_timer_list_thread),
// the simplest of the three original engines.
type ListEngine struct {
	mu      sync.Mutex
	entries []*listEntry
	wake    chan struct{}
	done    chan struct{}
}

// NewListEngine constructs a sorted-list timer Engine.
func NewListEngine() *ListEngine {
	return &ListEngine{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (e *ListEngine) Start(ctx context.Context) {
	go e.loop(ctx)
}

func (e *ListEngine) Stop() {
	close(e.done)
}

func (e *ListEngine) ScheduleAt(fireAt time.Time, period time.Duration, deliver Deliverer) uuid.UUID {
	key := uuid.New()
	ent := &listEntry{key: key, fireAt: fireAt, period: period, deliver: deliver}

	e.mu.Lock()
	e.entries = append(e.entries, ent)
	sort.Slice(e.entries, func(i, j int) bool { return e.entries[i].fireAt.Before(e.entries[j].fireAt) })
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return key
}

func (e *ListEngine) Cancel(key uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, ent := range e.entries {
		if ent.key == key {
			ent.canceled = true
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			return
		}
	}
}

func (e *ListEngine) loop(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		e.mu.Lock()
		var wait time.Duration = time.Hour
		if len(e.entries) > 0 {
			wait = time.Until(e.entries[0].fireAt)
			if wait < 0 {
				wait = 0
			}
		}
		e.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-e.wake:
			continue
		case <-timer.C:
			e.fireDue()
		}
	}
}

func (e *ListEngine) fireDue() {
	now := time.Now()
	var due []*listEntry

	e.mu.Lock()
	i := 0
	for ; i < len(e.entries); i++ {
		if e.entries[i].fireAt.After(now) {
			break
		}
		if !e.entries[i].canceled {
			due = append(due, e.entries[i])
		}
	}
	e.entries = e.entries[i:]
	e.mu.Unlock()

	for _, ent := range due {
		ent.deliver()
		if ent.period > 0 && !ent.canceled {
			e.mu.Lock()
			ent.fireAt = now.Add(ent.period)
			e.entries = append(e.entries, ent)
			sort.Slice(e.entries, func(i, j int) bool { return e.entries[i].fireAt.Before(e.entries[j].fireAt) })
			e.mu.Unlock()
		}
	}
}
