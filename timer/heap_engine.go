package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type heapEntry struct {
	key      uuid.UUID
	fireAt   time.Time
	period   time.Duration
	deliver  Deliverer
	canceled bool
	index    int
}

type entryHeap []*heapEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x any) {
	e := x.(*heapEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// HeapEngine schedules timers on a container/heap priority queue keyed by
// fire time, woken by a single timer.Timer reset to the next deadline.
// Grounded on original_source's timer_heap mechanism
// (create_timer_heap_thread).
type HeapEngine struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*heapEntry
	pq      entryHeap
	wake    chan struct{}
	done    chan struct{}
}

// NewHeapEngine constructs a heap-backed timer Engine.
func NewHeapEngine(initialCapacity int) *HeapEngine {
	e := &HeapEngine{
		entries: make(map[uuid.UUID]*heapEntry, initialCapacity),
		pq:      make(entryHeap, 0, initialCapacity),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	return e
}

func (e *HeapEngine) Start(ctx context.Context) {
	go e.loop(ctx)
}

func (e *HeapEngine) Stop() {
	close(e.done)
}

func (e *HeapEngine) ScheduleAt(fireAt time.Time, period time.Duration, deliver Deliverer) uuid.UUID {
	key := uuid.New()
	ent := &heapEntry{key: key, fireAt: fireAt, period: period, deliver: deliver}

	e.mu.Lock()
	e.entries[key] = ent
	heap.Push(&e.pq, ent)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return key
}

func (e *HeapEngine) Cancel(key uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[key]; ok {
		ent.canceled = true
		delete(e.entries, key)
	}
}

func (e *HeapEngine) loop(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.mu.Lock()
		for e.pq.Len() > 0 && e.pq[0].canceled {
			heap.Pop(&e.pq)
		}
		var wait time.Duration
		if e.pq.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(e.pq[0].fireAt)
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

func (e *HeapEngine) fireDue() {
	now := time.Now()
	var due []*heapEntry
	e.mu.Lock()
	for e.pq.Len() > 0 && (e.pq[0].canceled || !e.pq[0].fireAt.After(now)) {
		ent := heap.Pop(&e.pq).(*heapEntry)
		if ent.canceled {
			continue
		}
		due = append(due, ent)
		if ent.period > 0 {
			ent.fireAt = now.Add(ent.period)
			heap.Push(&e.pq, ent)
		} else {
			delete(e.entries, ent.key)
		}
	}
	e.mu.Unlock()

	// Deliveries run outside the lock: do_deliver_message_from_timer must
	// never block the engine's own dispatch loop on subscriber work.
	for _, ent := range due {
		ent.deliver()
	}
}
