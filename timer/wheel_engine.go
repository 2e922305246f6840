package timer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type wheelEntry struct {
	key      uuid.UUID
	deliver  Deliverer
	period   time.Duration
	rounds   int // how many more full revolutions before this entry is due
	canceled bool
}

// WheelEngine is a hashed timing wheel: WheelSize buckets advanced one at
// a time every Granularity, the classic O(1)-insert/O(1)-tick timer
// structure. Grounded on original_source's timer_wheel mechanism
// (create_timer_wheel_thread), which defaults to the same
// size+granularity parameterization.
type WheelEngine struct {
	mu          sync.Mutex
	buckets     [][]*wheelEntry
	current     int
	granularity time.Duration
	entries     map[uuid.UUID]*wheelEntry
	done        chan struct{}
}

// NewWheelEngine constructs a wheel Engine with wheelSize buckets, each
// representing one tick of granularity.
func NewWheelEngine(wheelSize int, granularity time.Duration) *WheelEngine {
	if wheelSize <= 0 {
		wheelSize = 512
	}
	if granularity <= 0 {
		granularity = 10 * time.Millisecond
	}
	return &WheelEngine{
		buckets:     make([][]*wheelEntry, wheelSize),
		granularity: granularity,
		entries:     make(map[uuid.UUID]*wheelEntry),
		done:        make(chan struct{}),
	}
}

func (e *WheelEngine) Start(ctx context.Context) {
	go e.loop(ctx)
}

func (e *WheelEngine) Stop() {
	close(e.done)
}

func (e *WheelEngine) slotFor(delay time.Duration) (bucket, rounds int) {
	ticks := int(delay / e.granularity)
	if ticks < 1 {
		ticks = 1
	}
	wheelSize := len(e.buckets)
	bucket = (e.current + ticks) % wheelSize
	rounds = ticks / wheelSize
	return
}

func (e *WheelEngine) ScheduleAt(fireAt time.Time, period time.Duration, deliver Deliverer) uuid.UUID {
	key := uuid.New()
	ent := &wheelEntry{key: key, deliver: deliver, period: period}

	e.mu.Lock()
	bucket, rounds := e.slotFor(time.Until(fireAt))
	ent.rounds = rounds
	e.buckets[bucket] = append(e.buckets[bucket], ent)
	e.entries[key] = ent
	e.mu.Unlock()

	return key
}

func (e *WheelEngine) Cancel(key uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[key]; ok {
		ent.canceled = true
		delete(e.entries, key)
	}
}

func (e *WheelEngine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.granularity)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *WheelEngine) tick() {
	e.mu.Lock()
	bucket := e.buckets[e.current]
	e.buckets[e.current] = nil
	e.current = (e.current + 1) % len(e.buckets)

	var due []*wheelEntry
	var requeue []*wheelEntry
	for _, ent := range bucket {
		if ent.canceled {
			continue
		}
		if ent.rounds > 0 {
			ent.rounds--
			requeue = append(requeue, ent)
			continue
		}
		due = append(due, ent)
	}
	for _, ent := range requeue {
		e.buckets[e.current] = append(e.buckets[e.current], ent)
	}
	for _, ent := range due {
		if ent.period > 0 && !ent.canceled {
			b, rounds := e.slotFor(ent.period)
			ent.rounds = rounds
			e.buckets[b] = append(e.buckets[b], ent)
		} else {
			delete(e.entries, ent.key)
		}
	}
	e.mu.Unlock()

	for _, ent := range due {
		ent.deliver()
	}
}
