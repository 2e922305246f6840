// Package priority implements the priority-ordered dispatcher variants:
// strictly-ordered (highest priority always runs first), quoted
// round-robin (each priority gets a bounded quota per round), and
// one-per-priority (one dedicated worker goroutine per priority level).
package priority

import (
	"container/heap"
	"context"
	"sync"

	"github.com/sobjgo/actorcore/dispatcher"
)

// pqItem is one entry in the priority heap.
type pqItem struct {
	demand dispatcher.Demand
	seq    uint64 // insertion order, for FIFO-within-priority tie-breaking
}

type priorityHeap []pqItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].demand.Priority != h[j].demand.Priority {
		return h[i].demand.Priority > h[j].demand.Priority
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)         { *h = append(*h, x.(pqItem)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// StrictlyOrdered is a single-worker dispatcher where a higher-priority
// demand always runs before any lower-priority demand already queued,
// preempting only at handler boundaries (never mid-handler).
type StrictlyOrdered struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    priorityHeap
	seq     uint64
	cancel  context.CancelFunc
}

// NewStrictlyOrdered constructs a strictly-ordered priority dispatcher.
func NewStrictlyOrdered() *StrictlyOrdered {
	d := &StrictlyOrdered{}
	d.cond = sync.NewCond(&d.mu)
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.loop(ctx)
	return d
}

func init() {
	dispatcher.Register("priority_strictly_ordered", func(name string) (dispatcher.Binder, error) {
		return strictlyOrderedBinder{NewStrictlyOrdered()}, nil
	})
}

func (d *StrictlyOrdered) push(demand dispatcher.Demand) {
	d.mu.Lock()
	d.seq++
	heap.Push(&d.heap, pqItem{demand: demand, seq: d.seq})
	d.cond.Signal()
	d.mu.Unlock()
}

func (d *StrictlyOrdered) loop(ctx context.Context) {
	for {
		d.mu.Lock()
		for d.heap.Len() == 0 {
			select {
			case <-ctx.Done():
				d.mu.Unlock()
				return
			default:
			}
			d.cond.Wait()
			select {
			case <-ctx.Done():
				d.mu.Unlock()
				return
			default:
			}
		}
		item := heap.Pop(&d.heap).(pqItem)
		d.mu.Unlock()
		item.demand.Run()
	}
}

func (d *StrictlyOrdered) Stop() { d.cancel() }

type strictlyOrderedQueue struct {
	d       *StrictlyOrdered
	agentID uint64
}

func (q *strictlyOrderedQueue) Push(d dispatcher.Demand) {
	d.AgentID = q.agentID
	q.d.push(d)
}
func (q *strictlyOrderedQueue) PushEvtStart(d dispatcher.Demand) {
	d.Priority = dispatcher.PriorityHighest
	q.Push(d)
}
func (q *strictlyOrderedQueue) PushEvtFinish(d dispatcher.Demand) {
	d.Priority = dispatcher.PriorityHighest
	q.Push(d)
}

type strictlyOrderedBinder struct{ d *StrictlyOrdered }

func (b strictlyOrderedBinder) Bind(agentID uint64) (dispatcher.Queue, error) {
	return &strictlyOrderedQueue{d: b.d, agentID: agentID}, nil
}
func (b strictlyOrderedBinder) Unbind(uint64) {}
