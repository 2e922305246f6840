package dispatcher

import (
	"container/list"
	"context"
	"sync"
)

// agentQueue is one agent's private FIFO of pending demands plus whether
// it is currently registered on the dispatcher's work-conserving
// round-robin list.
type agentQueue struct {
	mu          sync.Mutex
	pending     []Demand
	inScheduler bool
	maxAtOnce   int
}

// threadPoolDispatcher is a queue-of-agent-queues: a fixed worker pool
// pulls the next ready agent from a shared round-robin list and drains up
// to maxAtOnce of its pending demands before yielding the agent back to
// the list, so one busy agent cannot starve its neighbors. Scheduling is
// work-conserving (a worker never idles while an agent is ready) and
// serves agents roughly in the order they became ready; that order is
// approximate, not a hard per-agent ordering guarantee.
// Adapted from the eventbus module's MemoryEventBus worker pool
// (handleEvents/queueEventHandler), generalized from "one worker per
// queued event" to "one worker drains a bounded batch per agent turn".
type threadPoolDispatcher struct {
	mu             sync.Mutex
	agents         map[uint64]*agentQueue
	ready          *list.List // of uint64 agent IDs awaiting a worker
	readyCond      *sync.Cond
	workerCount    int
	maxAtOnce      int
	cancel         context.CancelFunc
	tracker        ActivityTracker
}

// NewThreadPool constructs a thread-pool dispatcher with workerCount
// workers, each draining up to maxAtOnce demands per agent turn before
// moving on to the next ready agent.
func NewThreadPool(workerCount, maxAtOnce int) Binder {
	if workerCount <= 0 {
		workerCount = 4
	}
	if maxAtOnce <= 0 {
		maxAtOnce = 1
	}
	d := &threadPoolDispatcher{
		agents:      make(map[uint64]*agentQueue),
		ready:       list.New(),
		workerCount: workerCount,
		maxAtOnce:   maxAtOnce,
	}
	d.readyCond = sync.NewCond(&d.mu)
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < workerCount; i++ {
		go d.worker(ctx, i)
	}
	return d
}

func init() {
	Register("thread_pool", func(name string) (Binder, error) {
		return NewThreadPool(4, 4), nil
	})
}

func (d *threadPoolDispatcher) Bind(agentID uint64) (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	aq := &agentQueue{maxAtOnce: d.maxAtOnce}
	d.agents[agentID] = aq
	return &threadPoolQueue{d: d, agentID: agentID}, nil
}

func (d *threadPoolDispatcher) Unbind(agentID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, agentID)
}

func (d *threadPoolDispatcher) Stop(context.Context) error {
	d.cancel()
	d.readyCond.Broadcast()
	return nil
}

func (d *threadPoolDispatcher) push(agentID uint64, demand Demand) {
	d.mu.Lock()
	aq, ok := d.agents[agentID]
	if !ok {
		d.mu.Unlock()
		return
	}
	aq.mu.Lock()
	aq.pending = append(aq.pending, demand)
	needsSchedule := !aq.inScheduler
	if needsSchedule {
		aq.inScheduler = true
	}
	aq.mu.Unlock()
	if needsSchedule {
		d.ready.PushBack(agentID)
		d.readyCond.Signal()
	}
	d.mu.Unlock()
}

func (d *threadPoolDispatcher) worker(ctx context.Context, id int) {
	for {
		d.mu.Lock()
		for d.ready.Len() == 0 {
			select {
			case <-ctx.Done():
				d.mu.Unlock()
				return
			default:
			}
			d.readyCond.Wait()
			select {
			case <-ctx.Done():
				d.mu.Unlock()
				return
			default:
			}
		}
		elem := d.ready.Front()
		agentID := elem.Value.(uint64)
		d.ready.Remove(elem)
		aq, ok := d.agents[agentID]
		d.mu.Unlock()
		if !ok {
			continue
		}

		aq.mu.Lock()
		batch := aq.pending
		if len(batch) > aq.maxAtOnce {
			aq.pending = batch[aq.maxAtOnce:]
			batch = batch[:aq.maxAtOnce]
		} else {
			aq.pending = nil
		}
		stillHasWork := len(aq.pending) > 0
		if !stillHasWork {
			aq.inScheduler = false
		}
		aq.mu.Unlock()

		if d.tracker != nil {
			d.tracker.RecordWorking(id, Demand{AgentID: agentID})
		}
		for _, demand := range batch {
			demand.Run()
		}
		if d.tracker != nil {
			d.tracker.RecordWaiting(id)
		}

		if stillHasWork {
			d.mu.Lock()
			d.ready.PushBack(agentID)
			d.readyCond.Signal()
			d.mu.Unlock()
		}
	}
}

type threadPoolQueue struct {
	d       *threadPoolDispatcher
	agentID uint64
}

func (q *threadPoolQueue) Push(d Demand) {
	d.AgentID = q.agentID
	q.d.push(q.agentID, d)
}
func (q *threadPoolQueue) PushEvtStart(d Demand)  { q.Push(d) }
func (q *threadPoolQueue) PushEvtFinish(d Demand) { q.Push(d) }
