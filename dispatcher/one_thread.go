package dispatcher

import (
	"context"
	"sync"
)

// oneThreadDispatcher runs every bound agent's demands on a single
// goroutine, strictly FIFO. The simplest dispatcher in the family: no
// per-agent bookkeeping is needed since there is only ever one consumer.
type oneThreadDispatcher struct {
	mu      sync.Mutex
	demands chan Demand
	agents  map[uint64]bool
	tracker ActivityTracker
	cancel  context.CancelFunc
}

// NewOneThread constructs a one-thread dispatcher with the given queue
// capacity.
func NewOneThread(capacity int) Binder {
	return &oneThreadDispatcher{
		demands: make(chan Demand, capacity),
		agents:  make(map[uint64]bool),
	}
}

func init() {
	Register("one_thread", func(name string) (Binder, error) {
		return NewOneThread(1024), nil
	})
}

func (d *oneThreadDispatcher) Bind(agentID uint64) (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agentID] = true
	return &oneThreadQueue{d: d, agentID: agentID}, nil
}

func (d *oneThreadDispatcher) Unbind(agentID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, agentID)
}

func (d *oneThreadDispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.loop(runCtx)
	return nil
}

func (d *oneThreadDispatcher) Stop(context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func (d *oneThreadDispatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case demand := <-d.demands:
			if d.tracker != nil {
				d.tracker.RecordWorking(0, demand)
			}
			demand.Run()
			if d.tracker != nil {
				d.tracker.RecordWaiting(0)
			}
		}
	}
}

type oneThreadQueue struct {
	d       *oneThreadDispatcher
	agentID uint64
}

func (q *oneThreadQueue) Push(d Demand)          { d.AgentID = q.agentID; q.d.demands <- d }
func (q *oneThreadQueue) PushEvtStart(d Demand)  { d.AgentID = q.agentID; q.d.demands <- d }
func (q *oneThreadQueue) PushEvtFinish(d Demand) { d.AgentID = q.agentID; q.d.demands <- d }
