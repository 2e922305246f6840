package dispatcher

import (
	"context"
	"sync"
)

// activeObjectDispatcher gives every bound agent its own dedicated
// goroutine: the active-object pattern. Demands for one agent are
// strictly ordered; different agents run fully in parallel.
type activeObjectDispatcher struct {
	mu      sync.Mutex
	lanes   map[uint64]chan Demand
	cancels map[uint64]context.CancelFunc
	factory WorkThreadFactory
}

// NewActiveObject constructs an active-object dispatcher using factory
// (or NativeGoroutineFactory if nil) to create each agent's thread.
func NewActiveObject(factory WorkThreadFactory) Binder {
	if factory == nil {
		factory = NativeGoroutineFactory{}
	}
	return &activeObjectDispatcher{
		lanes:   make(map[uint64]chan Demand),
		cancels: make(map[uint64]context.CancelFunc),
		factory: factory,
	}
}

func init() {
	Register("active_object", func(name string) (Binder, error) {
		return NewActiveObject(nil), nil
	})
}

func (d *activeObjectDispatcher) Bind(agentID uint64) (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	thread, err := d.factory.Acquire()
	if err != nil {
		return nil, err
	}

	lane := make(chan Demand, 256)
	ctx, cancel := context.WithCancel(context.Background())
	d.lanes[agentID] = lane
	d.cancels[agentID] = cancel

	thread.Run(func() {
		defer d.factory.Release(thread)
		for {
			select {
			case <-ctx.Done():
				return
			case demand := <-lane:
				demand.Run()
			}
		}
	})

	return &activeObjectQueue{agentID: agentID, lane: lane}, nil
}

func (d *activeObjectDispatcher) Unbind(agentID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.cancels[agentID]; ok {
		cancel()
		delete(d.cancels, agentID)
	}
	delete(d.lanes, agentID)
}

type activeObjectQueue struct {
	agentID uint64
	lane    chan Demand
}

func (q *activeObjectQueue) Push(d Demand)          { d.AgentID = q.agentID; q.lane <- d }
func (q *activeObjectQueue) PushEvtStart(d Demand)  { d.AgentID = q.agentID; q.lane <- d }
func (q *activeObjectQueue) PushEvtFinish(d Demand) { d.AgentID = q.agentID; q.lane <- d }
