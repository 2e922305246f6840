package dispatcher

import "sync"

// nefThreadPoolDispatcher wraps a thread-pool dispatcher and preallocates
// each bound agent's evt_finish Demand slot at Bind time, so
// PushEvtFinish has no error path at all -- the "nef" ("no exceptions, no
// failures") guarantee for push_evt_finish. The inner thread-pool queue
// still appends the demand to the agent's pending slice, which may
// allocate.
type nefThreadPoolDispatcher struct {
	inner Binder

	mu        sync.Mutex
	finishers map[uint64]*Demand
}

// NewNefThreadPool constructs a nef-thread-pool dispatcher over an
// underlying thread-pool dispatcher with the given worker/batch sizes.
func NewNefThreadPool(workerCount, maxAtOnce int) Binder {
	return &nefThreadPoolDispatcher{
		inner:     NewThreadPool(workerCount, maxAtOnce),
		finishers: make(map[uint64]*Demand),
	}
}

func init() {
	Register("nef_thread_pool", func(name string) (Binder, error) {
		return NewNefThreadPool(4, 4), nil
	})
}

func (d *nefThreadPoolDispatcher) Bind(agentID uint64) (Queue, error) {
	inner, err := d.inner.Bind(agentID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.finishers[agentID] = &Demand{}
	d.mu.Unlock()
	return &nefThreadPoolQueue{inner: inner, d: d, agentID: agentID}, nil
}

func (d *nefThreadPoolDispatcher) Unbind(agentID uint64) {
	d.mu.Lock()
	delete(d.finishers, agentID)
	d.mu.Unlock()
	d.inner.Unbind(agentID)
}

type nefThreadPoolQueue struct {
	inner   Queue
	d       *nefThreadPoolDispatcher
	agentID uint64
}

func (q *nefThreadPoolQueue) Push(d Demand)         { q.inner.Push(d) }
func (q *nefThreadPoolQueue) PushEvtStart(d Demand) { q.inner.PushEvtStart(d) }

// PushEvtFinish copies d into the Demand slot preallocated at Bind time and
// pushes that to the inner queue. It has no error path; the inner queue's
// append may still allocate.
func (q *nefThreadPoolQueue) PushEvtFinish(d Demand) {
	q.d.mu.Lock()
	slot := q.d.finishers[q.agentID]
	q.d.mu.Unlock()
	if slot == nil {
		q.inner.PushEvtFinish(d)
		return
	}
	*slot = d
	q.inner.PushEvtFinish(*slot)
}
