package dispatcher

import (
	"container/list"
	"context"
	"sync"
)

// advAgentState is the per-agent-queue state machine: how many (and what
// kind of) demands are currently executing for this agent. Exactly one of
// these combinations holds at any instant:
//
//	idle             -- activeThreadSafe == 0 && activeExclusive == 0
//	oneThreadSafe    -- activeThreadSafe == 1 && activeExclusive == 0
//	manyThreadSafe   -- activeThreadSafe >  1 && activeExclusive == 0
//	oneExclusive     -- activeThreadSafe == 0 && activeExclusive == 1
//
// A thread-safe demand may start whenever activeExclusive == 0. An
// exclusive (not-thread-safe) demand may only start from idle.
type advAgentState struct {
	mu              sync.Mutex
	pending         []Demand
	activeThreadSafe int
	activeExclusive  int
	inScheduler      bool
}

func (s *advAgentState) canStart(d Demand) bool {
	if d.ThreadSafe {
		return s.activeExclusive == 0
	}
	return s.activeThreadSafe == 0 && s.activeExclusive == 0
}

// advThreadPoolDispatcher is the thread-safety-hint-aware variant of the
// thread pool: demands an agent marks ThreadSafe may run concurrently with
// each other (and interleave across agents), while non-thread-safe
// demands for a given agent still run one at a time and exclude every
// other demand for that same agent.
type advThreadPoolDispatcher struct {
	mu          sync.Mutex
	agents      map[uint64]*advAgentState
	readyAgents *list.List
	readyCond   *sync.Cond
	workerCount int
	cancel      context.CancelFunc
}

// NewAdvThreadPool constructs an adv-thread-pool dispatcher.
func NewAdvThreadPool(workerCount int) Binder {
	if workerCount <= 0 {
		workerCount = 4
	}
	d := &advThreadPoolDispatcher{
		agents:      make(map[uint64]*advAgentState),
		readyAgents: list.New(),
		workerCount: workerCount,
	}
	d.readyCond = sync.NewCond(&d.mu)
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < workerCount; i++ {
		go d.worker(ctx)
	}
	return d
}

func init() {
	Register("adv_thread_pool", func(name string) (Binder, error) {
		return NewAdvThreadPool(4), nil
	})
}

func (d *advThreadPoolDispatcher) Bind(agentID uint64) (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agentID] = &advAgentState{}
	return &advThreadPoolQueue{d: d, agentID: agentID}, nil
}

func (d *advThreadPoolDispatcher) Unbind(agentID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, agentID)
}

func (d *advThreadPoolDispatcher) Stop(context.Context) error {
	d.cancel()
	d.readyCond.Broadcast()
	return nil
}

func (d *advThreadPoolDispatcher) push(agentID uint64, demand Demand) {
	d.mu.Lock()
	st, ok := d.agents[agentID]
	if !ok {
		d.mu.Unlock()
		return
	}
	st.mu.Lock()
	st.pending = append(st.pending, demand)
	needsSchedule := !st.inScheduler
	st.inScheduler = true
	st.mu.Unlock()
	if needsSchedule {
		d.readyAgents.PushBack(agentID)
		d.readyCond.Signal()
	}
	d.mu.Unlock()
}

func (d *advThreadPoolDispatcher) worker(ctx context.Context) {
	for {
		d.mu.Lock()
		for d.readyAgents.Len() == 0 {
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

		// Scan the ready list for an agent with a demand this worker is
		// currently allowed to start; rotate agents it cannot serve yet
		// to the back so other workers still get a turn at them.
		var chosenAgent uint64
		var chosenDemand Demand
		found := false
		attempts := d.readyAgents.Len()
		for i := 0; i < attempts; i++ {
			elem := d.readyAgents.Front()
			agentID := elem.Value.(uint64)
			d.readyAgents.Remove(elem)

			st, ok := d.agents[agentID]
			if !ok {
				continue
			}
			st.mu.Lock()
			if len(st.pending) > 0 && st.canStart(st.pending[0]) {
				chosenDemand = st.pending[0]
				st.pending = st.pending[1:]
				if chosenDemand.ThreadSafe {
					st.activeThreadSafe++
				} else {
					st.activeExclusive++
				}
				stillHasWork := len(st.pending) > 0
				if !stillHasWork {
					st.inScheduler = false
				}
				st.mu.Unlock()
				chosenAgent = agentID
				found = true
				if stillHasWork {
					d.readyAgents.PushBack(agentID)
				}
				break
			}
			st.mu.Unlock()
			d.readyAgents.PushBack(agentID)
		}
		d.mu.Unlock()

		if !found {
			continue
		}

		chosenDemand.Run()

		d.mu.Lock()
		st := d.agents[chosenAgent]
		d.mu.Unlock()
		if st != nil {
			st.mu.Lock()
			if chosenDemand.ThreadSafe {
				st.activeThreadSafe--
			} else {
				st.activeExclusive--
			}
			st.mu.Unlock()
		}
		d.mu.Lock()
		d.readyCond.Broadcast()
		d.mu.Unlock()
	}
}

type advThreadPoolQueue struct {
	d       *advThreadPoolDispatcher
	agentID uint64
}

func (q *advThreadPoolQueue) Push(d Demand) {
	d.AgentID = q.agentID
	q.d.push(q.agentID, d)
}
func (q *advThreadPoolQueue) PushEvtStart(d Demand)  { q.Push(d) }
func (q *advThreadPoolQueue) PushEvtFinish(d Demand) { q.Push(d) }
