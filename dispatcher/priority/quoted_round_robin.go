package priority

import (
	"context"
	"sync"

	"github.com/sobjgo/actorcore/dispatcher"
)

// QuotedRoundRobin gives each priority level a bounded quota of demands it
// may run per round; once a level exhausts its quota (or runs dry), the
// worker moves to the next level, cycling back to the highest level after
// the lowest. This keeps a flood of high-priority traffic from starving
// low-priority agents completely, unlike StrictlyOrdered.
type QuotedRoundRobin struct {
	mu     sync.Mutex
	cond   *sync.Cond
	lanes  [dispatcher.PriorityHighest + 1][]dispatcher.Demand
	quotas [dispatcher.PriorityHighest + 1]int
	cancel context.CancelFunc
}

// NewQuotedRoundRobin constructs a quoted-round-robin dispatcher. quotas
// maps each priority level to how many of its demands run per round
// before the worker advances; a zero quota defaults to 1.
func NewQuotedRoundRobin(quotas map[dispatcher.Priority]int) *QuotedRoundRobin {
	d := &QuotedRoundRobin{}
	d.cond = sync.NewCond(&d.mu)
	for p := dispatcher.PriorityLowest; p <= dispatcher.PriorityHighest; p++ {
		q := quotas[p]
		if q <= 0 {
			q = 1
		}
		d.quotas[p] = q
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.loop(ctx)
	return d
}

func init() {
	dispatcher.Register("priority_quoted_round_robin", func(name string) (dispatcher.Binder, error) {
		return quotedRoundRobinBinder{NewQuotedRoundRobin(nil)}, nil
	})
}

func (d *QuotedRoundRobin) push(demand dispatcher.Demand) {
	d.mu.Lock()
	d.lanes[demand.Priority] = append(d.lanes[demand.Priority], demand)
	d.cond.Signal()
	d.mu.Unlock()
}

func (d *QuotedRoundRobin) anyPending() bool {
	for _, lane := range d.lanes {
		if len(lane) > 0 {
			return true
		}
	}
	return false
}

func (d *QuotedRoundRobin) loop(ctx context.Context) {
	for {
		d.mu.Lock()
		for !d.anyPending() {
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

		var batch []dispatcher.Demand
		for p := dispatcher.PriorityHighest; p >= dispatcher.PriorityLowest; p-- {
			lane := d.lanes[p]
			if len(lane) == 0 {
				continue
			}
			n := d.quotas[p]
			if n > len(lane) {
				n = len(lane)
			}
			batch = append(batch, lane[:n]...)
			d.lanes[p] = lane[n:]
		}
		d.mu.Unlock()

		for _, demand := range batch {
			demand.Run()
		}
	}
}

func (d *QuotedRoundRobin) Stop() { d.cancel() }

// Bind returns a Queue feeding this QuotedRoundRobin directly, for callers
// that built one with NewQuotedRoundRobin to get non-default quotas rather
// than going through the "priority_quoted_round_robin" registry entry
// (which always uses a quota of 1 per level).
func (d *QuotedRoundRobin) Bind(agentID uint64) (dispatcher.Queue, error) {
	return &quotedRoundRobinQueue{d: d, agentID: agentID}, nil
}

type quotedRoundRobinQueue struct {
	d       *QuotedRoundRobin
	agentID uint64
}

func (q *quotedRoundRobinQueue) Push(d dispatcher.Demand) {
	d.AgentID = q.agentID
	q.d.push(d)
}
func (q *quotedRoundRobinQueue) PushEvtStart(d dispatcher.Demand) {
	d.Priority = dispatcher.PriorityHighest
	q.Push(d)
}
func (q *quotedRoundRobinQueue) PushEvtFinish(d dispatcher.Demand) {
	d.Priority = dispatcher.PriorityHighest
	q.Push(d)
}

type quotedRoundRobinBinder struct{ d *QuotedRoundRobin }

func (b quotedRoundRobinBinder) Bind(agentID uint64) (dispatcher.Queue, error) {
	return &quotedRoundRobinQueue{d: b.d, agentID: agentID}, nil
}
func (b quotedRoundRobinBinder) Unbind(uint64) {}
