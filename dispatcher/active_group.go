package dispatcher

import (
	"context"
	"sync"
)

// activeGroupDispatcher is the active-object pattern generalized to
// groups: every agent bound under the same group name shares one
// goroutine and is therefore strictly serialized with its group-mates,
// while different groups run fully in parallel.
type activeGroupDispatcher struct {
	mu      sync.Mutex
	groups  map[string]chan Demand
	cancels map[string]context.CancelFunc
	members map[uint64]string
}

// NewActiveGroup constructs an active-group dispatcher.
func NewActiveGroup() *ActiveGroupBinder {
	return &ActiveGroupBinder{d: &activeGroupDispatcher{
		groups:  make(map[string]chan Demand),
		cancels: make(map[string]context.CancelFunc),
		members: make(map[uint64]string),
	}}
}

func init() {
	Register("active_group", func(name string) (Binder, error) {
		return NewActiveGroup(), nil
	})
}

// ActiveGroupBinder implements Binder. Use BindGroup to control which
// group an agent joins; plain Bind places the agent in a group named
// after its own agent ID, which degenerates to active-object semantics.
type ActiveGroupBinder struct{ d *activeGroupDispatcher }

func (b *ActiveGroupBinder) Bind(agentID uint64) (Queue, error) {
	return b.BindGroup(agentID, groupNameForAgent(agentID))
}

func groupNameForAgent(agentID uint64) string {
	return "agent-" + itoa(agentID)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// BindGroup binds agentID into the named group, creating the group's
// goroutine on first use.
func (b *ActiveGroupBinder) BindGroup(agentID uint64, group string) (Queue, error) {
	d := b.d
	d.mu.Lock()
	defer d.mu.Unlock()

	lane, ok := d.groups[group]
	if !ok {
		lane = make(chan Demand, 256)
		ctx, cancel := context.WithCancel(context.Background())
		d.groups[group] = lane
		d.cancels[group] = cancel
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case demand := <-lane:
					demand.Run()
				}
			}
		}()
	}
	d.members[agentID] = group
	return &activeGroupQueue{agentID: agentID, lane: lane}, nil
}

func (b *ActiveGroupBinder) Unbind(agentID uint64) {
	d := b.d
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.members[agentID]
	if !ok {
		return
	}
	delete(d.members, agentID)
	// Leave the group goroutine running: other agents may still be bound
	// to it. The Binder contract has no call that tears a group down, and
	// nothing else in actorcore stops a group goroutine either.
}

type activeGroupQueue struct {
	agentID uint64
	lane    chan Demand
}

func (q *activeGroupQueue) Push(d Demand)          { d.AgentID = q.agentID; q.lane <- d }
func (q *activeGroupQueue) PushEvtStart(d Demand)  { d.AgentID = q.agentID; q.lane <- d }
func (q *activeGroupQueue) PushEvtFinish(d Demand) { d.AgentID = q.agentID; q.lane <- d }
