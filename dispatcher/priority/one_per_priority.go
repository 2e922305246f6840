package priority

import (
	"context"

	"github.com/sobjgo/actorcore/dispatcher"
)

// OnePerPriority dedicates one worker goroutine to each priority level.
// Every level makes independent forward progress; a flood of Highest-
// priority demands can never block Lowest-priority demands from running,
// at the cost of running several priorities fully in parallel (weaker
// ordering than StrictlyOrdered, no starvation risk at all).
type OnePerPriority struct {
	lanes  [dispatcher.PriorityHighest + 1]chan dispatcher.Demand
	cancel context.CancelFunc
}

// NewOnePerPriority constructs a one-worker-per-priority dispatcher.
func NewOnePerPriority(capacityPerLane int) *OnePerPriority {
	if capacityPerLane <= 0 {
		capacityPerLane = 256
	}
	d := &OnePerPriority{}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for p := dispatcher.PriorityLowest; p <= dispatcher.PriorityHighest; p++ {
		lane := make(chan dispatcher.Demand, capacityPerLane)
		d.lanes[p] = lane
		go func(lane chan dispatcher.Demand) {
			for {
				select {
				case <-ctx.Done():
					return
				case demand := <-lane:
					demand.Run()
				}
			}
		}(lane)
	}
	return d
}

func init() {
	dispatcher.Register("priority_one_per_priority", func(name string) (dispatcher.Binder, error) {
		return onePerPriorityBinder{NewOnePerPriority(0)}, nil
	})
}

func (d *OnePerPriority) push(demand dispatcher.Demand) {
	d.lanes[demand.Priority] <- demand
}

func (d *OnePerPriority) Stop() { d.cancel() }

type onePerPriorityQueue struct {
	d       *OnePerPriority
	agentID uint64
}

func (q *onePerPriorityQueue) Push(d dispatcher.Demand) {
	d.AgentID = q.agentID
	q.d.push(d)
}
func (q *onePerPriorityQueue) PushEvtStart(d dispatcher.Demand) {
	d.Priority = dispatcher.PriorityHighest
	q.Push(d)
}
func (q *onePerPriorityQueue) PushEvtFinish(d dispatcher.Demand) {
	d.Priority = dispatcher.PriorityHighest
	q.Push(d)
}

type onePerPriorityBinder struct{ d *OnePerPriority }

func (b onePerPriorityBinder) Bind(agentID uint64) (dispatcher.Queue, error) {
	return &onePerPriorityQueue{d: b.d, agentID: agentID}, nil
}
func (b onePerPriorityBinder) Unbind(uint64) {}
