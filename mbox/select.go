package mbox

import (
	"time"

	"github.com/sobjgo/actorcore/message"
)

// ReceiveCase is one branch of a Select call that fires when a message
// becomes available on Chain.
type ReceiveCase struct {
	Chain   *Chain
	Handler func(message.Ref)
}

// SendCase is one branch of a Select call that fires when Chain has room
// to accept Payload. A SendCase against a chain that has been closed with
// CloseRetainContent is treated as a failed send (ErrChainClosed is
// reported via Select's return value), never as a silent no-op: existing
// readers may still be draining retained content and a new producer
// racing the close should not believe its message was queued.
type SendCase struct {
	Chain   *Chain
	Payload message.Ref
	OnSent  func()
}

// Select polls the given receive/send cases until exactly one fires or
// timeout elapses (timeout <= 0 means block indefinitely). It returns the
// index of the case that fired, or -1 with ErrChainEmptyTimeout if the
// deadline passed with nothing ready.
//
// This is a straightforward polling implementation rather than a native
// fan-in over channels: Chain uses a mutex/condvar pair (so overflow
// policies like DropOldest can mutate the queue under lock), which does
// not compose with Go's select statement the way channel-backed mboxes
// would. The poll interval is short enough that scenario-level latency is
// negligible for the dispatch rates this framework targets.
func Select(timeout time.Duration, receives []ReceiveCase, sends []SendCase) (int, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	const pollInterval = time.Millisecond

	for {
		for i := range receives {
			c := receives[i].Chain
			c.mu.Lock()
			ready := len(c.queue) > 0
			closed := c.closed && len(c.queue) == 0
			c.mu.Unlock()
			if closed {
				return i, ErrChainClosed
			}
			if ready {
				r, err := c.Receive(EmptyTimeout(time.Microsecond))
				if err == nil {
					receives[i].Handler(r)
					return i, nil
				}
			}
		}
		for i := range sends {
			c := sends[i].Chain
			c.mu.Lock()
			closedRetain := c.closed
			hasRoom := c.capacity <= 0 || len(c.queue) < c.capacity
			c.mu.Unlock()
			if closedRetain {
				return len(receives) + i, ErrChainClosed
			}
			if hasRoom {
				if err := c.TrySend(sends[i].Payload); err == nil {
					if sends[i].OnSent != nil {
						sends[i].OnSent()
					}
					return len(receives) + i, nil
				}
			}
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return -1, ErrChainEmptyTimeout
		}
		time.Sleep(pollInterval)
	}
}
