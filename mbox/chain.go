package mbox

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sobjgo/actorcore/dispatcher"
	"github.com/sobjgo/actorcore/message"
	"github.com/sobjgo/actorcore/subscription"
)

// MemoryPolicy controls whether a Chain preallocates its backing storage
// (Preallocated) up to Capacity, or grows it on demand (Dynamic).
type MemoryPolicy int

const (
	Preallocated MemoryPolicy = iota
	Dynamic
)

// OverflowPolicy controls what Send does when a bounded Chain is full.
type OverflowPolicy int

const (
	// DropNewest discards the message being sent.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the head of the queue to make room.
	DropOldest
	// Throw returns ErrChainFull to the sender.
	Throw
	// WaitTimeout blocks the sender until space frees up or the chain is
	// closed (then Send returns ErrChainClosed). The wait has no deadline.
	WaitTimeout
	// AbortApp treats overflow as fatal; the caller is expected to
	// terminate the process.
	AbortApp
)

// Chain is a bounded or unbounded FIFO queue usable as an Mbox: a
// so_5-style mchain. Capacity <= 0 means unbounded. Unlike mpmcMbox/
// mpscMbox, a Chain is dual-natured: it is always pulled from directly via
// Receive/Drain/Select, and it also satisfies Mbox so Send/SendDelayed/
// SendPeriodic and the Subscribe-based handlers can target a chain exactly
// as they would any other mbox.
type Chain struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	id       ID
	queue    []message.Ref
	capacity int
	overflow OverflowPolicy
	memory   MemoryPolicy

	closed bool
	retain bool

	storage subscription.Storage
	filters map[subscription.Key]Filter
	hook    DeliveryHook
}

// NewChain constructs a Chain identified by id. capacity <= 0 means
// unbounded, in which case overflow is never consulted.
func NewChain(id ID, capacity int, overflow OverflowPolicy, memory MemoryPolicy) *Chain {
	c := &Chain{
		id:       id,
		capacity: capacity,
		overflow: overflow,
		memory:   memory,
		storage:  DefaultStorageFactory(),
		filters:  make(map[subscription.Key]Filter),
	}
	if memory == Preallocated && capacity > 0 {
		c.queue = make([]message.Ref, 0, capacity)
	}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return c
}

// Send pushes r onto the chain, applying the configured OverflowPolicy if
// the chain is at capacity. Returns ErrChainClosed if the chain has been
// closed.
func (c *Chain) Send(r message.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChainClosed
	}
	if c.capacity > 0 && len(c.queue) >= c.capacity {
		switch c.overflow {
		case DropNewest:
			return nil
		case DropOldest:
			c.queue = c.queue[1:]
		case Throw:
			return ErrChainFull
		case AbortApp:
			return ErrChainAbort
		case WaitTimeout:
			for c.capacity > 0 && len(c.queue) >= c.capacity && !c.closed {
				c.notFull.Wait()
			}
			if c.closed {
				return ErrChainClosed
			}
		}
	}
	c.queue = append(c.queue, r)
	c.notEmpty.Signal()
	return nil
}

// TrySend attempts a non-blocking send, ignoring WaitTimeout (treated as
// Throw in the non-blocking path). Used by Select's send cases; timer
// deliveries go through Deliver, which calls Send.
func (c *Chain) TrySend(r message.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChainClosed
	}
	if c.capacity > 0 && len(c.queue) >= c.capacity {
		switch c.overflow {
		case DropOldest:
			c.queue = c.queue[1:]
		case DropNewest:
			return nil
		default:
			return ErrChainFull
		}
	}
	c.queue = append(c.queue, r)
	c.notEmpty.Signal()
	return nil
}

// receiveOptions configures Receive/Select blocking behavior.
type receiveOptions struct {
	handleN      int
	emptyTimeout time.Duration
	totalTime    time.Duration
}

// ReceiveOption configures a Receive or ReceiveCase call.
type ReceiveOption func(*receiveOptions)

// HandleN stops Receive's caller-facing Drain helper after n messages.
func HandleN(n int) ReceiveOption {
	return func(o *receiveOptions) { o.handleN = n }
}

// EmptyTimeout bounds how long Receive waits for the first message.
func EmptyTimeout(d time.Duration) ReceiveOption {
	return func(o *receiveOptions) { o.emptyTimeout = d }
}

// TotalTime bounds the overall duration of a Drain call regardless of how
// many messages have been handled.
func TotalTime(d time.Duration) ReceiveOption {
	return func(o *receiveOptions) { o.totalTime = d }
}

// Receive blocks for up to EmptyTimeout (or indefinitely if unset) for the
// next message. Returns ErrChainClosed once the chain is closed and
// drained (or immediately if CloseDropContent was used).
func (c *Chain) Receive(opts ...ReceiveOption) (message.Ref, error) {
	o := receiveOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Time{}
	if o.emptyTimeout > 0 {
		deadline = time.Now().Add(o.emptyTimeout)
	}

	for len(c.queue) == 0 {
		if c.closed {
			return message.Ref{}, ErrChainClosed
		}
		if deadline.IsZero() {
			c.notEmpty.Wait()
			continue
		}
		if time.Now().After(deadline) {
			return message.Ref{}, ErrChainEmptyTimeout
		}
		// sync.Cond has no timed wait; approximate one with a short
		// unlock/sleep/relock poll, which is adequate for the coarse
		// empty-timeout granularity mchain callers expect.
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
		c.mu.Lock()
	}

	r := c.queue[0]
	c.queue = c.queue[1:]
	c.notFull.Signal()
	return r, nil
}

// Drain calls fn for up to HandleN messages (or until EmptyTimeout /
// TotalTime elapses, whichever first), mirroring so_5's
// receive(from(chain).handle_n(k).empty_timeout(t), handler) idiom.
func (c *Chain) Drain(fn func(message.Ref), opts ...ReceiveOption) (handled int, err error) {
	o := receiveOptions{handleN: -1}
	for _, apply := range opts {
		apply(&o)
	}

	deadline := time.Time{}
	if o.totalTime > 0 {
		deadline = time.Now().Add(o.totalTime)
	}

	for o.handleN < 0 || handled < o.handleN {
		remaining := o.emptyTimeout
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return handled, nil
			}
			if remaining == 0 || left < remaining {
				remaining = left
			}
		}
		r, recvErr := c.Receive(EmptyTimeout(remaining))
		if recvErr != nil {
			if recvErr == ErrChainEmptyTimeout {
				return handled, nil
			}
			return handled, recvErr
		}
		fn(r)
		handled++
	}
	return handled, nil
}

// CloseRetainContent closes the chain for further Send calls but lets
// Receive continue draining whatever is already queued. A Select SendCase
// pending against the chain when it closes is reported as a failed send
// (ErrChainClosed), not as a silent drop.
func (c *Chain) CloseRetainContent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.retain = true
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// CloseDropContent closes the chain and discards any queued content
// immediately; pending and future Receive calls get ErrChainClosed right
// away.
func (c *Chain) CloseDropContent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.retain = false
	c.queue = nil
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// Len reports the number of currently queued messages.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Closed reports whether the chain has been closed.
func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID implements Mbox.
func (c *Chain) ID() ID { return c.id }

// Kind implements Mbox.
func (c *Chain) Kind() Kind { return MChain }

// SetHook implements Mbox.
func (c *Chain) SetHook(h DeliveryHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = h
}

// Subscribe implements Mbox, registering h as a push-style consumer
// alongside whatever pulls the chain directly via Receive/Drain. Both
// styles see every message: Deliver always enqueues onto the chain first
// (so Receive/Drain keep working) and then also fans out to any matching
// Subscribe registrations, mirroring so_5's receive(from(chain), ...)
// treating an mchain as an ordinary mbox for that one call. A Limit
// attached with WithLimit is not recorded: a Chain applies no message
// limits.
func (c *Chain) Subscribe(msgType reflect.Type, state any, filter Filter, h subscription.Handler, opts ...SubscribeOption) error {
	if h == nil {
		return ErrNilHandler
	}
	cfg := resolveSubscribeOptions(opts)
	c.mu.Lock()
	defer c.mu.Unlock()

	key := subscription.Key{MsgType: msgType, State: state}
	if c.storage.Has(key) {
		return fmt.Errorf("%w: %s", ErrDuplicateSubscription, msgType)
	}
	c.storage.Insert(key, h, cfg.sink)
	if filter != nil {
		c.filters[key] = filter
	}
	if c.hook != nil {
		c.hook.OnSubscribe(c.id, key)
	}
	return nil
}

// Unsubscribe implements Mbox.
func (c *Chain) Unsubscribe(msgType reflect.Type, state any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := subscription.Key{MsgType: msgType, State: state}
	if !c.storage.Remove(key) {
		return fmt.Errorf("%w: %s", ErrNoSubscription, msgType)
	}
	delete(c.filters, key)
	if c.hook != nil {
		c.hook.OnUnsubscribe(c.id, key)
	}
	return nil
}

// DropSubscriptionForAllStates implements Mbox.
func (c *Chain) DropSubscriptionForAllStates(msgType reflect.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.storage.RemoveAllStates(msgType)
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscription, msgType)
	}
	for key := range c.filters {
		if key.MsgType == msgType {
			delete(c.filters, key)
		}
	}
	return nil
}

// HasSubscription implements Mbox.
func (c *Chain) HasSubscription(msgType reflect.Type, state any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.Has(subscription.Key{MsgType: msgType, State: state})
}

// Deliver implements Mbox: it enqueues r the same way Send does (applying
// the chain's OverflowPolicy), then additionally fans it out to any
// Subscribe registrations matching r's type and currentState, so a chain
// targeted by Send behaves like an ordinary mbox to its push-style
// subscribers while still being drainable by Receive/Drain.
func (c *Chain) Deliver(r message.Ref, currentState any) error {
	if err := c.Send(r); err != nil {
		return err
	}

	c.mu.Lock()
	entries := c.storage.Entries()
	hook := c.hook
	filters := c.filters
	c.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}

	msgType := r.Type()
	for _, e := range entries {
		if e.Key.MsgType != msgType {
			continue
		}
		if e.Key.State != nil && e.Key.State != currentState {
			continue
		}
		payload := r.Payload()
		if f, ok := filters[e.Key]; ok && !f(payload) {
			continue
		}
		if hook != nil {
			hook.OnDeliver(c.id, e.Key, payload)
		}
		if e.Sink != nil {
			pushDemand(e.Sink, nil, hook, c.id, e.Key, e.Handler, payload)
			continue
		}
		if err := e.Handler(payload); err != nil {
			return err
		}
	}
	return nil
}
