package mbox

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sobjgo/actorcore/dispatcher"
	"github.com/sobjgo/actorcore/message"
	"github.com/sobjgo/actorcore/subscription"
)

// mpmcMbox is a multi-subscriber mailbox. Every subscription matching a
// delivered message's (type, state) receives the same payload.
// Adapted from MemoryEventBus.Publish's topic-matching fan-out loop in the
// eventbus module, generalized from string topics to (type, state) keys and
// from direct handler invocation to a dispatcher.Queue handoff for
// subscriptions that carry a Sink (a subscription without one has its
// handler run inline by Deliver).
type mpmcMbox struct {
	mu      sync.RWMutex
	id      ID
	storage subscription.Storage
	filters map[subscription.Key]Filter
	limits  map[subscription.Key]*Limit
	hook    DeliveryHook

	// rotation tracks the next subscriber index to start a fan-out pass
	// from, so that under sustained load no single subscriber's state
	// transitions always win the race to observe a message first.
	rotation int
}

// NewMPMC constructs an empty multi-subscriber mbox using storage (or
// DefaultStorageFactory if storage is nil).
func NewMPMC(id ID, storage NewStorage) Mbox {
	if storage == nil {
		storage = DefaultStorageFactory
	}
	return &mpmcMbox{
		id:      id,
		storage: storage(),
		filters: make(map[subscription.Key]Filter),
		limits:  make(map[subscription.Key]*Limit),
	}
}

func (m *mpmcMbox) ID() ID     { return m.id }
func (m *mpmcMbox) Kind() Kind { return MPMC }

func (m *mpmcMbox) SetHook(h DeliveryHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

func (m *mpmcMbox) Subscribe(msgType reflect.Type, state any, filter Filter, h subscription.Handler, opts ...SubscribeOption) error {
	if h == nil {
		return ErrNilHandler
	}
	cfg := resolveSubscribeOptions(opts)
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subscription.Key{MsgType: msgType, State: state}
	if m.storage.Has(key) {
		return fmt.Errorf("%w: %s", ErrDuplicateSubscription, msgType)
	}
	m.storage.Insert(key, h, cfg.sink)
	if filter != nil {
		m.filters[key] = filter
	}
	if cfg.limit != nil {
		m.limits[key] = cfg.limit
	}
	if m.hook != nil {
		m.hook.OnSubscribe(m.id, key)
	}
	return nil
}

func (m *mpmcMbox) Unsubscribe(msgType reflect.Type, state any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subscription.Key{MsgType: msgType, State: state}
	if !m.storage.Remove(key) {
		return fmt.Errorf("%w: %s", ErrNoSubscription, msgType)
	}
	delete(m.filters, key)
	delete(m.limits, key)
	if m.hook != nil {
		m.hook.OnUnsubscribe(m.id, key)
	}
	return nil
}

func (m *mpmcMbox) DropSubscriptionForAllStates(msgType reflect.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.storage.RemoveAllStates(msgType)
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscription, msgType)
	}
	for key := range m.filters {
		if key.MsgType == msgType {
			delete(m.filters, key)
		}
	}
	for key := range m.limits {
		if key.MsgType == msgType {
			delete(m.limits, key)
		}
	}
	return nil
}

func (m *mpmcMbox) HasSubscription(msgType reflect.Type, state any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storage.Has(subscription.Key{MsgType: msgType, State: state})
}

func (m *mpmcMbox) Deliver(r message.Ref, currentState any) error {
	if r.Mutability() == message.Mutable {
		return ErrMutableOnMPMC
	}

	m.mu.RLock()
	entries := m.storage.Entries()
	hook := m.hook
	filters := m.filters
	limits := m.limits
	rotationStart := m.rotation
	m.mu.RUnlock()

	msgType := r.Type()
	var matches []subscription.Entry
	for _, e := range entries {
		if e.Key.MsgType != msgType {
			continue
		}
		if e.Key.State != nil && e.Key.State != currentState {
			continue
		}
		if f, ok := filters[e.Key]; ok && !f(r.Payload()) {
			continue
		}
		matches = append(matches, e)
	}
	if len(matches) == 0 {
		return nil
	}

	// Rotate the start point so sustained publish traffic does not always
	// favor the same subscriber's registration order.
	start := rotationStart % len(matches)
	for i := range matches {
		e := matches[(start+i)%len(matches)]
		payload := r.Payload()
		var limit *Limit

		if l, ok := limits[e.Key]; ok && l != nil {
			if !l.TryAcquire() {
				if hook != nil {
					hook.OnOverlimit(m.id, e.Key, l.Reaction)
				}
				switch l.Reaction {
				case ReactionTransform:
					if l.Transform != nil {
						payload = l.Transform(payload)
					}
					if l.Redirect != nil {
						if err := l.Redirect.Deliver(message.NewImmutable(payload), currentState); err != nil {
							return err
						}
						continue
					}
				case ReactionRedirect:
					if l.Redirect != nil {
						if err := l.Redirect.Deliver(r, currentState); err != nil {
							return err
						}
					}
					continue
				case ReactionAbortApp:
					AbortAppAction()
					continue
				default: // ReactionDrop, ReactionWait (never blocks a publisher on an mbox), ReactionNone
					continue
				}
			} else {
				limit = l
			}
		}

		if hook != nil {
			hook.OnDeliver(m.id, e.Key, payload)
		}
		if e.Sink != nil {
			pushDemand(e.Sink, limit, hook, m.id, e.Key, e.Handler, payload)
			continue
		}
		err := e.Handler(payload)
		limit.Release()
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.rotation++
	m.mu.Unlock()
	return nil
}

// pushDemand enqueues a dispatcher.Demand that invokes h with payload onto
// sink's bound Queue, rather than running h on the caller's own goroutine.
// Errors returned by h cannot propagate back to Deliver's caller once
// queued (the handler may run long after Deliver returns), the same
// asynchrony so_5's push()/event-queue split imposes; the queued demand
// discards them, and the tracing hook sees only the push itself
// (OnPushToQueue). limit, if
// non-nil, is released once the queued demand actually runs rather than
// when it is merely pushed, keeping the in-flight count honest.
func pushDemand(sink *subscription.Sink, limit *Limit, hook DeliveryHook, boxID ID, key subscription.Key, h subscription.Handler, payload any) {
	sink.Queue.Push(dispatcher.Demand{
		AgentID:    sink.AgentID,
		Priority:   sink.Priority,
		ThreadSafe: sink.ThreadSafe,
		Run: func() {
			_ = h(payload)
			limit.Release()
		},
	})
	if hook != nil {
		hook.OnPushToQueue(boxID, key)
	}
}
