package mbox

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sobjgo/actorcore/message"
	"github.com/sobjgo/actorcore/subscription"
)

// mpscMbox is a direct mbox: at most one subscriber, accepts both
// Immutable and Mutable envelopes, and rejects delivery filters outright
// (ErrFilterOnMPSC) since there is no fan-out ambiguity to filter.
type mpscMbox struct {
	mu      sync.RWMutex
	id      ID
	storage subscription.Storage
	limits  map[subscription.Key]*Limit
	hook    DeliveryHook
}

// NewMPSC constructs an empty direct mbox.
func NewMPSC(id ID, storage NewStorage) Mbox {
	if storage == nil {
		storage = DefaultStorageFactory
	}
	return &mpscMbox{id: id, storage: storage(), limits: make(map[subscription.Key]*Limit)}
}

func (m *mpscMbox) ID() ID     { return m.id }
func (m *mpscMbox) Kind() Kind { return MPSC }

func (m *mpscMbox) SetHook(h DeliveryHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

func (m *mpscMbox) Subscribe(msgType reflect.Type, state any, filter Filter, h subscription.Handler, opts ...SubscribeOption) error {
	if filter != nil {
		return ErrFilterOnMPSC
	}
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
	if cfg.limit != nil {
		m.limits[key] = cfg.limit
	}
	if m.hook != nil {
		m.hook.OnSubscribe(m.id, key)
	}
	return nil
}

func (m *mpscMbox) Unsubscribe(msgType reflect.Type, state any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subscription.Key{MsgType: msgType, State: state}
	if !m.storage.Remove(key) {
		return fmt.Errorf("%w: %s", ErrNoSubscription, msgType)
	}
	delete(m.limits, key)
	if m.hook != nil {
		m.hook.OnUnsubscribe(m.id, key)
	}
	return nil
}

func (m *mpscMbox) DropSubscriptionForAllStates(msgType reflect.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.storage.RemoveAllStates(msgType)
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscription, msgType)
	}
	for key := range m.limits {
		if key.MsgType == msgType {
			delete(m.limits, key)
		}
	}
	return nil
}

func (m *mpscMbox) HasSubscription(msgType reflect.Type, state any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storage.Has(subscription.Key{MsgType: msgType, State: state})
}

func (m *mpscMbox) Deliver(r message.Ref, currentState any) error {
	if r.Mutability() == message.Mutable && r.Shared() {
		return ErrMutableShared
	}

	m.mu.RLock()
	entries := m.storage.Entries()
	hook := m.hook
	limits := m.limits
	m.mu.RUnlock()

	msgType := r.Type()
	for _, e := range entries {
		if e.Key.MsgType != msgType {
			continue
		}
		if e.Key.State != nil && e.Key.State != currentState {
			continue
		}

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
						return l.Redirect.Deliver(message.NewImmutable(payload), currentState)
					}
				case ReactionRedirect:
					if l.Redirect != nil {
						return l.Redirect.Deliver(r, currentState)
					}
					return nil
				case ReactionAbortApp:
					AbortAppAction()
					return nil
				default: // ReactionDrop, ReactionWait (never blocks a publisher on an mbox), ReactionNone
					return nil
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
			return nil
		}
		err := e.Handler(payload)
		limit.Release()
		return err
	}
	return nil
}
