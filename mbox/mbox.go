// Package mbox implements the message-box layer: multi-subscriber (MPMC)
// and direct/single-subscriber (MPSC) mailboxes, delivery filters, message
// limits, and the mchain bounded-queue variant. It is adapted from the
// GoCodeAlone/modular eventbus module's MemoryEventBus delivery loop,
// generalized from string-topic matching to (message type, agent state)
// subscription keys.
package mbox

import (
	"reflect"

	"github.com/sobjgo/actorcore/message"
	"github.com/sobjgo/actorcore/subscription"
)

// ID uniquely identifies an mbox within its owning environment.
type ID uint64

// Kind distinguishes the three mbox delivery disciplines.
type Kind int

const (
	// MPMC mboxes fan a message out to every matching subscriber and only
	// ever carry Immutable envelopes.
	MPMC Kind = iota
	// MPSC ("direct") mboxes have at most one subscriber and accept both
	// Immutable and Mutable envelopes.
	MPSC
	// MChain identifies a Chain used through the Mbox interface: a
	// bounded or unbounded FIFO that also accepts push-style Subscribe
	// alongside its native pull-style Receive/Drain.
	MChain
)

// Filter decides whether an already-type-matched message should actually
// be delivered to a given subscription. Filters are a programming error on
// MPSC mboxes (ErrFilterOnMPSC): a direct mbox has one consumer and no
// ambiguity to filter away.
type Filter func(payload any) bool

// DeliveryHook is invoked around every delivery attempt; it is how the
// tracing observer (see package tracing) observes subscribe/unsubscribe/
// deliver/overlimit/push-to-queue events without either layer depending on
// the other directly.
type DeliveryHook interface {
	OnSubscribe(box ID, key subscription.Key)
	OnUnsubscribe(box ID, key subscription.Key)
	OnDeliver(box ID, key subscription.Key, payload any)
	OnOverlimit(box ID, key subscription.Key, reaction LimitReaction)
	OnPushToQueue(box ID, key subscription.Key)
}

// SubscribeOption configures the optional per-subscription knobs beyond the
// (type, state, filter, handler) every Subscribe call takes. Both are
// attached at subscribe time because that is when the subscriber's
// dispatcher binding (if any) and its desired overflow behavior are known.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	sink  *subscription.Sink
	limit *Limit
}

func resolveSubscribeOptions(opts []SubscribeOption) subscribeConfig {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSink attaches sink to the subscription being registered, so Deliver
// pushes a dispatcher.Demand through it instead of calling the handler
// inline. Built from the subscribing agent's own dispatcher binding; see
// SubscribeSelf in the root package.
func WithSink(sink *subscription.Sink) SubscribeOption {
	return func(c *subscribeConfig) { c.sink = sink }
}

// WithLimit attaches limit to the subscription being registered. Deliver
// consults it before the message is handed to the handler (or pushed to a
// Sink) and applies limit.Reaction once Capacity is exceeded.
func WithLimit(limit *Limit) SubscribeOption {
	return func(c *subscribeConfig) { c.limit = limit }
}

// Mbox is the common interface both MPMC and MPSC mboxes implement.
type Mbox interface {
	ID() ID
	Kind() Kind

	// Subscribe registers h to run when a message of payload's type
	// arrives while the subscriber is in state. state may be nil to mean
	// "any state". Returns ErrDuplicateSubscription if the (type, state)
	// pair is already subscribed on this mbox. opts may attach a
	// dispatcher Sink and/or a delivery Limit to this subscription.
	Subscribe(msgType reflect.Type, state any, filter Filter, h subscription.Handler, opts ...SubscribeOption) error

	// Unsubscribe removes a single (type, state) subscription.
	Unsubscribe(msgType reflect.Type, state any) error

	// DropSubscriptionForAllStates removes every subscription for
	// msgType regardless of state.
	DropSubscriptionForAllStates(msgType reflect.Type) error

	// HasSubscription reports whether (type, state) is currently
	// subscribed.
	HasSubscription(msgType reflect.Type, state any) bool

	// Deliver fans r out to every subscription matching r's type and
	// currentState (for MPMC) or to the single subscriber (for MPSC).
	// For a subscription registered with a Sink, Deliver never runs the
	// handler itself: it pushes a dispatcher.Demand onto the sink's
	// Queue and a worker thread on the subscriber's bound dispatcher
	// invokes it later, which is what keeps a non-adv dispatcher's
	// handlers for one agent strictly serialized. A subscription with no
	// Sink (an mbox never bound to an agent's dispatcher queue, e.g. one
	// used directly in a test) falls back to running the handler inline
	// on Deliver's own call stack.
	Deliver(r message.Ref, currentState any) error

	// SetHook installs the tracing hook. A nil hook disables tracing.
	SetHook(h DeliveryHook)
}

// NewStorage is the factory signature subscription strategies conform to;
// mbox construction takes one so callers can pick vector/map/hash/adaptive
// storage per mbox.
type NewStorage func() subscription.Storage

// DefaultStorageFactory is used when a Mbox is constructed without an
// explicit storage strategy.
var DefaultStorageFactory NewStorage = func() subscription.Storage {
	return subscription.NewAdaptiveStorage()
}
