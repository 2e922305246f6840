package actorcore

import (
	"reflect"

	"github.com/sobjgo/actorcore/agent"
	"github.com/sobjgo/actorcore/dispatcher"
	"github.com/sobjgo/actorcore/mbox"
	"github.com/sobjgo/actorcore/subscription"
)

// sinkSource is implemented by the per-member environment coop.Registry
// hands to Agent.Define, exposing the dispatcher binding that member was
// bound to. agent.Environment itself stays narrow; SubscribeSelf probes
// for this capability with a type assertion rather than requiring every
// agent.Environment implementation to carry it.
type sinkSource interface {
	DispatcherSink() (dispatcher.Queue, uint64, dispatcher.Priority, bool)
}

// envUnwrapper is implemented by environment wrappers (coop.scopedEnv) that
// add scoping on top of another agent.Environment, letting resolveMbox see
// through the wrapper to the concrete *Environment beneath it.
type envUnwrapper interface {
	Unwrap() agent.Environment
}

// messageTypeOf returns the reflect.Type a zero-value sample identifies a
// subscription by, letting callers write Subscribe(box, MyMsg{}, handler)
// instead of spelling out reflect.TypeOf themselves.
func messageTypeOf(sample any) reflect.Type {
	return reflect.TypeOf(sample)
}

// Subscribe registers h to run whenever a message of the same type as
// sample is delivered to box regardless of the subscriber's current state.
// This is the common case for agents with no state machine.
func Subscribe[M any](box mbox.Mbox, sample M, h func(msg M) error) error {
	return box.Subscribe(messageTypeOf(sample), nil, nil, adaptHandler(h))
}

// SubscribeInState registers h to run only while the subscriber reports
// state as its current state, for use alongside a statechart.Machine.
func SubscribeInState[M any](box mbox.Mbox, sample M, state any, h func(msg M) error) error {
	return box.Subscribe(messageTypeOf(sample), state, nil, adaptHandler(h))
}

// SubscribeFiltered registers h to run only for messages also accepted by
// filter, e.g. to react to a subset of a broad message type's values
// without a dedicated mbox.
func SubscribeFiltered[M any](box mbox.Mbox, sample M, filter mbox.Filter, h func(msg M) error) error {
	return box.Subscribe(messageTypeOf(sample), nil, filter, adaptHandler(h))
}

// SubscribeSelf is Subscribe using an agent's own mbox handle, the common
// case of an agent wiring up a handler for its own inbox during Define.
// Called during Define, env carries the dispatcher binding coop.Registry
// bound this agent to (see sinkSource); when present, the resulting
// subscription carries a Sink so Deliver pushes a dispatcher.Demand onto
// this agent's own event queue instead of running handler inline on
// whatever goroutine happened to call Send.
func SubscribeSelf[M any](env agent.Environment, h agent.MboxHandle, sample M, handler func(msg M) error) error {
	full, err := resolveMbox(env, h)
	if err != nil {
		return err
	}
	opts := subscribeOptionsFor(env)
	return full.Subscribe(messageTypeOf(sample), nil, nil, adaptHandler(handler), opts...)
}

// subscribeOptionsFor builds the mbox.SubscribeOption slice SubscribeSelf
// passes along, attaching a dispatcher Sink when env exposes one.
func subscribeOptionsFor(env agent.Environment) []mbox.SubscribeOption {
	src, ok := env.(sinkSource)
	if !ok {
		return nil
	}
	queue, agentID, priority, threadSafe := src.DispatcherSink()
	if queue == nil {
		return nil
	}
	return []mbox.SubscribeOption{mbox.WithSink(&subscription.Sink{
		Queue:      queue,
		AgentID:    agentID,
		Priority:   priority,
		ThreadSafe: threadSafe,
	})}
}

// HasSubscription reports whether box currently has a (type, state)
// subscription matching sample and state.
func HasSubscription[M any](box mbox.Mbox, sample M, state any) bool {
	return box.HasSubscription(messageTypeOf(sample), state)
}

// DropSubscription removes a single (type, state) subscription previously
// registered with Subscribe/SubscribeInState.
func DropSubscription[M any](box mbox.Mbox, sample M, state any) error {
	return box.Unsubscribe(messageTypeOf(sample), state)
}

// DropSubscriptionForAllStates removes every subscription for sample's type
// on box, regardless of which state(s) it was registered under.
func DropSubscriptionForAllStates[M any](box mbox.Mbox, sample M) error {
	return box.DropSubscriptionForAllStates(messageTypeOf(sample))
}

// SubscribeDeadletterHandler registers h for Deadletter messages on box. It
// is an ordinary subscription on the Deadletter type: Deliver does not
// route unmatched messages to it, so h runs only for payloads that a
// caller wraps as Deadletter{Payload: original} and sends to box.
func SubscribeDeadletterHandler(box mbox.Mbox, h func(payload any) error) error {
	return Subscribe(box, Deadletter{}, func(d Deadletter) error {
		return h(d.Payload)
	})
}

// Deadletter wraps a payload that reached an mbox with no matching
// subscription, for redelivery to whatever SubscribeDeadletterHandler
// registered.
type Deadletter struct {
	Payload any
}

func resolveMbox(env agent.Environment, h agent.MboxHandle) (mbox.Mbox, error) {
	for {
		if e, ok := env.(*Environment); ok {
			return e.Mbox(h)
		}
		u, ok := env.(envUnwrapper)
		if !ok {
			return nil, ErrUnknownMbox
		}
		env = u.Unwrap()
	}
}

// adaptHandler converts a typed handler func(M) error into the untyped
// subscription.Handler the mbox layer stores, recovering the concrete type
// via a type assertion. A mismatched payload type is a programming error
// caught by the mbox layer's own type-keyed dispatch, so the assertion here
// never fails for messages Deliver actually routes to this handler.
func adaptHandler[M any](h func(msg M) error) subscription.Handler {
	return func(payload any) error {
		return h(payload.(M))
	}
}
