// Package agent defines the lifecycle interfaces an actor implements.
// Grounded on the teacher's Module interface family (module.go): Define
// plays the role of Init, SubscriptionAware plays the role of
// ServiceAware, EvtStart/EvtFinish play the role of Startable/Stoppable —
// generalized from service-wiring semantics to message-passing semantics.
package agent

import (
	"context"

	"github.com/sobjgo/actorcore/dispatcher"
)

// Environment is the subset of the environment facade an agent needs
// during Define: the ability to create MPMC and MPSC mboxes. It is defined
// here (rather than agents importing
// the root package) to avoid an import cycle, the same reason the
// teacher's Module.Init takes an Application interface rather than a
// concrete *StdApplication.
type Environment interface {
	CreateMbox() MboxHandle
	CreateMPSCMbox() MboxHandle
}

// MboxHandle is the minimal mbox surface agent.go depends on. package
// mbox's Mbox does not satisfy it directly (its ID method returns mbox.ID);
// the root package's environment wraps each mbox in an adapter that does.
type MboxHandle interface {
	ID() uint64
}

// Agent is the base interface every actor must implement.
type Agent interface {
	// Name returns a human-readable identifier used in tracing and
	// dispatcher diagnostics. Unlike the teacher's Module.Name, it need
	// not be unique: many instances of the same agent type commonly run
	// side by side within a cooperation.
	Name() string

	// Define declares the agent's subscriptions and initial state before
	// it starts receiving messages. Define runs once, before EvtStart,
	// and after the agent has been bound to a dispatcher queue.
	Define(env Environment) error
}

// SubscriptionAware is implemented by agents that need to register
// additional subscriptions after Define, typically ones that depend on
// cooperation-level wiring not available until registration time. Neither
// the cooperation registry nor the environment calls Subscriptions(), so
// the list it returns is not registered automatically.
type SubscriptionAware interface {
	Subscriptions() []Subscription
}

// Subscription pairs a message type with the state(s) it is handled in.
// Built by the agent authoring surface's Subscribe/SubscribeSelf helpers
// (see the root package).
type Subscription struct {
	MsgTypeName string
	State       any
}

// Startable agents run setup logic once bound to a dispatcher, analogous
// to so_5's so_evt_start.
type Startable interface {
	EvtStart(ctx context.Context) error
}

// Finishable agents run teardown logic when their cooperation
// deregisters. EvtFinish returns nothing: so_5 requires evt_finish to be
// noexcept, and Go's closest equivalent is a method that cannot fail the
// caller at all. Any failure inside EvtFinish is the agent's own to handle;
// the coop registry neither sees nor logs it.
type Finishable interface {
	EvtFinish(ctx context.Context)
}

// PriorityAware agents declare a dispatcher priority. Agents that don't
// implement this interface run at dispatcher.PriorityNormal.
type PriorityAware interface {
	Priority() dispatcher.Priority
}

// ThreadSafetyAware agents declare whether their handlers may run
// concurrently with each other on an adv-thread-pool dispatcher.
type ThreadSafetyAware interface {
	ThreadSafe() bool
}
