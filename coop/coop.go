// Package coop implements the cooperation registry: the unit of atomic
// registration and deregistration for a group of agents. Grounded on the
// teacher's application_lifecycle.go (ApplicationLifecycle's deterministic
// ordered Initialize/Start/Stop with per-step lifecycle events) and, for the
// two-phase register/deregister semantics and the parent/child refcounted
// teardown, on original_source's dev/so_5/impl/agent_coop.cpp (notificator
// lists and the running-agent refcount that gates final deregistration).
package coop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sobjgo/actorcore/agent"
	"github.com/sobjgo/actorcore/dispatcher"
	"github.com/sobjgo/actorcore/logger"
)

// State is a cooperation's lifecycle stage.
type State int

const (
	StateRegistering State = iota
	StateActive
	StateDeregistering
	StateDeregistered
)

func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateActive:
		return "active"
	case StateDeregistering:
		return "deregistering"
	case StateDeregistered:
		return "deregistered"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRegistered is returned by Registry.Register for a name
	// that is already active or mid-registration.
	ErrAlreadyRegistered = errors.New("coop: cooperation already registered")
	// ErrUnknownParent is returned when Register names a parent that has
	// not itself been registered.
	ErrUnknownParent = errors.New("coop: unknown parent cooperation")
	// ErrNotFound is returned by Deregister for a name the registry has no
	// record of.
	ErrNotFound = errors.New("coop: cooperation not found")
	// ErrBindFailed wraps a dispatcher binding failure during
	// preallocate_resources, before any agent has been started.
	ErrBindFailed = errors.New("coop: dispatcher bind failed")
)

// member pairs one agent with its dispatcher binding and assigned id.
type member struct {
	id         uint64
	agent      agent.Agent
	queue      dispatcher.Queue
	priority   dispatcher.Priority
	threadSafe bool
}

// scopedEnv wraps the shared agent.Environment with one member's dispatcher
// binding for the duration of that member's Define call. agent.Environment
// itself stays narrow (just mbox creation) because the root environment has
// no single-agent-scoped queue/id/priority of its own to expose; this
// wrapper is what lets SubscribeSelf (see the root package) recover those
// details and attach a subscription.Sink without agent.Environment growing
// agent-specific methods.
type scopedEnv struct {
	agent.Environment
	queue      dispatcher.Queue
	agentID    uint64
	priority   dispatcher.Priority
	threadSafe bool
}

// DispatcherSink reports the dispatcher binding Define's agent was bound
// to, for the root package's Subscribe helpers to build a
// subscription.Sink from.
func (s *scopedEnv) DispatcherSink() (dispatcher.Queue, uint64, dispatcher.Priority, bool) {
	return s.queue, s.agentID, s.priority, s.threadSafe
}

// Unwrap returns the environment scopedEnv wraps, letting callers that need
// to downcast to the concrete environment type (e.g. to resolve a mbox
// handle) see through the per-member scoping.
func (s *scopedEnv) Unwrap() agent.Environment { return s.Environment }

// Cooperation is a named group of agents that register and deregister as a
// unit, the way so_5's agent_coop_t groups agents that must all start or
// none at all.
type Cooperation struct {
	Name    string
	Parent  string
	members []member
	state   State
	refs    atomic.Int64 // running child cooperations plus this one's own agents
}

// agentSpec is one not-yet-bound agent queued by Builder.AddAgent, keyed by
// the dispatcher name Registry.Register resolves at registration time.
type agentSpec struct {
	agent          agent.Agent
	dispatcherName string
}

// Builder accumulates agents before Registry.Register performs the actual
// two-phase registration.
type Builder struct {
	name   string
	parent string
	specs  []agentSpec
}

// NewBuilder starts building a cooperation named name, optionally nested
// under parent (pass "" for a top-level cooperation).
func NewBuilder(name, parent string) *Builder {
	return &Builder{name: name, parent: parent}
}

// AddAgent schedules a to be bound against the dispatcher registered under
// dispatcherName at Register time.
func (b *Builder) AddAgent(a agent.Agent, dispatcherName string) *Builder {
	b.specs = append(b.specs, agentSpec{agent: a, dispatcherName: dispatcherName})
	return b
}

// Registry tracks every live cooperation and performs the atomic
// register/deregister pipeline spec section 4.6 describes: preallocate
// resources, bind, publish, push evt_start for register; mark
// deregistering, push evt_finish, drain, finalize on a dedicated worker,
// and decrement the parent's refcount for deregister.
type Registry struct {
	mu      sync.Mutex
	coops   map[string]*Cooperation
	nextID  atomic.Uint64
	binders map[string]dispatcher.Binder
	log     logger.Logger
	// finalizer runs final deregistration work off the caller's goroutine,
	// mirroring so_5's dedicated deregistration thread so that a coop's
	// own evt_finish handlers are never run on the thread that requested
	// deregistration.
	finalizer chan func()
	wg        sync.WaitGroup
}

// NewRegistry returns an empty Registry backed by the given dispatcher
// binders, keyed by the names Builder.AddAgent's dispatcherName refers to.
func NewRegistry(binders map[string]dispatcher.Binder, log logger.Logger) *Registry {
	if log == nil {
		log = logger.Noop{}
	}
	r := &Registry{
		coops:     make(map[string]*Cooperation),
		binders:   binders,
		log:       log,
		finalizer: make(chan func(), 64),
	}
	r.wg.Add(1)
	go r.runFinalizer()
	return r
}

func (r *Registry) runFinalizer() {
	defer r.wg.Done()
	for fn := range r.finalizer {
		fn()
	}
}

// Close stops the registry's dedicated finalizer goroutine. Call after
// every cooperation has been deregistered.
func (r *Registry) Close() {
	close(r.finalizer)
	r.wg.Wait()
}

// Register performs preallocate_resources -> bind -> publish -> evt_start
// for every agent in b, as one atomic step: if binding or Define fails for
// any agent, no agent in b is started and the cooperation is not published.
func (r *Registry) Register(ctx context.Context, b *Builder, env agent.Environment) (*Cooperation, error) {
	r.mu.Lock()
	if _, exists := r.coops[b.name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, b.name)
	}
	var parent *Cooperation
	if b.parent != "" {
		var ok bool
		parent, ok = r.coops[b.parent]
		if !ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownParent, b.parent)
		}
	}
	r.mu.Unlock()

	c := &Cooperation{Name: b.name, Parent: b.parent, state: StateRegistering}

	// Phase 1: preallocate_resources + bind. Nothing is published or
	// started yet, so a failure here leaves the environment untouched.
	members := make([]member, 0, len(b.specs))
	for _, spec := range b.specs {
		binder, ok := r.binders[spec.dispatcherName]
		if !ok {
			return nil, fmt.Errorf("%w: unknown dispatcher %q for agent %q", ErrBindFailed, spec.dispatcherName, spec.agent.Name())
		}
		id := r.nextID.Add(1)
		queue, err := binder.Bind(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBindFailed, spec.agent.Name(), err)
		}

		priority := dispatcher.PriorityNormal
		if pa, ok := spec.agent.(agent.PriorityAware); ok {
			priority = pa.Priority()
		}
		threadSafe := false
		if ta, ok := spec.agent.(agent.ThreadSafetyAware); ok {
			threadSafe = ta.ThreadSafe()
		}

		memberEnv := &scopedEnv{Environment: env, queue: queue, agentID: id, priority: priority, threadSafe: threadSafe}
		if err := spec.agent.Define(memberEnv); err != nil {
			return nil, fmt.Errorf("agent %q Define failed: %w", spec.agent.Name(), err)
		}

		members = append(members, member{id: id, agent: spec.agent, queue: queue, priority: priority, threadSafe: threadSafe})
	}
	c.members = members

	// Phase 2: publish. Once visible in the registry, Deregister can find
	// it even if evt_start is still running for some agents.
	r.mu.Lock()
	r.coops[b.name] = c
	r.mu.Unlock()
	c.state = StateActive
	c.refs.Store(int64(len(members)))
	if parent != nil {
		parent.refs.Add(1)
	}

	// Phase 3: push evt_start for every agent that implements Startable.
	for _, m := range members {
		m := m
		if startable, ok := m.agent.(agent.Startable); ok {
			m.queue.PushEvtStart(dispatcher.Demand{
				AgentID:    m.id,
				Priority:   m.priority,
				ThreadSafe: m.threadSafe,
				Run: func() {
					if err := startable.EvtStart(ctx); err != nil {
						r.log.Error("agent evt_start failed", "coop", c.Name, "agent", m.agent.Name(), "error", err)
					}
				},
			})
		}
	}

	r.log.Info("cooperation registered", "coop", c.Name, "agents", len(members))
	return c, nil
}

// Deregister marks c deregistering, pushes evt_finish for every Finishable
// agent, waits (up to waitTimeout) for all pushed demands to be observed as
// run, then finalizes removal from the registry on the dedicated
// finalizer goroutine and decrements the parent's refcount. Deregister does
// not look at child cooperations: a parent with registered children
// finalizes as soon as its own agents' evt_finish demands have run (or the
// wait times out), and its children stay registered. Deregistration never
// cascades to children or parents.
func (r *Registry) Deregister(ctx context.Context, name string, waitTimeout time.Duration) error {
	r.mu.Lock()
	c, ok := r.coops[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	c.state = StateDeregistering

	var wg sync.WaitGroup
	for _, m := range c.members {
		m := m
		wg.Add(1)
		m.queue.PushEvtFinish(dispatcher.Demand{
			AgentID:    m.id,
			Priority:   dispatcher.PriorityHighest,
			ThreadSafe: m.threadSafe,
			Run: func() {
				defer wg.Done()
				if finishable, ok := m.agent.(agent.Finishable); ok {
					finishable.EvtFinish(ctx)
				}
			},
		})
	}

	drained := make(chan struct{})
	go func() { wg.Wait(); close(drained) }()

	select {
	case <-drained:
	case <-time.After(waitTimeout):
		r.log.Warn("cooperation deregister wait timed out, finalizing anyway", "coop", name)
	}

	done := make(chan struct{})
	r.finalizer <- func() {
		defer close(done)
		r.mu.Lock()
		delete(r.coops, name)
		r.mu.Unlock()
		c.state = StateDeregistered

		if c.Parent != "" {
			r.mu.Lock()
			parent, ok := r.coops[c.Parent]
			r.mu.Unlock()
			if ok {
				parent.refs.Add(-1)
			}
		}
		r.log.Info("cooperation deregistered", "coop", name)
	}
	<-done
	return nil
}

// Lookup returns the cooperation registered under name, if any.
func (r *Registry) Lookup(name string) (*Cooperation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coops[name]
	return c, ok
}

// State returns c's current lifecycle stage.
func (c *Cooperation) State() State { return c.state }

// RunningAgents returns c's refcount: the number of agents c registered
// plus the number of child cooperations currently registered under it.
// Deregistering c itself does not decrement this count.
func (c *Cooperation) RunningAgents() int64 { return c.refs.Load() }

// Names returns the names of every currently registered cooperation.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.coops))
	for name := range r.coops {
		names = append(names, name)
	}
	return names
}
