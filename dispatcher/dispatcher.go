// Package dispatcher implements the dispatcher family sharing one common
// event-queue contract: one-thread, active-object, active-group,
// thread-pool, adv-thread-pool, nef-thread-pool, and the priority-ordered
// variants built on top of them. Grounded on the teacher's worker-pool
// mechanics in modules/eventbus/memory.go and its pluggable-factory
// registry in modules/eventbus/engine_registry.go.
package dispatcher

import (
	"context"
	"fmt"
)

// Priority orders demands within priority-aware dispatchers. Higher values
// run first.
type Priority int

const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

// Demand is one unit of dispatcher work: "run this handler for this
// agent". Dispatchers never inspect the handler's payload; they only
// sequence and execute it.
type Demand struct {
	AgentID  uint64
	Priority Priority
	// ThreadSafe marks a demand as safe to run concurrently with other
	// ThreadSafe demands for the same agent on an adv-thread-pool
	// dispatcher. Ignored by every other dispatcher variant.
	ThreadSafe bool
	Run        func()
}

// Queue is the common event-queue contract every dispatcher variant
// implements. None of the three methods returns an error or panics: Push
// et al. enqueue work, they do not run it (mirroring so_5's
// push()/push_evt_start()/push_evt_finish() noexcept contract).
// Channel-backed variants block while their channel is full, slice-backed
// variants append, and a thread-pool queue whose agent has been unbound
// drops the demand.
type Queue interface {
	// Push enqueues an ordinary event-handler demand.
	Push(d Demand)
	// PushEvtStart enqueues an agent's evt_start demand. The non-priority
	// variants queue it in the same FIFO order as Push, so ordinary
	// demands already queued for that agent run before it; the priority
	// variants raise it to PriorityHighest, which puts it ahead of queued
	// demands of lower priority only.
	PushEvtStart(d Demand)
	// PushEvtFinish enqueues an agent's evt_finish demand. On
	// nef-thread-pool a slot for this demand is set aside at bind time;
	// the call cannot fail, though the underlying queue may still
	// allocate when it appends the demand.
	PushEvtFinish(d Demand)
}

// Binder hands an agent an event-queue handle bound to one dispatcher
// instance. Cooperation registration calls Bind once per agent during the
// preallocate-resources phase (see package coop).
type Binder interface {
	Bind(agentID uint64) (Queue, error)
	Unbind(agentID uint64)
}

// Lifecycle is implemented by dispatcher instances that own background
// goroutines (worker pools, the active-object's per-agent thread, etc.).
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// WorkThread is a single schedulable unit of execution a dispatcher runs
// demands on.
type WorkThread interface {
	Run(fn func())
	Stop()
}

// WorkThreadFactory creates and releases WorkThreads. The default
// implementation (NativeGoroutineFactory) spawns a plain goroutine per
// thread; a custom factory can pool OS threads, pin to cores, etc. —
// grounded on original_source's custom_work_thread_factory example.
type WorkThreadFactory interface {
	Acquire() (WorkThread, error)
	Release(WorkThread)
}

// ActivityTracker records per-worker busy/idle duration for the runtime
// stats snapshot (package stats). Optional: dispatchers work fine with a
// nil tracker.
type ActivityTracker interface {
	RecordWorking(workerID int, demand Demand)
	RecordWaiting(workerID int)
}

// Factory builds a Queue-producing dispatcher instance (a Binder) from a
// name-indexed configuration. This is the idiomatic-Go substitute for the
// original C++ library's template-parameterized dispatcher construction:
// instead of instantiating a generic dispatcher<Traits> type, callers
// register a constructor function once and look it up by name.
type Factory func(name string) (Binder, error)

var registry = make(map[string]Factory)

// Register installs factory under kind (e.g. "one_thread", "thread_pool").
// Dispatcher variant files call this from their own init().
func Register(kind string, factory Factory) {
	registry[kind] = factory
}

// New constructs a Binder of the named kind.
func New(kind, name string) (Binder, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("dispatcher: unknown kind %q", kind)
	}
	return factory(name)
}

// RegisteredKinds lists every dispatcher kind registered so far.
func RegisteredKinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

// nativeGoroutineThread is the default WorkThread: one goroutine, started
// by NativeGoroutineFactory.Acquire and torn down by Stop.
type nativeGoroutineThread struct {
	work chan func()
	done chan struct{}
}

// NativeGoroutineFactory is the default WorkThreadFactory.
type NativeGoroutineFactory struct{}

func (NativeGoroutineFactory) Acquire() (WorkThread, error) {
	t := &nativeGoroutineThread{work: make(chan func(), 1), done: make(chan struct{})}
	go t.loop()
	return t, nil
}

func (NativeGoroutineFactory) Release(t WorkThread) { t.Stop() }

func (t *nativeGoroutineThread) loop() {
	for {
		select {
		case fn, ok := <-t.work:
			if !ok {
				return
			}
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *nativeGoroutineThread) Run(fn func()) { t.work <- fn }
func (t *nativeGoroutineThread) Stop()         { close(t.done) }
