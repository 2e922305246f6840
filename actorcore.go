// Package actorcore is the environment facade: the single entry point an
// embedding application uses to launch a runtime, register cooperations of
// agents, create mboxes and mchains, and send messages. Grounded on the
// teacher's builder.go (NewApplication(opts ...Option), functional options
// building a concrete Application) and application.go's Run() (Init, Start,
// then block on SIGINT/SIGTERM before Stop).
package actorcore

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sobjgo/actorcore/agent"
	"github.com/sobjgo/actorcore/config"
	"github.com/sobjgo/actorcore/coop"
	"github.com/sobjgo/actorcore/dispatcher"
	"github.com/sobjgo/actorcore/logger"
	"github.com/sobjgo/actorcore/mbox"
	"github.com/sobjgo/actorcore/stats"
	"github.com/sobjgo/actorcore/timer"
	"github.com/sobjgo/actorcore/tracing"
)

// Environment is the runtime an application builds once and launches.
// Agents interact with it only through the narrower agent.Environment
// interface it also satisfies.
type Environment struct {
	mu      sync.Mutex
	log     logger.Logger
	cfg     *config.Environment
	binders map[string]dispatcher.Binder
	coops   *coop.Registry
	timers  *timer.Service
	tracer  *tracing.Subject
	stats   *stats.Collector

	mboxes map[uint64]mbox.Mbox
	nextID atomic.Uint64

	running bool
	watcher *config.Watcher
}

var _ agent.Environment = (*Environment)(nil)

// Option configures an Environment before Launch builds it, mirroring the
// teacher's builder.go Option/ApplicationBuilder pattern.
type Option func(*Environment) error

// WithLogger overrides the default logger, which discards everything
// (logger.Noop).
func WithLogger(log logger.Logger) Option {
	return func(e *Environment) error {
		e.log = log
		return nil
	}
}

// WithTimerEngine overrides the engine config.Environment.TimerEngine
// selects.
func WithTimerEngine(engine timer.Engine) Option {
	return func(e *Environment) error {
		e.timers = timer.NewService(engine, e.log)
		return nil
	}
}

// WithTracing attaches an already-built tracing.Subject instead of the
// Environment's own, letting an application share one Subject across
// several Environments or attach observers before Launch.
func WithTracing(subject *tracing.Subject) Option {
	return func(e *Environment) error {
		e.tracer = subject
		return nil
	}
}

// WithConfigWatcher enables fsnotify-driven hot reload of the bounded set
// of live-reloadable settings (tracing on/off, log level, stats interval)
// by watching path for writes, re-feeding cfg through feeders.
func WithConfigWatcher(path string, feeders []config.Feeder) Option {
	return func(e *Environment) error {
		w, err := config.NewWatcher(path, e.cfg, feeders, e.log, e.onConfigChange)
		if err != nil {
			return fmt.Errorf("actorcore: config watcher: %w", err)
		}
		e.watcher = w
		return nil
	}
}

func newEnvironment(cfg *config.Environment) (*Environment, error) {
	binders := make(map[string]dispatcher.Binder)
	for name, kind := range cfg.Dispatchers {
		binder, err := dispatcher.New(kind, name)
		if err != nil {
			return nil, fmt.Errorf("actorcore: dispatcher %q: %w", name, err)
		}
		binders[name] = binder
	}

	var engine timer.Engine
	switch cfg.TimerEngine {
	case "wheel":
		engine = timer.NewWheelEngine(1024, 10*time.Millisecond)
	case "list":
		engine = timer.NewListEngine()
	default:
		engine = timer.NewHeapEngine(64)
	}

	e := &Environment{
		log:     logger.Noop{},
		cfg:     cfg,
		binders: binders,
		tracer:  tracing.NewSubject(),
		stats:   stats.NewCollector(),
		mboxes:  make(map[uint64]mbox.Mbox),
	}
	e.timers = timer.NewService(engine, e.log)
	return e, nil
}

// Launch builds an Environment from paramsFn's settings plus opts, starts
// every bound dispatcher and the timer service, calls initFn to register
// cooperations, and blocks until SIGINT/SIGTERM, then stops everything in
// reverse order. This is the common entry point, grounded on the teacher's
// StdApplication.Run (Init, Start, wait for signal, Stop).
func Launch(ctx context.Context, paramsFn func() *config.Environment, initFn func(*Environment) error, opts ...Option) error {
	if initFn == nil {
		return ErrInitFuncNil
	}
	cfg := config.DefaultEnvironment()
	if paramsFn != nil {
		cfg = paramsFn()
	}

	env, err := newEnvironment(cfg)
	if err != nil {
		return err
	}
	for _, opt := range opts {
		if err := opt(env); err != nil {
			return err
		}
	}

	env.coops = coop.NewRegistry(env.binders, env.log)

	if err := env.start(ctx); err != nil {
		return err
	}
	defer env.stop(context.Background())

	if err := initFn(env); err != nil {
		return fmt.Errorf("actorcore: init failed: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		env.log.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		env.log.Info("context canceled, shutting down")
	}
	return nil
}

func (e *Environment) start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	for name, binder := range e.binders {
		if lifecycle, ok := binder.(dispatcher.Lifecycle); ok {
			if err := lifecycle.Start(ctx); err != nil {
				return fmt.Errorf("actorcore: dispatcher %q start: %w", name, err)
			}
		}
	}
	if e.watcher != nil {
		go e.watcher.Run()
	}
	if e.cfg.StatsIntervalSeconds > 0 {
		go e.publishStatsLoop(ctx, time.Duration(e.cfg.StatsIntervalSeconds)*time.Second)
	}
	e.running = true
	return nil
}

func (e *Environment) stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	if e.watcher != nil {
		_ = e.watcher.Stop()
	}
	e.timers.Stop()
	e.coops.Close()
	for name, binder := range e.binders {
		if lifecycle, ok := binder.(dispatcher.Lifecycle); ok {
			if err := lifecycle.Stop(ctx); err != nil {
				e.log.Error("dispatcher stop failed", "dispatcher", name, "error", err)
			}
		}
	}
	e.running = false
}

func (e *Environment) publishStatsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			running := e.running
			e.mu.Unlock()
			if !running {
				return
			}
			e.stats.SetCoopCount(int64(len(e.coops.Names())))
		}
	}
}

func (e *Environment) onConfigChange(changes []config.Change) {
	for _, c := range changes {
		e.log.Info("live config change applied", "field", c.FieldPath, "old", c.OldValue, "new", c.NewValue)
	}
}

// Logger returns the environment's logger.
func (e *Environment) Logger() logger.Logger { return e.log }

// Stats returns the environment's stats collector. The environment itself
// only records the cooperation count, refreshed every StatsIntervalSeconds;
// dispatchers and the coop registry do not write to it.
func (e *Environment) Stats() *stats.Collector { return e.stats }

// Tracer returns the environment's tracing subject. Attach observers to it
// before Launch, or any time afterward for additional sinks.
func (e *Environment) Tracer() *tracing.Subject { return e.tracer }

// Timers returns the environment's timer service, for SendDelayed/
// SendPeriodic style scheduling outside the agent authoring helpers.
func (e *Environment) Timers() *timer.Service { return e.timers }

// Coops returns the environment's cooperation registry.
func (e *Environment) Coops() *coop.Registry { return e.coops }

// Dispatcher returns the Binder registered under name at Launch time, for
// passing to coop.Builder.AddAgent indirectly via RegisterCooperation.
func (e *Environment) Dispatcher(name string) (dispatcher.Binder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.binders[name]
	return b, ok
}

// RegisterCooperation is a thin convenience wrapper over Coops().Register
// that also wires the tracing hook onto every mbox the cooperation's agents
// create during Define.
func (e *Environment) RegisterCooperation(ctx context.Context, b *coop.Builder) (*coop.Cooperation, error) {
	return e.coops.Register(ctx, b, e)
}

// DeregisterCooperation is a thin convenience wrapper over
// Coops().Deregister.
func (e *Environment) DeregisterCooperation(ctx context.Context, name string, waitTimeout time.Duration) error {
	return e.coops.Deregister(ctx, name, waitTimeout)
}

// CreateMbox implements agent.Environment: builds a fresh multi-subscriber
// mbox wired to this environment's tracing hook.
func (e *Environment) CreateMbox() agent.MboxHandle {
	return e.createMbox(mbox.NewMPMC(mbox.ID(e.nextID.Add(1)), nil))
}

// CreateMPSCMbox implements agent.Environment: builds a fresh
// single-subscriber mbox wired to this environment's tracing hook.
func (e *Environment) CreateMPSCMbox() agent.MboxHandle {
	return e.createMbox(mbox.NewMPSC(mbox.ID(e.nextID.Add(1)), nil))
}

func (e *Environment) createMbox(box mbox.Mbox) agent.MboxHandle {
	box.SetHook(tracing.NewHook(e.tracer))
	e.mu.Lock()
	e.mboxes[uint64(box.ID())] = box
	e.mu.Unlock()
	return mboxHandle{box}
}

// Mbox resolves a handle returned by CreateMbox/CreateMPSCMbox back to the
// full mbox.Mbox interface, for Subscribe/Send call sites that need more
// than the agent-facing MboxHandle surface.
func (e *Environment) Mbox(h agent.MboxHandle) (mbox.Mbox, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	box, ok := e.mboxes[h.ID()]
	if !ok {
		return nil, ErrUnknownMbox
	}
	return box, nil
}

// mboxHandle adapts a mbox.Mbox to agent.MboxHandle without exposing the
// full mbox surface to agent.Define implementations, mirroring the
// teacher's pattern of handing modules a narrow Application interface
// rather than the concrete StdApplication.
type mboxHandle struct {
	box mbox.Mbox
}

func (h mboxHandle) ID() uint64 { return uint64(h.box.ID()) }
