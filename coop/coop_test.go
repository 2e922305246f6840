package coop_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobjgo/actorcore/agent"
	"github.com/sobjgo/actorcore/coop"
	"github.com/sobjgo/actorcore/dispatcher"
)

type fakeEnvironment struct{}

func (fakeEnvironment) CreateMbox() agent.MboxHandle     { return nil }
func (fakeEnvironment) CreateMPSCMbox() agent.MboxHandle { return nil }

type recordingAgent struct {
	name      string
	started   chan struct{}
	finished  chan struct{}
	defineErr error
}

func newRecordingAgent(name string) *recordingAgent {
	return &recordingAgent{name: name, started: make(chan struct{}, 1), finished: make(chan struct{}, 1)}
}

func (a *recordingAgent) Name() string { return a.name }

func (a *recordingAgent) Define(env agent.Environment) error { return a.defineErr }

func (a *recordingAgent) EvtStart(ctx context.Context) error {
	a.started <- struct{}{}
	return nil
}

func (a *recordingAgent) EvtFinish(ctx context.Context) {
	a.finished <- struct{}{}
}

func newBoundDispatcher(t *testing.T) dispatcher.Binder {
	t.Helper()
	binder := dispatcher.NewOneThread(16)
	lifecycle, ok := binder.(dispatcher.Lifecycle)
	require.True(t, ok)
	require.NoError(t, lifecycle.Start(context.Background()))
	t.Cleanup(func() { _ = lifecycle.Stop(context.Background()) })
	return binder
}

func TestRegisterRunsEvtStartForEveryAgent(t *testing.T) {
	binder := newBoundDispatcher(t)
	registry := coop.NewRegistry(map[string]dispatcher.Binder{"default": binder}, nil)
	t.Cleanup(registry.Close)

	a1 := newRecordingAgent("collector")
	a2 := newRecordingAgent("performer")

	b := coop.NewBuilder("demo", "")
	b.AddAgent(a1, "default")
	b.AddAgent(a2, "default")

	c, err := registry.Register(context.Background(), b, fakeEnvironment{})
	require.NoError(t, err)
	assert.Equal(t, coop.StateActive, c.State())

	waitOrTimeout(t, a1.started)
	waitOrTimeout(t, a2.started)
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	binder := newBoundDispatcher(t)
	registry := coop.NewRegistry(map[string]dispatcher.Binder{"default": binder}, nil)
	t.Cleanup(registry.Close)

	b := coop.NewBuilder("demo", "")
	b.AddAgent(newRecordingAgent("a"), "default")
	_, err := registry.Register(context.Background(), b, fakeEnvironment{})
	require.NoError(t, err)

	_, err = registry.Register(context.Background(), coop.NewBuilder("demo", ""), fakeEnvironment{})
	assert.ErrorIs(t, err, coop.ErrAlreadyRegistered)
}

func TestDeregisterRunsEvtFinishAndRemovesFromRegistry(t *testing.T) {
	binder := newBoundDispatcher(t)
	registry := coop.NewRegistry(map[string]dispatcher.Binder{"default": binder}, nil)
	t.Cleanup(registry.Close)

	a1 := newRecordingAgent("collector")
	b := coop.NewBuilder("demo", "")
	b.AddAgent(a1, "default")
	_, err := registry.Register(context.Background(), b, fakeEnvironment{})
	require.NoError(t, err)
	waitOrTimeout(t, a1.started)

	require.NoError(t, registry.Deregister(context.Background(), "demo", time.Second))
	waitOrTimeout(t, a1.finished)

	_, ok := registry.Lookup("demo")
	assert.False(t, ok)
}

func TestDeregisterUnknownCooperationFails(t *testing.T) {
	registry := coop.NewRegistry(nil, nil)
	t.Cleanup(registry.Close)
	err := registry.Deregister(context.Background(), "nope", time.Second)
	assert.ErrorIs(t, err, coop.ErrNotFound)
}

func TestChildDeregisterDecrementsParentRefcount(t *testing.T) {
	binder := newBoundDispatcher(t)
	registry := coop.NewRegistry(map[string]dispatcher.Binder{"default": binder}, nil)
	t.Cleanup(registry.Close)

	parentBuilder := coop.NewBuilder("parent", "")
	parentBuilder.AddAgent(newRecordingAgent("root"), "default")
	parent, err := registry.Register(context.Background(), parentBuilder, fakeEnvironment{})
	require.NoError(t, err)

	childBuilder := coop.NewBuilder("child", "parent")
	child := newRecordingAgent("child-agent")
	childBuilder.AddAgent(child, "default")
	_, err = registry.Register(context.Background(), childBuilder, fakeEnvironment{})
	require.NoError(t, err)
	waitOrTimeout(t, child.started)

	before := parent.RunningAgents()
	require.NoError(t, registry.Deregister(context.Background(), "child", time.Second))
	waitOrTimeout(t, child.finished)

	assert.Equal(t, before-1, parent.RunningAgents())
}

func waitOrTimeout(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}
