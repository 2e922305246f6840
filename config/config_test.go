package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobjgo/actorcore/config"
)

func TestDefaultEnvironmentHasSaneBaseline(t *testing.T) {
	env := config.DefaultEnvironment()
	assert.Equal(t, "one_thread", env.Dispatchers["default"])
	assert.Equal(t, "heap", env.TimerEngine)
	assert.False(t, env.TracingEnabled)
}

func TestLoadWithNoFeedersKeepsDefaults(t *testing.T) {
	env := config.DefaultEnvironment()
	err := config.Load(env, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "heap", env.TimerEngine)
}

func TestLoadFeedsFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\ntracing_enabled = true\n"), 0o644))

	env := config.DefaultEnvironment()
	err := config.Load(env, []config.Feeder{config.NewTomlFeeder(path)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", env.LogLevel)
	assert.True(t, env.TracingEnabled)
}

func TestWatcherAppliesOnlyLiveReloadableFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"info\"\ntracing_enabled = false\ndispatchers = { default = \"one_thread\" }\n"), 0o644))

	env := config.DefaultEnvironment()
	var seen []config.Change
	w, err := config.NewWatcher(path, env, []config.Feeder{config.NewTomlFeeder(path)}, nil, func(c []config.Change) {
		seen = append(seen, c...)
	})
	require.NoError(t, err)
	defer w.Stop()

	go w.Run()

	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\ntracing_enabled = true\ndispatchers = { default = \"thread_pool\" }\n"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		if env.LogLevel == "debug" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for hot reload to apply")
		case <-time.After(10 * time.Millisecond):
		}
	}

	assert.True(t, env.TracingEnabled)
	assert.Equal(t, "one_thread", env.Dispatchers["default"], "Dispatchers is not live-reloadable and must not change")
	assert.NotEmpty(t, seen)
}
