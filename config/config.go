// Package config implements the ambient configuration layer: an
// Environment settings struct fed by a layered golobby/config feeder
// stack, with fsnotify watching the backing file for a bounded set of
// live-reloadable settings. Grounded directly on the teacher's
// config_provider.go (Config wrapping golobby/config, Feed(), ConfigSetup)
// and configFeeders.go (ConfigFeeders, the Feeder alias).
package config

import (
	"fmt"

	"github.com/golobby/config/v3"

	"github.com/sobjgo/actorcore/logger"
)

// Feeder is an alias for golobby/config's Feeder interface, matching the
// teacher's configFeeders.go naming so call sites read the same way.
type Feeder = config.Feeder

// ComplexFeeder is golobby/config's key-scoped feeder interface, used the
// same way the teacher's Config.Feed loops over ComplexFeeder-capable
// feeders for per-section structs.
type ComplexFeeder = config.ComplexFeeder

// Environment holds the settings actorcore.Launch reads before
// constructing dispatchers, the tracer, and the stats exporter.
type Environment struct {
	// Dispatchers names which dispatcher kind to register under which
	// name, e.g. {"io": "thread_pool", "cpu": "adv_thread_pool"}.
	Dispatchers map[string]string `yaml:"dispatchers" toml:"dispatchers"`
	// TimerEngine selects "wheel", "heap", or "list".
	TimerEngine string `yaml:"timer_engine" toml:"timer_engine"`
	// TracingEnabled is stored and live-reloadable, but nothing reads it:
	// the environment installs its tracing hook on every mbox regardless.
	TracingEnabled bool `yaml:"tracing_enabled" toml:"tracing_enabled"`
	// LogLevel is one of "debug", "info", "warn", "error".
	// Live-reloadable.
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// StatsIntervalSeconds controls how often the environment refreshes the
	// cooperation count in its stats.Collector. Live-reloadable in the
	// sense that a reload stores the new value; the running refresh loop
	// keeps the interval it read at start.
	StatsIntervalSeconds int `yaml:"stats_interval_seconds" toml:"stats_interval_seconds"`
}

// DefaultEnvironment returns baseline settings used before any feeder has
// run, mirroring the teacher's pattern of a StdConfigProvider wrapping a
// zero-value struct that feeders then populate in place.
func DefaultEnvironment() *Environment {
	return &Environment{
		Dispatchers:          map[string]string{"default": "one_thread"},
		TimerEngine:          "heap",
		TracingEnabled:       false,
		LogLevel:             "info",
		StatsIntervalSeconds: 30,
	}
}

// Config wraps golobby/config.Config the way the teacher's Config type
// does, adding StructKeys for section-scoped feeding and Setup() support.
type Config struct {
	*config.Config
	StructKeys map[string]any
}

// NewConfig returns an empty Config with no feeders attached yet.
func NewConfig() *Config {
	return &Config{Config: config.New(), StructKeys: make(map[string]any)}
}

// AddStructKey registers target to be fed under key by any attached
// ComplexFeeder, mirroring the teacher's Config.AddStructKey.
func (c *Config) AddStructKey(key string, target any) *Config {
	c.StructKeys[key] = target
	return c
}

// Setup is implemented by section config structs that need to run
// validation or derived-field computation after being fed, mirroring the
// teacher's ConfigSetup interface.
type Setup interface {
	Setup() error
}

// Feed runs every attached feeder against the registered struct and
// struct-keys, then calls Setup() on any target that implements it.
func (c *Config) Feed() error {
	if err := c.Config.Feed(); err != nil {
		return err
	}

	for key, target := range c.StructKeys {
		for _, f := range c.Feeders {
			cf, ok := f.(ComplexFeeder)
			if !ok {
				continue
			}
			if err := cf.FeedKey(key, target); err != nil {
				return fmt.Errorf("config: feeder error for %s: %w", key, err)
			}
		}
		if setupable, ok := target.(Setup); ok {
			if err := setupable.Setup(); err != nil {
				return fmt.Errorf("config: setup error for %s: %w", key, err)
			}
		}
	}
	return nil
}

// Load builds env from feeders (in order) and applies Feed. Any feeder
// left unset simply contributes nothing, matching the teacher's
// "skip if no ConfigFeeders are defined" behavior in loadAppConfig.
func Load(env *Environment, feeders []Feeder, log logger.Logger) error {
	if log == nil {
		log = logger.Noop{}
	}
	if len(feeders) == 0 {
		log.Info("no config feeders defined, using default environment settings")
		return nil
	}

	cfg := NewConfig()
	for _, f := range feeders {
		cfg.AddFeeder(f)
	}
	cfg.AddStruct(env)

	if err := cfg.Feed(); err != nil {
		return fmt.Errorf("config: load failed: %w", err)
	}
	log.Info("configuration loaded", "dispatchers", len(env.Dispatchers), "timerEngine", env.TimerEngine)
	return nil
}
