package config

import (
	"maps"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sobjgo/actorcore/logger"
)

// Change describes one field that differed between the Environment active
// before and after a reload, mirroring the teacher's ConfigChange
// (config_diff.go) narrowed to the three fields actorcore allows to change
// live.
type Change struct {
	FieldPath string
	OldValue  any
	NewValue  any
	Source    string
}

// liveReloadableFields lists the Environment fields a running process may
// pick up without a restart. Anything else (Dispatchers, TimerEngine) binds
// dispatchers and timer engines at Launch time and cannot change safely, so
// edits to those fields are ignored by a running Watcher.
var liveReloadableFields = []string{"TracingEnabled", "LogLevel", "StatsIntervalSeconds"}

func diffLiveFields(oldEnv, newEnv *Environment, source string) []Change {
	var changes []Change
	oldVal := reflect.ValueOf(*oldEnv)
	newVal := reflect.ValueOf(*newEnv)
	for _, name := range liveReloadableFields {
		o := oldVal.FieldByName(name).Interface()
		n := newVal.FieldByName(name).Interface()
		if o != n {
			changes = append(changes, Change{FieldPath: name, OldValue: o, NewValue: n, Source: source})
		}
	}
	return changes
}

// Watcher watches a backing config file with fsnotify and, on write events,
// re-runs feeders against a scratch copy of Environment, diffing it against
// the live Environment and invoking onChange only for the bounded set of
// live-reloadable fields. Fields outside that set are left untouched in the
// live Environment even if the file changes, since dispatchers and timer
// engines are already bound to goroutines by the time a reload fires.
type Watcher struct {
	path     string
	env      *Environment
	feeders  []Feeder
	log      logger.Logger
	onChange func([]Change)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher builds a Watcher over path, reloading env with feeders whenever
// path is written. onChange is invoked after a successful reload that
// changed at least one live-reloadable field; a reload with no such change
// does not call it.
func NewWatcher(path string, env *Environment, feeders []Feeder, log logger.Logger, onChange func([]Change)) (*Watcher, error) {
	if log == nil {
		log = logger.Noop{}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		env:      env,
		feeders:  feeders,
		log:      log,
		onChange: onChange,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Run blocks processing fsnotify events until Stop is called. Call it in a
// dedicated goroutine.
func (w *Watcher) Run() {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !pending {
				pending = true
				debounce.Reset(50 * time.Millisecond)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		case <-debounce.C:
			pending = false
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	scratch := *w.env
	scratch.Dispatchers = maps.Clone(w.env.Dispatchers)
	if err := Load(&scratch, w.feeders, w.log); err != nil {
		w.log.Error("config hot reload failed, keeping previous settings", "error", err)
		return
	}

	changes := diffLiveFields(w.env, &scratch, "file:"+w.path)
	if len(changes) == 0 {
		return
	}

	w.env.TracingEnabled = scratch.TracingEnabled
	w.env.LogLevel = scratch.LogLevel
	w.env.StatsIntervalSeconds = scratch.StatsIntervalSeconds

	w.log.Info("config hot reload applied", "changedFields", len(changes))
	if w.onChange != nil {
		w.onChange(changes)
	}
}

// Stop releases the fsnotify watch and stops Run.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
