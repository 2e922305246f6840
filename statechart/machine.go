package statechart

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrUnknownState is returned when a state index or name does not exist in
// the machine's arena.
var ErrUnknownState = errors.New("statechart: unknown state")

// Scheduler is the shape of a timer capability for per-state time limits.
// Nothing in actorcore constructs one or hands one to a Machine; the
// statechart package itself has no timer dependency so it can be tested
// and reused in isolation.
type Scheduler func(delay func() bool, after func()) (cancel func())

// Machine is an arena of State nodes plus the currently-active leaf. Only
// one leaf is active at a time; "active" ancestors are every state on the
// path from the root to that leaf.
type Machine struct {
	mu       sync.Mutex
	states   []State
	byName   map[string]int
	current  int // index of the active leaf, -1 before Start
	epoch    atomic.Uint64
	schedule func(time uint64, fn func()) // never set; no setter exists
	cancelFn func(time uint64)
}

// NewMachine returns an empty Machine with a single implicit root state
// named "root" at index 0.
func NewMachine() *Machine {
	root := NewState("root")
	m := &Machine{states: []State{root}, byName: map[string]int{"root": 0}, current: -1}
	return m
}

// AddState appends s to the arena and returns its index. If s.Parent is
// < 0 it is attached under the implicit root (index 0) unless s IS the
// root itself.
func (m *Machine) AddState(s State) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Parent < 0 && len(m.states) > 0 {
		s.Parent = 0
	}
	s.lastActiveChild = -1
	idx := len(m.states)
	m.states = append(m.states, s)
	m.byName[s.Name] = idx
	return idx
}

// SetInitial records child as the state entered by default when parent is
// activated (no history, or no recorded history yet).
func (m *Machine) SetInitial(parent, child int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[parent].Initial = child
}

// StateByName resolves a state's arena index by name.
func (m *Machine) StateByName(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byName[name]
	if !ok {
		return -1, ErrUnknownState
	}
	return idx, nil
}

// Current returns the index of the currently active leaf state, or -1 if
// the machine has not been started.
func (m *Machine) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// pathToRoot returns the chain of state indices from idx up to (and
// including) the root, closest-first.
func (m *Machine) pathToRoot(idx int) []int {
	var path []int
	for idx >= 0 {
		path = append(path, idx)
		idx = m.states[idx].Parent
	}
	return path
}

// resolveEntryLeaf follows Initial (or recorded history) down from idx
// until it reaches a leaf with no Initial substate configured.
//
// History belongs to the state being re-entered, not to whichever
// descendants it happens to contain: a DeepHistory flag on idx restores the
// entire previously-active descendant chain regardless of whether any
// intermediate descendant is itself flagged, while ShallowHistory restores
// only idx's immediate child and lets that child's own descendants start
// fresh from its Initial chain.
func (m *Machine) resolveEntryLeaf(idx int) int {
	s := &m.states[idx]
	switch {
	case s.History == DeepHistory && s.lastActiveChild >= 0:
		return m.resolveDeep(s.lastActiveChild)
	case s.History == ShallowHistory && s.lastActiveChild >= 0:
		return m.resolvePlain(s.lastActiveChild)
	case s.Initial >= 0:
		return m.resolveEntryLeaf(s.Initial)
	default:
		return idx
	}
}

// resolveDeep descends from idx using each level's own recorded
// lastActiveChild unconditionally: a DeepHistory re-entry applies all the
// way down regardless of which intermediate levels carry their own History
// flag.
func (m *Machine) resolveDeep(idx int) int {
	s := &m.states[idx]
	if s.lastActiveChild >= 0 {
		return m.resolveDeep(s.lastActiveChild)
	}
	if s.Initial >= 0 {
		return m.resolveDeep(s.Initial)
	}
	return idx
}

// resolvePlain descends from idx by Initial only, ignoring any recorded
// history: used once a Shallow (or the boundary of a Deep) re-entry has
// placed the machine at the remembered level and its descendants should
// start fresh.
func (m *Machine) resolvePlain(idx int) int {
	s := &m.states[idx]
	if s.Initial < 0 {
		return idx
	}
	return m.resolvePlain(s.Initial)
}

// Start activates the machine's default entry leaf (following Initial
// chains from the root) and runs OnEnter hooks root-to-leaf.
func (m *Machine) Start() {
	m.mu.Lock()
	target := m.resolveEntryLeaf(0)
	path := m.pathToRoot(target)
	m.current = target
	m.mu.Unlock()

	// Run OnEnter from the root outward so a parent's setup always
	// precedes its child's.
	for i := len(path) - 1; i >= 0; i-- {
		if hook := m.states[path[i]].OnEnter; hook != nil {
			hook()
		}
	}
}

// Transition moves the machine's active leaf to target, exiting every
// state on the old path that is not an ancestor of target (innermost
// first) and entering every state on the new path that was not already
// active (outermost first), recording ShallowHistory/DeepHistory data on
// any exited composite ancestors as it goes.
func (m *Machine) Transition(target int) {
	m.mu.Lock()
	oldPath := m.pathToRoot(m.current)
	entryLeaf := m.resolveEntryLeaf(target)
	newPath := m.pathToRoot(entryLeaf)

	oldSet := make(map[int]bool, len(oldPath))
	for _, s := range oldPath {
		oldSet[s] = true
	}
	newSet := make(map[int]bool, len(newPath))
	for _, s := range newPath {
		newSet[s] = true
	}

	var toExit []int
	for _, s := range oldPath {
		if !newSet[s] {
			toExit = append(toExit, s)
		}
	}
	var toEnter []int
	for i := len(newPath) - 1; i >= 0; i-- {
		if !oldSet[newPath[i]] {
			toEnter = append(toEnter, newPath[i])
		}
	}
	m.current = entryLeaf
	m.mu.Unlock()

	for _, idx := range toExit {
		s := &m.states[idx]
		if s.Parent >= 0 {
			// Always record the exited child, not just when the parent
			// itself has a History flag: a DeepHistory flag several levels
			// up needs every intermediate level's lastActiveChild to have
			// been tracked, even where that intermediate level has no
			// History of its own.
			m.states[s.Parent].lastActiveChild = idx
		}
		if s.OnExit != nil {
			s.OnExit()
		}
	}
	for _, idx := range toEnter {
		if hook := m.states[idx].OnEnter; hook != nil {
			hook()
		}
	}
}

// IsActive reports whether idx is on the path from the root to the
// current leaf (i.e. is the current leaf or one of its ancestors).
func (m *Machine) IsActive(idx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.pathToRoot(m.current) {
		if s == idx {
			return true
		}
	}
	return false
}
