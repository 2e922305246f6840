// Package statechart implements the hierarchical agent state machine:
// states with an optional parent, an initial substate, shallow/deep
// history, and on_enter/on_exit hooks. State carries TimeLimit and
// TimeLimitHandler fields, but Machine does not schedule or fire them.
package statechart

import "time"

// History selects how a composite state resumes a previously-active
// substate when re-entered.
type History int

const (
	// NoHistory always re-enters the composite state's declared initial
	// substate.
	NoHistory History = iota
	// ShallowHistory re-enters the substate that was active when this
	// state was last exited, but that substate's own children (if any)
	// restart at their own initial substates.
	ShallowHistory
	// DeepHistory re-enters the full chain of previously-active
	// descendants, recursively.
	DeepHistory
)

// State is one node in the statechart arena. States are addressed by index
// within their owning Machine rather than by pointer, so the arena can be
// copied or inspected without worrying about internal aliasing.
type State struct {
	Name    string
	Parent  int // -1 for the root state
	Initial int // index of the initial substate, -1 if this is a leaf
	History History

	OnEnter func()
	OnExit  func()

	// TimeLimit and TimeLimitHandler are stored with the state but not
	// acted on: Start and Transition neither schedule a timer on entry nor
	// call TimeLimitHandler.
	TimeLimit        time.Duration
	TimeLimitHandler func()

	lastActiveChild int // -1 if none recorded yet; used by History
}

// NewState returns a State with no parent, no initial substate, and no
// history, ready to be added to a Machine.
func NewState(name string) State {
	return State{Name: name, Parent: -1, Initial: -1, lastActiveChild: -1}
}
