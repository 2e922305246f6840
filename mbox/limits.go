package mbox

import (
	"os"
	"reflect"
	"sync/atomic"
)

// AbortAppAction is invoked when a Limit configured with ReactionAbortApp
// is exceeded, mirroring so_5's abort-on-overflow reaction: an application
// that cannot tolerate falling behind on a given message type would rather
// stop than silently queue unboundedly. Named distinctly from the Chain
// OverflowPolicy constant also called AbortApp. Overridable so tests can
// observe the abort without killing the test binary.
var AbortAppAction = func() { os.Exit(1) }

// LimitReaction names what happens to a message that would push a
// subscriber's per-message-type count past its configured limit.
type LimitReaction int

const (
	// ReactionNone means no limit is configured for this (agent, type).
	ReactionNone LimitReaction = iota
	// ReactionDrop silently discards the message.
	ReactionDrop
	// ReactionAbortApp treats the overflow as fatal.
	ReactionAbortApp
	// ReactionRedirect sends the message to a different mbox instead.
	ReactionRedirect
	// ReactionTransform rewrites the message (typically to a smaller or
	// summarized payload) before continuing delivery. When Redirect is
	// also set, the transformed payload is delivered there instead of to
	// the original subscriber, mirroring so_5's limit_then_transform
	// reaction, which pairs a transformation with a target mbox.
	ReactionTransform
	// ReactionWait is accepted but blocks nothing: MPMC and MPSC mboxes
	// treat it like ReactionDrop, and a Chain applies no Limit at all.
	ReactionWait
)

// Limit is one control block: the cap on outstanding messages of a given
// type a single subscriber is willing to hold, and what to do when it is
// exceeded.
type Limit struct {
	MsgType   reflect.Type
	Capacity  int64
	Reaction  LimitReaction
	Redirect  Mbox                    // used when Reaction == ReactionRedirect
	Transform func(payload any) any   // used when Reaction == ReactionTransform

	count atomic.Int64
}

// NewLimit builds a Limit control block.
func NewLimit(msgType reflect.Type, capacity int64, reaction LimitReaction) *Limit {
	return &Limit{MsgType: msgType, Capacity: capacity, Reaction: reaction}
}

// TryAcquire increments the in-flight count and reports whether the
// message may proceed. The counter is incremented before the handler runs
// and decremented once delivery completes (successfully or not) via
// Release, mirroring the control block lifecycle in spec section 4.5.
func (l *Limit) TryAcquire() bool {
	if l == nil || l.Capacity <= 0 {
		return true
	}
	n := l.count.Add(1)
	if n > l.Capacity {
		l.count.Add(-1)
		return false
	}
	return true
}

// Release decrements the in-flight count after a handler finishes.
func (l *Limit) Release() {
	if l == nil {
		return
	}
	l.count.Add(-1)
}

// LimitTable indexes Limit control blocks by message type for one
// subscriber (agent). Agents with no configured limits use a nil table,
// under which every message always proceeds.
type LimitTable struct {
	limits map[reflect.Type]*Limit
}

// NewLimitTable returns an empty LimitTable.
func NewLimitTable() *LimitTable {
	return &LimitTable{limits: make(map[reflect.Type]*Limit)}
}

// Set installs or replaces the Limit for msgType.
func (t *LimitTable) Set(l *Limit) {
	t.limits[l.MsgType] = l
}

// Lookup returns the Limit for msgType, or nil if unlimited.
func (t *LimitTable) Lookup(msgType reflect.Type) *Limit {
	if t == nil {
		return nil
	}
	return t.limits[msgType]
}
