// Package message implements the envelope model used to pass payloads
// between agents: immutable and mutable envelopes, signals, and the small
// reference-counted handle that lets an envelope be shared across several
// mboxes without copying its payload.
package message

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Mutability marks whether the payload carried by an Envelope may be
// modified by its recipient.
type Mutability int

const (
	// Immutable payloads must never be modified by a handler. They may be
	// fanned out to any number of MPMC subscribers concurrently.
	Immutable Mutability = iota
	// Mutable payloads are delivered to exactly one handler and may be
	// modified in place. Mutable envelopes are rejected by MPMC mboxes.
	Mutable
)

func (m Mutability) String() string {
	if m == Mutable {
		return "mutable"
	}
	return "immutable"
}

// Signal is implemented by payload-less message types. A signal carries no
// data beyond its own type identity; sending one still wraps it in an
// Envelope like any other payload.
type Signal interface {
	isSignal()
}

// Ref is a small atomic-refcounted handle to an Envelope. Several mboxes (or
// several pending demands on the same mbox) can hold a Ref to the same
// Envelope; the payload is released only once the last Ref is dropped.
//
// This is the Go-native replacement for so_5's smart_atomic_reference_t: a
// GC language has no destructor to hook the final release into, so Acquire
// and Release are explicit calls. The mbox and dispatcher layers call
// neither; a Ref's count stays at 1 unless its holder adjusts it.
type Ref struct {
	env *Envelope
}

// Envelope is the boxed form of a payload as it travels through the mbox
// and dispatcher layers.
type Envelope struct {
	payload    any
	mutability Mutability
	msgType    reflect.Type
	refs       atomic.Int32
	wrapped    *Envelope // non-nil when this envelope was built by Wrap
}

// NewImmutable builds an Immutable envelope around payload.
func NewImmutable(payload any) Ref {
	return newRef(payload, Immutable)
}

// NewMutable builds a Mutable envelope around payload. payload must be a
// pointer type: the whole point of a mutable message is that a single
// handler may modify it in place.
func NewMutable(payload any) Ref {
	return newRef(payload, Mutable)
}

func newRef(payload any, mutability Mutability) Ref {
	env := &Envelope{
		payload:    payload,
		mutability: mutability,
		msgType:    reflect.TypeOf(payload),
	}
	env.refs.Store(1)
	return Ref{env: env}
}

// Acquire increments the envelope's refcount and returns a new handle to
// the same envelope. MPMC fan-out does not call it: every subscription of
// one publish receives the same payload from the same Ref.
func (r Ref) Acquire() Ref {
	if r.env == nil {
		return r
	}
	r.env.refs.Add(1)
	return r
}

// Release decrements the envelope's refcount. Once it reaches zero the
// envelope is eligible for collection; callers must not use r afterward.
func (r Ref) Release() {
	if r.env == nil {
		return
	}
	r.env.refs.Add(-1)
}

// Payload returns the boxed value.
func (r Ref) Payload() any {
	if r.env == nil {
		return nil
	}
	return r.env.payload
}

// Mutability reports whether the envelope is Mutable or Immutable.
func (r Ref) Mutability() Mutability {
	if r.env == nil {
		return Immutable
	}
	return r.env.mutability
}

// Type returns the reflect.Type of the boxed payload.
func (r Ref) Type() reflect.Type {
	if r.env == nil {
		return nil
	}
	return r.env.msgType
}

// IsValid reports whether r holds an envelope at all.
func (r Ref) IsValid() bool {
	return r.env != nil
}

// Shared reports whether more than one live Ref currently points at r's
// envelope. A Mutable envelope must have exactly one owner at the moment it
// is handed to its single subscriber: if a holder called Acquire to keep a
// second handle before delivery completed, handing the same mutable payload
// to two owners would let them race on in-place modification.
func (r Ref) Shared() bool {
	if r.env == nil {
		return false
	}
	return r.env.refs.Load() > 1
}

// Wrap nests r inside a new envelope carrying the same mutability and
// payload, so a caller can layer an envelope over a message without
// mutating or copying its payload. Tracing and the transform/redirect
// limit reactions do not use it.
func Wrap(r Ref) Ref {
	if r.env == nil {
		return r
	}
	outer := &Envelope{
		payload:    r.env.payload,
		mutability: r.env.mutability,
		msgType:    r.env.msgType,
		wrapped:    r.env,
	}
	outer.refs.Store(1)
	return Ref{env: outer}
}

// Unwrap returns the envelope one layer beneath r, or the zero Ref if r is
// not a wrapper.
func Unwrap(r Ref) Ref {
	if r.env == nil || r.env.wrapped == nil {
		return Ref{}
	}
	return Ref{env: r.env.wrapped}
}

func (r Ref) String() string {
	if r.env == nil {
		return "message.Ref(nil)"
	}
	return fmt.Sprintf("message.Ref{type=%s, mutability=%s}", r.env.msgType, r.env.mutability)
}
