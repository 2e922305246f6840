// Package subscription implements the four interchangeable subscription
// storage strategies an mbox can use to index its (message type, state) ->
// handler table: a linear vector for the common small case, a sorted slice,
// a plain hash map, and an adaptive storage that promotes/demotes between
// vector and hash map as the subscriber count crosses a threshold.
package subscription

import (
	"reflect"
	"sort"

	"github.com/sobjgo/actorcore/dispatcher"
)

// Key identifies one subscription slot: a message type delivered while the
// agent is in a given state. A nil State matches "any state" subscriptions.
type Key struct {
	MsgType reflect.Type
	State   any
}

// Handler is the function invoked on delivery. When an mbox runs it inline,
// Deliver returns its error to the sender; when it runs as a demand pushed
// through a Sink, the error is discarded.
type Handler func(payload any) error

// Sink binds a subscription to the dispatcher queue its owning agent was
// bound to at cooperation registration time. When present, Deliver pushes a
// dispatcher.Demand through Queue instead of invoking Handler on the
// caller's own goroutine, which is what keeps a non-adv dispatcher's
// handlers for one agent strictly serialized. A subscription with a nil
// Sink (most bare test mboxes, or any subscription registered outside the
// agent/cooperation wiring) falls back to inline, synchronous delivery.
type Sink struct {
	Queue      dispatcher.Queue
	AgentID    uint64
	Priority   dispatcher.Priority
	ThreadSafe bool
}

// Entry is one stored subscription.
type Entry struct {
	Key     Key
	Handler Handler
	Sink    *Sink
}

// Storage is implemented by each of the four strategies below. An mbox
// consults its Storage once per Deliver: removing a key stops later
// deliveries from matching it, while demands already pushed to a dispatcher
// queue for that key still run.
type Storage interface {
	// Insert adds or replaces the handler (and its dispatcher sink, if
	// any) for key. Replacing an existing key is a programming error at
	// the mbox layer, not here: Storage itself is a dumb index and
	// reports whether key already existed so the caller can decide.
	Insert(key Key, h Handler, sink *Sink) (existed bool)
	// Remove drops key. It reports whether the key was present.
	Remove(key Key) (existed bool)
	// RemoveAllStates drops every entry for msgType regardless of state.
	RemoveAllStates(msgType reflect.Type) (removed int)
	// Lookup returns the handler for key, if any.
	Lookup(key Key) (Handler, bool)
	// Has reports whether key is subscribed.
	Has(key Key) bool
	// Len reports the number of stored entries.
	Len() int
	// Entries returns a snapshot of all stored entries, for bulk export
	// during adaptive promotion/demotion or coop teardown.
	Entries() []Entry
}

// VectorStorage is a linear-scan slice, the cheapest option when a mbox
// typically has only a handful of subscribers.
type VectorStorage struct {
	entries []Entry
}

// NewVectorStorage returns an empty vector-backed Storage.
func NewVectorStorage() *VectorStorage {
	return &VectorStorage{}
}

func (s *VectorStorage) indexOf(key Key) int {
	for i := range s.entries {
		if s.entries[i].Key == key {
			return i
		}
	}
	return -1
}

func (s *VectorStorage) Insert(key Key, h Handler, sink *Sink) bool {
	if i := s.indexOf(key); i >= 0 {
		s.entries[i].Handler = h
		s.entries[i].Sink = sink
		return true
	}
	s.entries = append(s.entries, Entry{Key: key, Handler: h, Sink: sink})
	return false
}

func (s *VectorStorage) Remove(key Key) bool {
	i := s.indexOf(key)
	if i < 0 {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return true
}

func (s *VectorStorage) RemoveAllStates(msgType reflect.Type) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Key.MsgType == msgType {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed
}

func (s *VectorStorage) Lookup(key Key) (Handler, bool) {
	if i := s.indexOf(key); i >= 0 {
		return s.entries[i].Handler, true
	}
	return nil, false
}

func (s *VectorStorage) Has(key Key) bool { return s.indexOf(key) >= 0 }
func (s *VectorStorage) Len() int         { return len(s.entries) }

func (s *VectorStorage) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// MapStorage keeps entries in a slice sorted by a string key, approximating
// the original's ordered-map-based subscription table. The standard library
// has no balanced-tree container, so a sorted slice with binary search is
// the idiomatic substitute (see DESIGN.md).
type MapStorage struct {
	entries []Entry
}

// NewMapStorage returns an empty sorted-slice-backed Storage.
func NewMapStorage() *MapStorage {
	return &MapStorage{}
}

func sortKey(k Key) string {
	name := "<nil-type>"
	if k.MsgType != nil {
		name = k.MsgType.String()
	}
	return name
}

func (s *MapStorage) search(key Key) (int, bool) {
	target := sortKey(key)
	i := sort.Search(len(s.entries), func(i int) bool {
		return sortKey(s.entries[i].Key) >= target
	})
	for i < len(s.entries) && sortKey(s.entries[i].Key) == target {
		if s.entries[i].Key == key {
			return i, true
		}
		i++
	}
	return i, false
}

func (s *MapStorage) Insert(key Key, h Handler, sink *Sink) bool {
	i, found := s.search(key)
	if found {
		s.entries[i].Handler = h
		s.entries[i].Sink = sink
		return true
	}
	s.entries = append(s.entries, Entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = Entry{Key: key, Handler: h, Sink: sink}
	return false
}

func (s *MapStorage) Remove(key Key) bool {
	i, found := s.search(key)
	if !found {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return true
}

func (s *MapStorage) RemoveAllStates(msgType reflect.Type) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Key.MsgType == msgType {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed
}

func (s *MapStorage) Lookup(key Key) (Handler, bool) {
	if i, found := s.search(key); found {
		return s.entries[i].Handler, true
	}
	return nil, false
}

func (s *MapStorage) Has(key Key) bool { _, found := s.search(key); return found }
func (s *MapStorage) Len() int         { return len(s.entries) }

func (s *MapStorage) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// HashStorage is a plain Go map: constant-time, unordered.
type HashStorage struct {
	entries map[Key]hashEntry
}

// hashEntry pairs a Handler with its optional Sink inside HashStorage's map,
// since a plain map[Key]Handler has nowhere to also carry the sink.
type hashEntry struct {
	handler Handler
	sink    *Sink
}

// NewHashStorage returns an empty map-backed Storage.
func NewHashStorage() *HashStorage {
	return &HashStorage{entries: make(map[Key]hashEntry)}
}

func (s *HashStorage) Insert(key Key, h Handler, sink *Sink) bool {
	_, existed := s.entries[key]
	s.entries[key] = hashEntry{handler: h, sink: sink}
	return existed
}

func (s *HashStorage) Remove(key Key) bool {
	_, existed := s.entries[key]
	delete(s.entries, key)
	return existed
}

func (s *HashStorage) RemoveAllStates(msgType reflect.Type) int {
	removed := 0
	for k := range s.entries {
		if k.MsgType == msgType {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *HashStorage) Lookup(key Key) (Handler, bool) {
	e, ok := s.entries[key]
	return e.handler, ok
}

func (s *HashStorage) Has(key Key) bool { _, ok := s.entries[key]; return ok }
func (s *HashStorage) Len() int         { return len(s.entries) }

func (s *HashStorage) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for k, e := range s.entries {
		out = append(out, Entry{Key: k, Handler: e.handler, Sink: e.sink})
	}
	return out
}

// DefaultAdaptiveThreshold is the subscriber count at and below which
// AdaptiveStorage stays vector-backed. Grounded on original_source's
// message_limit_internals.hpp, whose info_storage_t flips its
// m_small_container flag at exactly 8 entries.
const DefaultAdaptiveThreshold = 8

// AdaptiveStorage starts as a VectorStorage and promotes itself to a
// HashStorage once its entry count exceeds Threshold, demoting back down
// when it shrinks to Threshold or fewer again. Most agents subscribe to a handful of
// message types, so the vector form dominates in practice; a handful of
// high-fanout dispatcher or broadcast agents benefit from the hash form.
type AdaptiveStorage struct {
	Threshold int
	small     *VectorStorage
	large     *HashStorage
}

// NewAdaptiveStorage returns an empty adaptive Storage using
// DefaultAdaptiveThreshold.
func NewAdaptiveStorage() *AdaptiveStorage {
	return &AdaptiveStorage{Threshold: DefaultAdaptiveThreshold, small: NewVectorStorage()}
}

func (s *AdaptiveStorage) active() Storage {
	if s.large != nil {
		return s.large
	}
	return s.small
}

func (s *AdaptiveStorage) maybePromote() {
	if s.large != nil || s.small.Len() <= s.Threshold {
		return
	}
	large := NewHashStorage()
	for _, e := range s.small.Entries() {
		large.Insert(e.Key, e.Handler, e.Sink)
	}
	s.large = large
	s.small = nil
}

func (s *AdaptiveStorage) maybeDemote() {
	if s.large == nil || s.large.Len() > s.Threshold {
		return
	}
	small := NewVectorStorage()
	for _, e := range s.large.Entries() {
		small.Insert(e.Key, e.Handler, e.Sink)
	}
	s.small = small
	s.large = nil
}

func (s *AdaptiveStorage) Insert(key Key, h Handler, sink *Sink) bool {
	existed := s.active().Insert(key, h, sink)
	s.maybePromote()
	return existed
}

func (s *AdaptiveStorage) Remove(key Key) bool {
	existed := s.active().Remove(key)
	s.maybeDemote()
	return existed
}

func (s *AdaptiveStorage) RemoveAllStates(msgType reflect.Type) int {
	n := s.active().RemoveAllStates(msgType)
	s.maybeDemote()
	return n
}

func (s *AdaptiveStorage) Lookup(key Key) (Handler, bool) { return s.active().Lookup(key) }
func (s *AdaptiveStorage) Has(key Key) bool               { return s.active().Has(key) }
func (s *AdaptiveStorage) Len() int                       { return s.active().Len() }
func (s *AdaptiveStorage) Entries() []Entry                { return s.active().Entries() }
