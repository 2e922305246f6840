// Package tracing implements the message-delivery tracing observer: a
// cross-cutting sink for subscribe/unsubscribe/deliver/overlimit/push-to-
// queue events. Grounded on the teacher's observer.go (Observer/Subject/
// ObserverInfo/EventType) and, for the external wire format, on
// cloudevents/sdk-go/v2 so trace records can be emitted as CloudEvents
// without inventing a bespoke schema.
package tracing

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/sobjgo/actorcore/mbox"
	"github.com/sobjgo/actorcore/subscription"
)

// EventType mirrors the teacher's observer.go EventType constants,
// narrowed to the delivery events spec section 4.9 calls out.
type EventType string

const (
	EventSubscribe   EventType = "mbox.subscribe"
	EventUnsubscribe EventType = "mbox.unsubscribe"
	EventDeliver     EventType = "mbox.deliver"
	EventOverlimit   EventType = "mbox.overlimit"
	EventPushToQueue EventType = "mbox.push_to_queue"
)

// Record is one observed tracing event.
type Record struct {
	Type      EventType
	MboxID    mbox.ID
	MsgType   string
	State     string
	Reaction  mbox.LimitReaction
	Timestamp time.Time
}

// Observer receives Record values. Implementations must not block:
// Notify is called synchronously on the mbox's own delivery path.
type Observer interface {
	Notify(Record)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Record)

func (f ObserverFunc) Notify(r Record) { f(r) }

// Subject fans a Record out to every registered Observer, grounded on the
// teacher's Subject/ObservableModule pattern (observer.go).
type Subject struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewSubject returns an empty Subject.
func NewSubject() *Subject {
	return &Subject{}
}

// Attach registers o to receive future records.
func (s *Subject) Attach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Subject) notify(r Record) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, o := range observers {
		o.Notify(r)
	}
}

// Hook adapts a Subject to mbox.DeliveryHook, the interface mboxes call
// directly on their own delivery path.
type Hook struct {
	subject *Subject
}

// NewHook wraps subject as an mbox.DeliveryHook.
func NewHook(subject *Subject) *Hook {
	return &Hook{subject: subject}
}

func stateName(state any) string {
	if state == nil {
		return ""
	}
	if s, ok := state.(string); ok {
		return s
	}
	return ""
}

func (h *Hook) OnSubscribe(box mbox.ID, key subscription.Key) {
	h.subject.notify(Record{Type: EventSubscribe, MboxID: box, MsgType: key.MsgType.String(), State: stateName(key.State), Timestamp: time.Now()})
}

func (h *Hook) OnUnsubscribe(box mbox.ID, key subscription.Key) {
	h.subject.notify(Record{Type: EventUnsubscribe, MboxID: box, MsgType: key.MsgType.String(), State: stateName(key.State), Timestamp: time.Now()})
}

func (h *Hook) OnDeliver(box mbox.ID, key subscription.Key, payload any) {
	h.subject.notify(Record{Type: EventDeliver, MboxID: box, MsgType: key.MsgType.String(), State: stateName(key.State), Timestamp: time.Now()})
}

func (h *Hook) OnOverlimit(box mbox.ID, key subscription.Key, reaction mbox.LimitReaction) {
	h.subject.notify(Record{Type: EventOverlimit, MboxID: box, MsgType: key.MsgType.String(), State: stateName(key.State), Reaction: reaction, Timestamp: time.Now()})
}

func (h *Hook) OnPushToQueue(box mbox.ID, key subscription.Key) {
	h.subject.notify(Record{Type: EventPushToQueue, MboxID: box, MsgType: key.MsgType.String(), State: stateName(key.State), Timestamp: time.Now()})
}

// CloudEventsSink adapts Record values to CloudEvents and hands them to
// Send, grounded on the teacher's observer_cloudevents.go. actorcore does
// not prescribe a transport for the emitted events (that would reintroduce
// the distributed-transport Non-goal); Send is supplied by the embedding
// application (e.g. a cloudevents/sdk-go HTTP or in-memory client).
type CloudEventsSink struct {
	source string
	Send   func(context.Context, cloudevents.Event) error
}

// NewCloudEventsSink builds a Sink that stamps every emitted event with
// source as its CloudEvents source attribute.
func NewCloudEventsSink(source string, send func(context.Context, cloudevents.Event) error) *CloudEventsSink {
	return &CloudEventsSink{source: source, Send: send}
}

func (c *CloudEventsSink) Notify(r Record) {
	if c.Send == nil {
		return
	}
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(c.source)
	event.SetType(string(r.Type))
	event.SetTime(r.Timestamp)
	_ = event.SetData(cloudevents.ApplicationJSON, map[string]any{
		"mboxId":  r.MboxID,
		"msgType": r.MsgType,
		"state":   r.State,
	})
	_ = c.Send(context.Background(), event)
}
