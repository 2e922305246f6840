package actorcore

import (
	"time"

	"github.com/sobjgo/actorcore/agent"
	"github.com/sobjgo/actorcore/mbox"
	"github.com/sobjgo/actorcore/message"
	"github.com/sobjgo/actorcore/timer"
)

// Send wraps payload in an Immutable envelope and delivers it to box,
// matching every subscription that did not register for a specific state.
func Send(box mbox.Mbox, payload any) error {
	return box.Deliver(message.NewImmutable(payload), nil)
}

// SendInState is Send, but delivers as if the subscriber were in state: it
// reaches subscriptions registered for state plus those registered for any
// state, and skips subscriptions registered for other states.
func SendInState(box mbox.Mbox, payload any, state any) error {
	return box.Deliver(message.NewImmutable(payload), state)
}

// SendMutable wraps payload in a Mutable envelope and delivers it. Only
// MPSC mboxes accept Mutable envelopes; an MPMC target returns
// mbox.ErrMutableOnMPMC.
func SendMutable(box mbox.Mbox, payload any) error {
	return box.Deliver(message.NewMutable(payload), nil)
}

// SendDelayed schedules payload for delivery to box after delay, using the
// environment's timer service. The returned timer.ID can be passed to
// CancelDelayed before it fires.
func (e *Environment) SendDelayed(box mbox.Mbox, payload any, delay time.Duration) timer.ID {
	return e.timers.SingleTimer(delay, func() {
		if err := Send(box, payload); err != nil {
			e.log.Error("delayed send failed", "mbox", box.ID(), "error", err)
		}
	})
}

// SendPeriodic schedules payload for repeated delivery to box every period,
// starting after the first period elapses.
func (e *Environment) SendPeriodic(box mbox.Mbox, payload any, period time.Duration) timer.ID {
	return e.timers.Schedule(period, period, func() {
		if err := Send(box, payload); err != nil {
			e.log.Error("periodic send failed", "mbox", box.ID(), "error", err)
		}
	})
}

// CancelDelayed cancels a timer previously returned by SendDelayed or
// SendPeriodic. Safe to call after the timer has already fired.
func (e *Environment) CancelDelayed(id timer.ID) {
	e.timers.Cancel(id)
}

// MboxOf resolves h back to the full mbox.Mbox interface for use with Send,
// panicking if h was not created by this environment. Agent code that only
// has an agent.MboxHandle from Define should keep that handle around and
// call this once, during EvtStart, rather than on every send.
func (e *Environment) MboxOf(h agent.MboxHandle) mbox.Mbox {
	box, err := e.Mbox(h)
	if err != nil {
		panic(err)
	}
	return box
}
