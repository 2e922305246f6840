package actorcore

import (
	"time"

	"github.com/sobjgo/actorcore/mbox"
	"github.com/sobjgo/actorcore/message"
)

// CreateMchain builds a bounded or unbounded FIFO message chain. capacity
// <= 0 means unbounded. overflow and memory are ignored when unbounded.
// Unlike CreateMbox/CreateMPSCMbox, an mchain is not registered in the
// environment's mbox table by handle: it is typically owned directly by
// the cooperation or agent that creates it and handed out to collaborators
// as a *mbox.Chain, the same way so_5 hands out mchain_t by value. The
// returned Chain still implements mbox.Mbox, so Send/SendDelayed/
// SendPeriodic and Subscribe/SubscribeSelf can target it directly.
func (e *Environment) CreateMchain(capacity int, overflow mbox.OverflowPolicy, memory mbox.MemoryPolicy) *mbox.Chain {
	return mbox.NewChain(mbox.ID(e.nextID.Add(1)), capacity, overflow, memory)
}

// SendToChain wraps payload as an Immutable envelope and pushes it onto
// chain, blocking per chain's overflow policy if it is at capacity.
func SendToChain(chain *mbox.Chain, payload any) error {
	return chain.Send(message.NewImmutable(payload))
}

// ReceiveCase and SendCase re-export mbox's Select case types so callers
// building a multi-chain wait don't need to import package mbox directly
// for the common case of also using Send/Subscribe from this package.
type (
	ReceiveCase = mbox.ReceiveCase
	SendCase    = mbox.SendCase
)

// Select polls receives and sends until exactly one case fires, or timeout
// elapses (timeout <= 0 blocks indefinitely). See mbox.Select for the
// polling rationale.
func Select(timeout time.Duration, receives []ReceiveCase, sends []SendCase) (int, error) {
	return mbox.Select(timeout, receives, sends)
}
