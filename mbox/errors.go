package mbox

import "errors"

// Programming errors: callers that trip these have misused the API in a
// way that cannot be repaired at runtime.
var (
	ErrDuplicateSubscription = errors.New("mbox: duplicate subscription for message type in this state")
	ErrMutableOnMPMC         = errors.New("mbox: mutable messages cannot be sent through a multi-subscriber mbox")
	ErrFilterOnMPSC          = errors.New("mbox: delivery filters are not supported on direct (MPSC) mboxes")
	ErrNoSubscription        = errors.New("mbox: no subscription for message type in this state")
	ErrNilHandler            = errors.New("mbox: subscription handler is nil")
	ErrMutableShared         = errors.New("mbox: mutable envelope already has more than one owner")
)

// Chain (mchain) errors.
var (
	ErrChainClosed      = errors.New("mbox: chain is closed")
	ErrChainFull         = errors.New("mbox: chain overflow: capacity exceeded")
	ErrChainEmptyTimeout = errors.New("mbox: chain receive timed out waiting for a message")
	ErrChainAbort        = errors.New("mbox: chain overflow policy aborted the application")
)
