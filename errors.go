package actorcore

import "errors"

// Environment errors
var (
	ErrNotRunning     = errors.New("actorcore: environment is not running")
	ErrAlreadyRunning = errors.New("actorcore: environment is already running")
	ErrUnknownMbox    = errors.New("actorcore: unknown mbox id")
	ErrUnknownAgent   = errors.New("actorcore: unknown agent id")
)

// Launch errors
var (
	ErrInitFuncNil = errors.New("actorcore: init function is nil")
)
