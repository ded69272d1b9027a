package storm

import "errors"

// Package-level sentinel errors. Per spec.md §7, recoverable conditions
// are reported through return values -- these wrap that into errors for
// the handful of APIs (InitAcceptor, DestroyAcceptor, AcceptorAddr) that
// have no natural bool/id-shaped failure mode.
var (
	// ErrListenerBindFailed is returned by InitAcceptor when the listen
	// socket could not be bound.
	ErrListenerBindFailed = errors.New("storm: listener bind failed")

	// ErrAcceptorNotFound is returned by DestroyAcceptor and AcceptorAddr
	// for an unknown id.
	ErrAcceptorNotFound = errors.New("storm: acceptor not found")

	// ErrBackendClosed reports a closed backend. No API of this package
	// returns it.
	ErrBackendClosed = errors.New("storm: backend is closed")
)
