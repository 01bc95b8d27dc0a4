package core

import "errors"

// Error classes shared by the connection and delivery layers.
// Callers wrap them with context and classify with errors.Is.
var (
	// ErrInvalidCredential means the handshake credential failed verification.
	// The connection is left unauthenticated unless the server requires auth.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrMalformedFrame means an inbound payload could not be parsed.
	// It is logged and the connection continues.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrIO means a blob or store write failed; the delivery is aborted.
	ErrIO = errors.New("io failure")
	// ErrTransport means the socket failed; the session is closed.
	ErrTransport = errors.New("transport failure")
)
