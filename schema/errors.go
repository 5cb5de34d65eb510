package schema

import "errors"

var (
	// ErrMalformedFrame indicates an inbound frame could not be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMissingTerminalID indicates an inbound frame carried no routing id.
	ErrMissingTerminalID = errors.New("frame missing terminal_id")
	// ErrNotReady indicates the transport is not connected.
	ErrNotReady = errors.New("transport not ready")
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")
	// ErrSessionNotFound indicates a requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPaneNotFound indicates a requested pane does not exist.
	ErrPaneNotFound = errors.New("pane not found")
	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("invalid config")
)
