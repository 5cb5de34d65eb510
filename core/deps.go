package core

import (
	"pkt.systems/pslog"
	"pkt.systems/termplex/schema"
)

// TerminalHandle is the live unit behind a pane.
type TerminalHandle interface {
	Start()
	Relayout()
	Close()
}

// TerminalRequest describes the unit to create for a new pane.
type TerminalRequest struct {
	Session    schema.SessionID
	Pane       schema.PaneID
	TerminalID schema.TerminalID
	OnStatus   func(schema.Status)
	OnExit     func()
}

// TerminalFactory creates units for new panes. NewTerminal must not call
// back into the manager.
type TerminalFactory interface {
	NewTerminal(req TerminalRequest) (TerminalHandle, error)
}

// TerminalFactoryFunc adapts a function to TerminalFactory.
type TerminalFactoryFunc func(req TerminalRequest) (TerminalHandle, error)

// NewTerminal calls f.
func (f TerminalFactoryFunc) NewTerminal(req TerminalRequest) (TerminalHandle, error) {
	return f(req)
}

// ManagerDeps captures optional dependencies for the session manager.
type ManagerDeps struct {
	Terminals TerminalFactory
	EventSink EventSink
	Logger    pslog.Logger
	// NewTerminalID overrides terminal id generation.
	NewTerminalID func() schema.TerminalID
}
