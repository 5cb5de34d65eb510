package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termplex/schema"
)

type contextKey int

const (
	sessionKey contextKey = iota
	terminalKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// Or returns log, or the context-free default logger when log is nil.
func Or(log pslog.Logger) pslog.Logger {
	if log != nil {
		return log
	}
	return pslog.Ctx(context.Background())
}

// WithSession annotates the logger with the session id if present.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithPane annotates the logger with session and pane identifiers.
func WithPane(log pslog.Logger, sessionID schema.SessionID, paneID schema.PaneID) pslog.Logger {
	log = WithSession(log, sessionID)
	if paneID != "" {
		log = log.With("pane", paneID)
	}
	return log
}

// WithTerminal annotates the logger with the terminal id if present.
func WithTerminal(log pslog.Logger, terminalID schema.TerminalID) pslog.Logger {
	if terminalID != "" {
		log = log.With("terminal", terminalID)
	}
	return log
}

// ForTerminal returns the context logger annotated with the terminal id,
// skipping the field when the context already carries the same marker.
func ForTerminal(ctx context.Context, terminalID schema.TerminalID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if current, ok := ctx.Value(terminalKey).(schema.TerminalID); ok && current == terminalID {
		return log
	}
	return WithTerminal(log, terminalID)
}

// ForSession returns the context logger annotated with the session id,
// skipping the field when the context already carries the same marker.
func ForSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
		return log
	}
	return WithSession(log, sessionID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithTerminalLogger attaches the logger and terminal marker to the context.
func ContextWithTerminalLogger(ctx context.Context, log pslog.Logger, terminalID schema.TerminalID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if terminalID == "" {
		return ctx
	}
	return context.WithValue(ctx, terminalKey, terminalID)
}
