package schema

// TerminalID identifies one remote pseudo-terminal. It routes frames on the
// shared transport and is never reused.
type TerminalID string

// PaneID identifies a pane within a session.
type PaneID string

// SessionID identifies a session (a terminal tab).
type SessionID string

// Status describes the lifecycle state of a single terminal.
type Status string

const (
	// StatusIdle indicates the terminal is not connected to a live shell.
	StatusIdle Status = "idle"
	// StatusLoading indicates the terminal is starting or negotiating geometry.
	StatusLoading Status = "loading"
	// StatusActive indicates the terminal is live.
	StatusActive Status = "active"
)

// Geometry is a terminal size in character cells.
type Geometry struct {
	Cols int
	Rows int
}

// Valid reports whether both dimensions are positive.
func (g Geometry) Valid() bool {
	return g.Cols > 0 && g.Rows > 0
}
