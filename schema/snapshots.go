package schema

// PaneSnapshot is a read-only view of a pane.
type PaneSnapshot struct {
	ID         PaneID     `json:"id"`
	Label      string     `json:"label"`
	TerminalID TerminalID `json:"terminal_id"`
	Status     Status     `json:"status"`
	Active     bool       `json:"active"`
}

// SessionSnapshot is a read-only view of a session. Status is the aggregate
// of its panes' statuses.
type SessionSnapshot struct {
	ID         SessionID      `json:"id"`
	Label      string         `json:"label"`
	Panes      []PaneSnapshot `json:"panes"`
	ActivePane PaneID         `json:"active_pane"`
	Status     Status         `json:"status"`
	Active     bool           `json:"active"`
}

// ManagerSnapshot is the session/pane topology exposed to the host UI.
type ManagerSnapshot struct {
	Sessions      []SessionSnapshot     `json:"sessions"`
	ActiveSession SessionID             `json:"active_session"`
	ActivePane    PaneID                `json:"active_pane"`
	Statuses      map[TerminalID]Status `json:"statuses,omitempty"`
	PanelOpen     bool                  `json:"panel_open"`
}

// Session returns the snapshot of the session with id, if present.
func (s ManagerSnapshot) Session(id SessionID) (SessionSnapshot, bool) {
	for _, session := range s.Sessions {
		if session.ID == id {
			return session, true
		}
	}
	return SessionSnapshot{}, false
}

// AggregateStatus derives a session status from its pane statuses: loading
// if any pane is loading, else active if any pane is active, else idle.
func AggregateStatus(statuses []Status) Status {
	active := false
	for _, status := range statuses {
		switch status {
		case StatusLoading:
			return StatusLoading
		case StatusActive:
			active = true
		}
	}
	if active {
		return StatusActive
	}
	return StatusIdle
}
