package core

import "pkt.systems/termplex/schema"

// CloseKind names the outcome of a close request.
type CloseKind int

const (
	// CloseKindPane closes the active pane of a split session.
	CloseKindPane CloseKind = iota + 1
	// CloseKindSession closes the active session.
	CloseKindSession
	// CloseKindPanel closes the terminal panel.
	CloseKindPanel
)

func (k CloseKind) String() string {
	switch k {
	case CloseKindPane:
		return "pane"
	case CloseKindSession:
		return "session"
	case CloseKindPanel:
		return "panel"
	default:
		return "none"
	}
}

// CloseState is the input to DecideClose.
type CloseState struct {
	ActiveSession schema.SessionID
	ActivePane    schema.PaneID
	PaneCount     int
	SessionCount  int
}

// CloseAction is the decision taken by DecideClose. ClosePanel is also set
// when closing the last session.
type CloseAction struct {
	Kind       CloseKind
	Session    schema.SessionID
	Pane       schema.PaneID
	ClosePanel bool
}

// DecideClose applies the pane, session, panel close order: a split session
// loses its active pane, otherwise the active session closes, otherwise the
// panel closes.
func DecideClose(state CloseState) CloseAction {
	switch {
	case state.ActiveSession != "" && state.PaneCount > 1:
		return CloseAction{Kind: CloseKindPane, Session: state.ActiveSession, Pane: state.ActivePane}
	case state.ActiveSession != "":
		return CloseAction{Kind: CloseKindSession, Session: state.ActiveSession, ClosePanel: state.SessionCount <= 1}
	default:
		return CloseAction{Kind: CloseKindPanel, ClosePanel: true}
	}
}

// CloseState captures the manager state DecideClose needs.
func (m *Manager) CloseState() CloseState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := CloseState{SessionCount: len(m.sessions)}
	if s := m.activeSessionLocked(); s != nil {
		state.ActiveSession = s.id
		state.ActivePane = m.activePane[s.id]
		state.PaneCount = len(s.panes)
	}
	return state
}

// RequestClose decides and applies one close step.
func (m *Manager) RequestClose() CloseAction {
	action := DecideClose(m.CloseState())
	switch action.Kind {
	case CloseKindPane:
		m.CloseSplitPane(action.Pane)
	case CloseKindSession:
		m.CloseSession(action.Session, true)
	}
	if action.ClosePanel {
		m.SetPanelOpen(false)
	}
	m.log.Debug("manager close requested", "kind", action.Kind, "session", action.Session, "pane", action.Pane)
	return action
}
