package core

import "pkt.systems/termplex/schema"

// Shortcuts is the document-level keyboard surface for the terminal panel.
type Shortcuts struct {
	manager *Manager
}

// NewShortcuts binds shortcuts to a manager.
func NewShortcuts(manager *Manager) *Shortcuts {
	return &Shortcuts{manager: manager}
}

// HandleKey reports whether the event was consumed. Keys are only handled
// while the panel is open and the event target is not a text input.
//
// modifier+D requests a close step. Alt bindings: n new session, s split,
// o next pane, [ and ] previous and next session.
func (s *Shortcuts) HandleKey(event schema.KeyEvent) bool {
	if s == nil || s.manager == nil || event.TextInput || !s.manager.PanelOpen() {
		return false
	}
	if event.Modifier() && !event.Alt && event.Is("d") {
		s.manager.RequestClose()
		return true
	}
	if !event.Alt || event.Modifier() {
		return false
	}
	switch {
	case event.Is("n"):
		s.manager.AddSession()
	case event.Is("s"):
		s.manager.AddSplitPane()
	case event.Is("o"):
		s.manager.NextPane(1)
	case event.Is("["):
		s.manager.NextSession(-1)
	case event.Is("]"):
		s.manager.NextSession(1)
	default:
		return false
	}
	return true
}
