package schema

// ManagerEventType identifies a session manager event.
type ManagerEventType string

const (
	// ManagerEventSessionAdded is emitted after a session is created.
	ManagerEventSessionAdded ManagerEventType = "session.added"
	// ManagerEventSessionClosed is emitted after a session is removed.
	ManagerEventSessionClosed ManagerEventType = "session.closed"
	// ManagerEventSessionActivated is emitted when the active session changes.
	ManagerEventSessionActivated ManagerEventType = "session.activated"
	// ManagerEventPaneAdded is emitted after a split pane is created.
	ManagerEventPaneAdded ManagerEventType = "pane.added"
	// ManagerEventPaneClosed is emitted after a split pane is removed.
	ManagerEventPaneClosed ManagerEventType = "pane.closed"
	// ManagerEventPaneFocused is emitted when the active pane changes.
	ManagerEventPaneFocused ManagerEventType = "pane.focused"
	// ManagerEventStatus is emitted when a terminal status changes.
	ManagerEventStatus ManagerEventType = "status"
	// ManagerEventPanel is emitted when the panel opens or closes.
	ManagerEventPanel ManagerEventType = "panel"
)

// ManagerEvent describes a topology or status change.
type ManagerEvent struct {
	Type     ManagerEventType
	Session  SessionID
	Pane     PaneID
	Terminal TerminalID
	Status   Status
	Snapshot ManagerSnapshot
}
