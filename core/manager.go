package core

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termplex/internal/logx"
	"pkt.systems/termplex/schema"
)

type pane struct {
	id       schema.PaneID
	label    string
	terminal schema.TerminalID
	handle   TerminalHandle
}

type session struct {
	id       schema.SessionID
	label    string
	panes    []*pane
	panesSeq int
}

func (s *session) paneIndex(id schema.PaneID) int {
	for i, p := range s.panes {
		if p.id == id {
			return i
		}
	}
	return -1
}

// Manager owns the session and pane topology and the per-terminal status map.
// Exactly one session is active unless none exist, and within it exactly one
// pane is active.
type Manager struct {
	cfg           schema.ManagerConfig
	terminals     TerminalFactory
	sink          EventSink
	log           pslog.Logger
	newTerminalID func() schema.TerminalID

	mu            sync.Mutex
	sessions      []*session
	activeSession schema.SessionID
	activePane    map[schema.SessionID]schema.PaneID
	statuses      map[schema.TerminalID]schema.Status
	handlers      map[schema.TerminalID]func(schema.Status)
	panelOpen     bool
	sessionSeq    int
	paneSeq       int
}

// effects are applied after the manager lock is released.
type effects struct {
	start  []*pane
	close  []TerminalHandle
	relay  []TerminalHandle
	events []schema.ManagerEvent
}

// NewManager constructs a manager with one bootstrapped session.
func NewManager(cfg schema.ManagerConfig, deps ManagerDeps) (*Manager, error) {
	normalized, err := schema.NormalizeManagerConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	newID := deps.NewTerminalID
	if newID == nil {
		newID = newTerminalID
	}
	m := &Manager{
		cfg:           normalized,
		terminals:     deps.Terminals,
		sink:          deps.EventSink,
		log:           logger,
		newTerminalID: newID,
		activePane:    make(map[schema.SessionID]schema.PaneID),
		statuses:      make(map[schema.TerminalID]schema.Status),
		handlers:      make(map[schema.TerminalID]func(schema.Status)),
		panelOpen:     true,
	}
	if _, ok := m.AddSession(); !ok {
		return nil, fmt.Errorf("%w: could not bootstrap a session", schema.ErrInvalidConfig)
	}
	return m, nil
}

// AddSession creates a session with one pane and activates it. It is a no-op
// once MaxSessions is reached.
func (m *Manager) AddSession() (schema.SessionSnapshot, bool) {
	var fx effects
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		m.log.Debug("manager session limit reached", "max", m.cfg.MaxSessions)
		return schema.SessionSnapshot{}, false
	}
	m.sessionSeq++
	s := &session{id: sessionID(m.sessionSeq), label: fmt.Sprintf("Terminal %d", m.sessionSeq)}
	m.sessions = append(m.sessions, s)
	p := m.newPaneLocked(s)
	m.activeSession = s.id
	m.activePane[s.id] = p.id
	fx.start = append(fx.start, p)
	snapshot := m.snapshotLocked()
	fx.events = append(fx.events, schema.ManagerEvent{
		Type:     schema.ManagerEventSessionAdded,
		Session:  s.id,
		Pane:     p.id,
		Terminal: p.terminal,
		Snapshot: snapshot,
	})
	m.mu.Unlock()

	logx.WithPane(m.log, s.id, p.id).Info("manager session added", "terminal", p.terminal)
	m.apply(s.id, fx)
	view, _ := snapshot.Session(s.id)
	return view, true
}

// CloseSession removes a session and releases its units. The only session is
// kept unless force is set. When the active session closes, the session to
// its left is activated, or the new first session when it was first.
func (m *Manager) CloseSession(id schema.SessionID, force bool) bool {
	var fx effects
	m.mu.Lock()
	idx := m.sessionIndexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	if !force && len(m.sessions) == 1 {
		m.mu.Unlock()
		m.log.Debug("manager refused to close last session", "session", id)
		return false
	}
	s := m.sessions[idx]
	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)
	for _, p := range s.panes {
		fx.close = append(fx.close, m.releaseLocked(p)...)
	}
	delete(m.activePane, id)
	wasActive := m.activeSession == id
	if wasActive {
		m.activeSession = ""
		if len(m.sessions) > 0 {
			next := idx - 1
			if next < 0 {
				next = 0
			}
			m.activateLocked(m.sessions[next])
			for _, p := range m.sessions[next].panes {
				if p.handle != nil {
					fx.relay = append(fx.relay, p.handle)
				}
			}
		}
	}
	snapshot := m.snapshotLocked()
	fx.events = append(fx.events, schema.ManagerEvent{Type: schema.ManagerEventSessionClosed, Session: id, Snapshot: snapshot})
	if wasActive && m.activeSession != "" {
		fx.events = append(fx.events, schema.ManagerEvent{
			Type:     schema.ManagerEventSessionActivated,
			Session:  m.activeSession,
			Pane:     m.activePane[m.activeSession],
			Snapshot: snapshot,
		})
	}
	m.mu.Unlock()

	logx.WithSession(m.log, id).Info("manager session closed", "force", force, "remaining", len(snapshot.Sessions))
	m.apply(id, fx)
	return true
}

// SwitchSession activates a session and restores its remembered pane.
func (m *Manager) SwitchSession(id schema.SessionID) bool {
	var fx effects
	m.mu.Lock()
	idx := m.sessionIndexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	if m.activeSession == id {
		m.mu.Unlock()
		return true
	}
	s := m.sessions[idx]
	m.activateLocked(s)
	for _, p := range s.panes {
		if p.handle != nil {
			fx.relay = append(fx.relay, p.handle)
		}
	}
	fx.events = append(fx.events, schema.ManagerEvent{
		Type:     schema.ManagerEventSessionActivated,
		Session:  id,
		Pane:     m.activePane[id],
		Snapshot: m.snapshotLocked(),
	})
	m.mu.Unlock()

	logx.WithSession(m.log, id).Debug("manager session switched")
	m.apply(id, fx)
	return true
}

// NextSession cycles the active session by delta positions.
func (m *Manager) NextSession(delta int) bool {
	m.mu.Lock()
	count := len(m.sessions)
	idx := m.sessionIndexLocked(m.activeSession)
	if count == 0 || idx < 0 {
		m.mu.Unlock()
		return false
	}
	target := m.sessions[wrap(idx+delta, count)].id
	m.mu.Unlock()
	return m.SwitchSession(target)
}

// EnsureSession bootstraps a session when none exist.
func (m *Manager) EnsureSession() bool {
	m.mu.Lock()
	empty := len(m.sessions) == 0
	m.mu.Unlock()
	if !empty {
		return false
	}
	_, ok := m.AddSession()
	return ok
}

// AddSplitPane appends a pane to the active session and focuses it. It is a
// no-op once the session holds MaxSplits panes.
func (m *Manager) AddSplitPane() (schema.PaneSnapshot, bool) {
	var fx effects
	m.mu.Lock()
	s := m.activeSessionLocked()
	if s == nil {
		m.mu.Unlock()
		return schema.PaneSnapshot{}, false
	}
	if len(s.panes) >= m.cfg.MaxSplits {
		m.mu.Unlock()
		logx.WithSession(m.log, s.id).Debug("manager split limit reached", "max", m.cfg.MaxSplits)
		return schema.PaneSnapshot{}, false
	}
	p := m.newPaneLocked(s)
	m.activePane[s.id] = p.id
	fx.start = append(fx.start, p)
	for _, other := range s.panes {
		if other != p && other.handle != nil {
			fx.relay = append(fx.relay, other.handle)
		}
	}
	snapshot := m.snapshotLocked()
	fx.events = append(fx.events, schema.ManagerEvent{
		Type:     schema.ManagerEventPaneAdded,
		Session:  s.id,
		Pane:     p.id,
		Terminal: p.terminal,
		Snapshot: snapshot,
	})
	m.mu.Unlock()

	logx.WithPane(m.log, s.id, p.id).Info("manager pane added", "terminal", p.terminal)
	m.apply(s.id, fx)
	view, _ := snapshot.Session(s.id)
	return view.Panes[len(view.Panes)-1], true
}

// CloseSplitPane removes a pane and releases its unit. The last pane of a
// session is never removed. When the active pane closes, the pane to its
// left is activated, or the new first pane when it was first.
func (m *Manager) CloseSplitPane(id schema.PaneID) bool {
	var fx effects
	m.mu.Lock()
	s, idx := m.paneOwnerLocked(id)
	if s == nil {
		m.mu.Unlock()
		return false
	}
	if len(s.panes) == 1 {
		m.mu.Unlock()
		logx.WithPane(m.log, s.id, id).Debug("manager refused to close last pane")
		return false
	}
	p := s.panes[idx]
	s.panes = append(s.panes[:idx], s.panes[idx+1:]...)
	fx.close = append(fx.close, m.releaseLocked(p)...)
	if m.activePane[s.id] == id {
		next := idx - 1
		if next < 0 {
			next = 0
		}
		m.activePane[s.id] = s.panes[next].id
	}
	for _, other := range s.panes {
		if other.handle != nil {
			fx.relay = append(fx.relay, other.handle)
		}
	}
	fx.events = append(fx.events, schema.ManagerEvent{
		Type:     schema.ManagerEventPaneClosed,
		Session:  s.id,
		Pane:     id,
		Terminal: p.terminal,
		Snapshot: m.snapshotLocked(),
	})
	m.mu.Unlock()

	logx.WithPane(m.log, s.id, id).Info("manager pane closed")
	m.apply(s.id, fx)
	return true
}

// FocusPane activates a pane of the active session. It never switches
// sessions; panes outside the active session are rejected.
func (m *Manager) FocusPane(id schema.PaneID) bool {
	var fx effects
	m.mu.Lock()
	s := m.activeSessionLocked()
	if s == nil || s.paneIndex(id) < 0 {
		m.mu.Unlock()
		return false
	}
	if m.activePane[s.id] == id {
		m.mu.Unlock()
		return true
	}
	m.activePane[s.id] = id
	fx.events = append(fx.events, schema.ManagerEvent{
		Type:     schema.ManagerEventPaneFocused,
		Session:  s.id,
		Pane:     id,
		Snapshot: m.snapshotLocked(),
	})
	m.mu.Unlock()
	m.apply(s.id, fx)
	return true
}

// NextPane cycles focus within the active session by delta positions.
func (m *Manager) NextPane(delta int) bool {
	m.mu.Lock()
	s := m.activeSessionLocked()
	if s == nil {
		m.mu.Unlock()
		return false
	}
	idx := s.paneIndex(m.activePane[s.id])
	if idx < 0 {
		idx = 0
	}
	target := s.panes[wrap(idx+delta, len(s.panes))].id
	m.mu.Unlock()
	return m.FocusPane(target)
}

// StatusChangeHandler returns the status handler for a terminal. The same
// handler is returned until the terminal is released; writes equal to the
// current status are ignored. Handlers for unknown or released terminals are
// not memoized.
func (m *Manager) StatusChangeHandler(id schema.TerminalID) func(schema.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handler, ok := m.handlers[id]; ok {
		return handler
	}
	handler := func(status schema.Status) {
		m.setStatus(id, status)
	}
	if _, live := m.statuses[id]; live {
		m.handlers[id] = handler
	}
	return handler
}

func (m *Manager) setStatus(id schema.TerminalID, status schema.Status) {
	m.mu.Lock()
	current, live := m.statuses[id]
	if !live || current == status {
		m.mu.Unlock()
		return
	}
	m.statuses[id] = status
	event := schema.ManagerEvent{Type: schema.ManagerEventStatus, Terminal: id, Status: status}
	if s, idx := m.terminalOwnerLocked(id); s != nil {
		event.Session = s.id
		event.Pane = s.panes[idx].id
	}
	event.Snapshot = m.snapshotLocked()
	m.mu.Unlock()

	logx.WithTerminal(m.log, id).Debug("manager status changed", "status", status)
	m.publish(event)
}

// SessionStatus returns the aggregate status of a session.
func (m *Manager) SessionStatus(id schema.SessionID) (schema.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.sessionIndexLocked(id)
	if idx < 0 {
		return schema.StatusIdle, false
	}
	return m.aggregateLocked(m.sessions[idx]), true
}

// TerminalStatus returns the stored status of a live terminal.
func (m *Manager) TerminalStatus(id schema.TerminalID) (schema.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[id]
	return status, ok
}

// ActiveSessionID returns the active session, or "" when none exist.
func (m *Manager) ActiveSessionID() schema.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSession
}

// ActivePaneID returns the active pane of the active session.
func (m *Manager) ActivePaneID() schema.PaneID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activePane[m.activeSession]
}

// Sessions returns the sessions in display order.
func (m *Manager) Sessions() []schema.SessionSnapshot {
	return m.Snapshot().Sessions
}

// Snapshot returns the current topology and statuses.
func (m *Manager) Snapshot() schema.ManagerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// PanelOpen reports whether the terminal panel is open.
func (m *Manager) PanelOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panelOpen
}

// SetPanelOpen opens or closes the panel. Reopening bootstraps a session when
// none exist and re-lays out every live unit.
func (m *Manager) SetPanelOpen(open bool) {
	m.mu.Lock()
	if m.panelOpen == open {
		m.mu.Unlock()
		return
	}
	m.panelOpen = open
	m.mu.Unlock()

	if open {
		m.EnsureSession()
	}
	var fx effects
	m.mu.Lock()
	if open {
		for _, s := range m.sessions {
			for _, p := range s.panes {
				if p.handle != nil {
					fx.relay = append(fx.relay, p.handle)
				}
			}
		}
	}
	fx.events = append(fx.events, schema.ManagerEvent{Type: schema.ManagerEventPanel, Snapshot: m.snapshotLocked()})
	m.mu.Unlock()

	m.log.Info("manager panel", "open", open)
	m.apply("", fx)
}

// TogglePanel flips the panel state.
func (m *Manager) TogglePanel() {
	m.SetPanelOpen(!m.PanelOpen())
}

// Close releases every unit. The manager keeps its topology.
func (m *Manager) Close() {
	var handles []TerminalHandle
	m.mu.Lock()
	for _, s := range m.sessions {
		for _, p := range s.panes {
			if p.handle != nil {
				handles = append(handles, p.handle)
				p.handle = nil
			}
		}
	}
	m.mu.Unlock()
	for _, handle := range handles {
		handle.Close()
	}
}

func (m *Manager) newPaneLocked(s *session) *pane {
	m.paneSeq++
	s.panesSeq++
	p := &pane{
		id:       paneID(m.paneSeq),
		label:    fmt.Sprintf("Pane %d", s.panesSeq),
		terminal: m.newTerminalID(),
	}
	s.panes = append(s.panes, p)
	m.statuses[p.terminal] = schema.StatusLoading
	return p
}

// releaseLocked forgets a pane's terminal and returns its handle for closing.
func (m *Manager) releaseLocked(p *pane) []TerminalHandle {
	delete(m.statuses, p.terminal)
	delete(m.handlers, p.terminal)
	if p.handle == nil {
		return nil
	}
	handle := p.handle
	p.handle = nil
	return []TerminalHandle{handle}
}

func (m *Manager) activateLocked(s *session) {
	m.activeSession = s.id
	if s.paneIndex(m.activePane[s.id]) < 0 {
		m.activePane[s.id] = s.panes[0].id
	}
}

func (m *Manager) activeSessionLocked() *session {
	idx := m.sessionIndexLocked(m.activeSession)
	if idx < 0 {
		return nil
	}
	return m.sessions[idx]
}

func (m *Manager) sessionIndexLocked(id schema.SessionID) int {
	if id == "" {
		return -1
	}
	for i, s := range m.sessions {
		if s.id == id {
			return i
		}
	}
	return -1
}

func (m *Manager) paneOwnerLocked(id schema.PaneID) (*session, int) {
	for _, s := range m.sessions {
		if idx := s.paneIndex(id); idx >= 0 {
			return s, idx
		}
	}
	return nil, -1
}

func (m *Manager) terminalOwnerLocked(id schema.TerminalID) (*session, int) {
	for _, s := range m.sessions {
		for i, p := range s.panes {
			if p.terminal == id {
				return s, i
			}
		}
	}
	return nil, -1
}

func (m *Manager) aggregateLocked(s *session) schema.Status {
	statuses := make([]schema.Status, 0, len(s.panes))
	for _, p := range s.panes {
		statuses = append(statuses, m.statuses[p.terminal])
	}
	return schema.AggregateStatus(statuses)
}

func (m *Manager) snapshotLocked() schema.ManagerSnapshot {
	snapshot := schema.ManagerSnapshot{
		ActiveSession: m.activeSession,
		ActivePane:    m.activePane[m.activeSession],
		Statuses:      make(map[schema.TerminalID]schema.Status, len(m.statuses)),
		PanelOpen:     m.panelOpen,
	}
	for id, status := range m.statuses {
		snapshot.Statuses[id] = status
	}
	for _, s := range m.sessions {
		view := schema.SessionSnapshot{
			ID:         s.id,
			Label:      s.label,
			ActivePane: m.activePane[s.id],
			Status:     m.aggregateLocked(s),
			Active:     s.id == m.activeSession,
		}
		for _, p := range s.panes {
			view.Panes = append(view.Panes, schema.PaneSnapshot{
				ID:         p.id,
				Label:      p.label,
				TerminalID: p.terminal,
				Status:     m.statuses[p.terminal],
				Active:     p.id == view.ActivePane,
			})
		}
		snapshot.Sessions = append(snapshot.Sessions, view)
	}
	return snapshot
}

func (m *Manager) apply(sessionID schema.SessionID, fx effects) {
	for _, handle := range fx.close {
		handle.Close()
	}
	for _, p := range fx.start {
		m.attach(sessionID, p)
	}
	for _, handle := range fx.relay {
		handle.Relayout()
	}
	for _, event := range fx.events {
		m.publish(event)
	}
}

// attach creates and starts the unit for a pane that is still live.
func (m *Manager) attach(sessionID schema.SessionID, p *pane) {
	if m.terminals == nil {
		return
	}
	m.mu.Lock()
	_, idx := m.paneOwnerLocked(p.id)
	m.mu.Unlock()
	if idx < 0 {
		return
	}
	log := logx.WithPane(m.log, sessionID, p.id)
	handle, err := m.terminals.NewTerminal(TerminalRequest{
		Session:    sessionID,
		Pane:       p.id,
		TerminalID: p.terminal,
		OnStatus:   m.StatusChangeHandler(p.terminal),
		OnExit:     func() { m.RequestClose() },
	})
	if err != nil {
		log.Warn("manager terminal create failed", "err", err)
		m.setStatus(p.terminal, schema.StatusIdle)
		return
	}
	m.mu.Lock()
	_, idx = m.paneOwnerLocked(p.id)
	live := idx >= 0
	if live {
		p.handle = handle
	} else {
		delete(m.handlers, p.terminal)
	}
	m.mu.Unlock()
	if !live {
		handle.Close()
		return
	}
	handle.Start()
}

func (m *Manager) publish(event schema.ManagerEvent) {
	if m.sink != nil {
		m.sink.Publish(event)
	}
}

func wrap(idx, count int) int {
	idx %= count
	if idx < 0 {
		idx += count
	}
	return idx
}
