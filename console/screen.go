package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"pkt.systems/termplex/schema"
)

// statusRows is the number of rows reserved at the bottom of the window.
const statusRows = 1

// Screen owns the real terminal. Only the focused terminal is painted; the
// last row is the status bar.
type Screen struct {
	mu        sync.Mutex
	out       io.Writer
	width     int
	height    int
	focus     schema.TerminalID
	renderers map[schema.TerminalID]*renderer
	status    string
}

// NewScreen wraps out with the given window size.
func NewScreen(out io.Writer, width, height int) *Screen {
	return &Screen{
		out:       out,
		width:     width,
		height:    height,
		renderers: make(map[schema.TerminalID]*renderer),
	}
}

// Size returns the window size.
func (s *Screen) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// PaneSize returns the area available to a terminal.
func (s *Screen) PaneSize() (int, int) {
	width, height := s.Size()
	height -= statusRows
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return width, height
}

// Resize records a new window size and repaints.
func (s *Screen) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.width && height == s.height {
		return
	}
	s.width, s.height = width, height
	s.repaintLocked()
}

// Focus selects the terminal to paint and replays its scrollback.
func (s *Screen) Focus(id schema.TerminalID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focus == id {
		return
	}
	s.focus = id
	s.repaintLocked()
}

// Focused returns the painted terminal.
func (s *Screen) Focused() schema.TerminalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

// SetStatus replaces the status bar text.
func (s *Screen) SetStatus(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if line == s.status {
		return
	}
	s.status = line
	s.drawStatusLocked()
}

// Reset restores the scroll region and clears the window.
func (s *Screen) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.out, "\x1b[r\x1b[2J\x1b[H")
}

// WriteControl writes a control sequence that does not belong to any pane.
func (s *Screen) WriteControl(seq string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.out, seq)
}

func (s *Screen) register(r *renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderers[r.id] = r
	if r.id == s.focus {
		s.repaintLocked()
	}
}

func (s *Screen) forget(r *renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderers[r.id] == r {
		delete(s.renderers, r.id)
	}
}

func (s *Screen) renderer(id schema.TerminalID) *renderer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderers[id]
}

// paint writes output for id when it is focused.
func (s *Screen) paint(id schema.TerminalID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.focus || s.renderers[id] == nil {
		return
	}
	_, _ = s.out.Write(data)
	s.drawStatusLocked()
}

// clear blanks the pane area when id is focused.
func (s *Screen) clear(id schema.TerminalID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.focus {
		return
	}
	s.repaintLocked()
}

func (s *Screen) repaintLocked() {
	var b strings.Builder
	if s.height > statusRows {
		fmt.Fprintf(&b, "\x1b[1;%dr", s.height-statusRows)
	}
	b.WriteString("\x1b[2J\x1b[H")
	if r := s.renderers[s.focus]; r != nil {
		b.Write(r.history.Bytes())
	}
	_, _ = io.WriteString(s.out, b.String())
	s.drawStatusLocked()
}

func (s *Screen) drawStatusLocked() {
	if s.height <= 0 || s.width <= 0 {
		return
	}
	line := ansi.Truncate(s.status, s.width, "…")
	fmt.Fprintf(s.out, "\x1b7\x1b[%d;1H\x1b[2K%s\x1b[0m\x1b8", s.height, line)
}

var statusBadges = map[schema.Status]string{
	schema.StatusActive:  "●",
	schema.StatusLoading: "◐",
	schema.StatusIdle:    "○",
}

// statusLine renders one tab per session with its aggregate status badge.
// The active session is shown in reverse video with its pane position.
func statusLine(snapshot schema.ManagerSnapshot) string {
	var b strings.Builder
	for i, session := range snapshot.Sessions {
		badge, ok := statusBadges[session.Status]
		if !ok {
			badge = statusBadges[schema.StatusIdle]
		}
		label := fmt.Sprintf(" %d:%s %s", i+1, session.Label, badge)
		if session.Active && len(session.Panes) > 1 {
			for j, pane := range session.Panes {
				if pane.Active {
					label += fmt.Sprintf(" [%d/%d]", j+1, len(session.Panes))
				}
			}
		}
		label += " "
		if session.Active {
			b.WriteString("\x1b[7m" + label + "\x1b[0m")
		} else {
			b.WriteString(label)
		}
	}
	return b.String()
}
