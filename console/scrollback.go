package console

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// DefaultScrollback is the per-terminal replay capacity in bytes.
const DefaultScrollback = 256 * 1024

// scrollback is a fixed-size circular byte buffer holding raw terminal
// output, escape sequences included, for replay when a pane regains focus.
// New writes overwrite the oldest bytes once the buffer is full.
type scrollback struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	pos      int
	full     bool
}

func newScrollback(capacity int) *scrollback {
	if capacity <= 0 {
		capacity = DefaultScrollback
	}
	return &scrollback{data: make([]byte, capacity), capacity: capacity}
}

func (s *scrollback) Write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p) >= s.capacity {
		copy(s.data, p[len(p)-s.capacity:])
		s.pos = 0
		s.full = true
		return
	}
	for offset := 0; offset < len(p); {
		n := copy(s.data[s.pos:], p[offset:])
		offset += n
		s.pos += n
		if s.pos == s.capacity {
			s.pos = 0
			s.full = true
		}
	}
}

// Bytes returns the retained output, oldest first.
func (s *scrollback) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return append([]byte(nil), s.data[:s.pos]...)
	}
	out := make([]byte, 0, s.capacity)
	out = append(out, s.data[s.pos:]...)
	return append(out, s.data[:s.pos]...)
}

func (s *scrollback) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return s.capacity
	}
	return s.pos
}

func (s *scrollback) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.full = false
}

// LastLine returns the last non-blank line of output with escape sequences
// removed.
func (s *scrollback) LastLine() string {
	lines := strings.Split(string(s.Bytes()), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(ansi.Strip(lines[i])); line != "" {
			return line
		}
	}
	return ""
}
