package terminal

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const exitCommand = "exit"

// lineTracker shadows the unsent input line typed locally. It only sees
// keystrokes, never remote echo.
type lineTracker struct {
	runes []rune
	max   int
}

func newLineTracker(max int) lineTracker {
	return lineTracker{max: max}
}

// feed applies one keystroke chunk and reports whether it committed the exit
// command.
func (l *lineTracker) feed(chunk string) bool {
	if strings.ContainsRune(chunk, 0x1b) {
		l.reset()
		return false
	}
	for len(chunk) > 0 {
		r, size := utf8.DecodeRuneInString(chunk)
		chunk = chunk[size:]
		switch {
		case r == '\r' || r == '\n':
			line := strings.TrimSpace(string(l.runes))
			l.reset()
			if strings.EqualFold(line, exitCommand) {
				return true
			}
		case r == 0x7f || r == 0x08:
			if len(l.runes) == 0 {
				l.reset()
				continue
			}
			l.runes = l.runes[:len(l.runes)-1]
		case r == 0x03 || r == 0x15:
			// ctrl-c, ctrl-u
			l.reset()
		case r == utf8.RuneError && size == 1:
		case unicode.IsControl(r):
		default:
			if l.max > 0 && len(l.runes) >= l.max {
				continue
			}
			l.runes = append(l.runes, r)
		}
	}
	return false
}

func (l *lineTracker) reset() {
	l.runes = l.runes[:0]
}

func (l *lineTracker) String() string {
	return string(l.runes)
}
