package terminal

import (
	"strings"
	"testing"
)

func TestLineTrackerDetectsExit(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
		want   bool
	}{
		{name: "typed", chunks: []string{"e", "x", "i", "t", "\r"}, want: true},
		{name: "pasted", chunks: []string{"exit\r"}, want: true},
		{name: "upper case", chunks: []string{"EXIT", "\r"}, want: true},
		{name: "surrounding spaces", chunks: []string{"  exit  ", "\n"}, want: true},
		{name: "other command", chunks: []string{"exits\r"}, want: false},
		{name: "no enter", chunks: []string{"exit"}, want: false},
		{name: "backspace edit", chunks: []string{"exitt", "\x7f", "\r"}, want: true},
		{name: "escape clears", chunks: []string{"exit", "\x1b[A", "\r"}, want: false},
		{name: "ctrl-c clears", chunks: []string{"exit", "\x03", "\r"}, want: false},
		{name: "backspace past empty", chunks: []string{"\x7f\x7f", "exit\r"}, want: true},
		{name: "second line", chunks: []string{"ls\r", "exit\r"}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := newLineTracker(1000)
			got := false
			for _, chunk := range tc.chunks {
				if tracker.feed(chunk) {
					got = true
				}
			}
			if got != tc.want {
				t.Fatalf("expected exit=%v, got %v", tc.want, got)
			}
		})
	}
}

func TestLineTrackerClearsOnEnter(t *testing.T) {
	tracker := newLineTracker(1000)
	tracker.feed("echo hi\r")
	if tracker.String() != "" {
		t.Fatalf("expected empty line after enter, got %q", tracker.String())
	}
}

func TestLineTrackerCapsLength(t *testing.T) {
	tracker := newLineTracker(10)
	tracker.feed(strings.Repeat("a", 25))
	if got := len([]rune(tracker.String())); got != 10 {
		t.Fatalf("expected 10 runes, got %d", got)
	}
}

func TestLineTrackerHandlesMultibyte(t *testing.T) {
	tracker := newLineTracker(1000)
	tracker.feed("héllo")
	tracker.feed("\x7f")
	if tracker.String() != "héll" {
		t.Fatalf("unexpected line %q", tracker.String())
	}
}

func TestOutputBufferDrainsOnce(t *testing.T) {
	var buf outputBuffer
	buf.append([]byte("a"))
	buf.append(nil)
	buf.append([]byte("bc"))
	if got := string(buf.drain()); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if buf.size != 0 || buf.drain() != nil {
		t.Fatalf("expected buffer to be empty after drain")
	}
}
