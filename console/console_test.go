package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/termplex/internal/clock"
	"pkt.systems/termplex/schema"
	"pkt.systems/termplex/transport"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type recordingClipboard struct {
	mu     sync.Mutex
	copied []string
}

func (c *recordingClipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copied = append(c.copied, text)
	return nil
}

func (c *recordingClipboard) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.copied...)
}

type consoleHarness struct {
	console   *Console
	loop      *transport.Loopback
	clock     *clock.FakeClock
	out       *syncBuffer
	in        *io.PipeWriter
	clipboard *recordingClipboard
}

func newConsoleHarness(t *testing.T) *consoleHarness {
	t.Helper()
	inR, inW := io.Pipe()
	h := &consoleHarness{
		loop:      transport.NewLoopback(true),
		clock:     clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		out:       &syncBuffer{},
		in:        inW,
		clipboard: &recordingClipboard{},
	}
	c, err := New(Config{Terminal: schema.TerminalConfig{AllowInput: true}}, Deps{
		Transport: h.loop,
		Input:     inR,
		Output:    h.out,
		Size:      func() (int, int, error) { return 100, 31, nil },
		Clock:     h.clock,
		Clipboard: h.clipboard,
	})
	if err != nil {
		t.Fatalf("new console: %v", err)
	}
	h.console = c
	t.Cleanup(func() {
		_ = inW.Close()
		_ = inR.Close()
	})
	return h
}

func (h *consoleHarness) run(t *testing.T) chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		done <- h.console.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Errorf("console did not stop")
		}
	})
	return done
}

func (h *consoleHarness) activeTerminal(t *testing.T) schema.TerminalID {
	t.Helper()
	snapshot := h.console.Manager().Snapshot()
	session, ok := snapshot.Session(snapshot.ActiveSession)
	if !ok {
		t.Fatalf("no active session")
	}
	for _, pane := range session.Panes {
		if pane.Active {
			return pane.TerminalID
		}
	}
	t.Fatalf("no active pane")
	return ""
}

func (h *consoleHarness) output(t *testing.T, id schema.TerminalID, text string) {
	t.Helper()
	if err := h.loop.DeliverFrame(schema.RemoteFrame{TerminalID: id, Kind: schema.RemoteData, Output: []byte(text)}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
}

func (h *consoleHarness) typed(id schema.TerminalID) string {
	var b strings.Builder
	for _, frame := range h.loop.Sent() {
		if frame.Action == schema.ActionInput && frame.Data.TerminalID == id {
			b.WriteString(frame.Data.Value)
		}
	}
	return b.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsoleInitializesFirstSession(t *testing.T) {
	h := newConsoleHarness(t)
	id := h.activeTerminal(t)

	sent := h.loop.Sent()
	if len(sent) != 1 || sent[0].Action != schema.ActionResize || sent[0].Data.TerminalID != id {
		t.Fatalf("expected one resize frame, got %+v", sent)
	}
	if sent[0].Data.Cols != 100 || sent[0].Data.Rows != 30 {
		t.Fatalf("expected pane area without the status row, got %dx%d", sent[0].Data.Cols, sent[0].Data.Rows)
	}
	if status, _ := h.console.Manager().TerminalStatus(id); status != schema.StatusLoading {
		t.Fatalf("expected loading before settle, got %s", status)
	}
	h.clock.Advance(schema.DefaultSettleDelay)
	if status, _ := h.console.Manager().TerminalStatus(id); status != schema.StatusActive {
		t.Fatalf("expected active after settle, got %s", status)
	}
}

func TestConsoleReplaysBackgroundOutputOnSwitch(t *testing.T) {
	h := newConsoleHarness(t)
	manager := h.console.Manager()
	first := h.activeTerminal(t)
	firstSession := manager.ActiveSessionID()
	h.output(t, first, "hello ")
	if !strings.Contains(h.out.String(), "hello ") {
		t.Fatalf("expected focused output painted")
	}

	if _, ok := manager.AddSession(); !ok {
		t.Fatalf("add session failed")
	}
	second := h.activeTerminal(t)
	if second == first || h.console.Screen().Focused() != second {
		t.Fatalf("expected focus on the new terminal")
	}
	h.out.Reset()
	h.output(t, first, "background")
	if strings.Contains(h.out.String(), "background") {
		t.Fatalf("did not expect background output painted")
	}

	if !manager.SwitchSession(firstSession) {
		t.Fatalf("switch failed")
	}
	if got := h.out.String(); !strings.Contains(got, "hello background") {
		t.Fatalf("expected scrollback replay, got %q", got)
	}
}

func TestConsoleForwardsKeysAndClosesOnModifierD(t *testing.T) {
	h := newConsoleHarness(t)
	done := h.run(t)
	id := h.activeTerminal(t)

	if _, err := io.WriteString(h.in, "ls\r"); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, func() bool { return h.typed(id) == "ls\r" })

	if _, err := io.WriteString(h.in, "\x04"); err != nil {
		t.Fatalf("write ctrl-d: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected console to stop after the last session closed")
	}
	if h.console.Manager().PanelOpen() {
		t.Fatalf("expected panel closed")
	}
	if strings.Contains(h.typed(id), "\x04") {
		t.Fatalf("did not expect ctrl-d forwarded")
	}
}

func TestConsoleExitCommandClosesSplit(t *testing.T) {
	h := newConsoleHarness(t)
	h.run(t)
	manager := h.console.Manager()

	if _, err := io.WriteString(h.in, "\x1bs"); err != nil {
		t.Fatalf("write alt-s: %v", err)
	}
	waitFor(t, func() bool { return len(manager.Sessions()[0].Panes) == 2 })
	split := h.activeTerminal(t)
	waitFor(t, func() bool { return h.console.Screen().renderer(split) != nil })

	if _, err := io.WriteString(h.in, "exit\r"); err != nil {
		t.Fatalf("write exit: %v", err)
	}
	waitFor(t, func() bool { return len(manager.Sessions()[0].Panes) == 1 })
	if strings.Contains(h.typed(split), "\r") {
		t.Fatalf("did not expect the exit line submitted")
	}
	if !manager.PanelOpen() {
		t.Fatalf("expected panel to stay open")
	}
}

func TestConsoleCopiesSelectedLine(t *testing.T) {
	h := newConsoleHarness(t)
	h.run(t)
	id := h.activeTerminal(t)
	h.output(t, id, "$ make\r\n\x1b[1mbuild ok\x1b[0m\r\n")

	if _, err := io.WriteString(h.in, "\x1by"); err != nil {
		t.Fatalf("write alt-y: %v", err)
	}
	waitFor(t, func() bool {
		r := h.console.Screen().renderer(id)
		return r != nil && r.Selection() == "build ok"
	})
	if _, err := io.WriteString(h.in, "\x03"); err != nil {
		t.Fatalf("write ctrl-c: %v", err)
	}
	waitFor(t, func() bool {
		copied := h.clipboard.texts()
		return len(copied) == 1 && copied[0] == "build ok"
	})
	if strings.Contains(h.typed(id), "\x03") {
		t.Fatalf("did not expect ctrl-c forwarded while copying")
	}

	if _, err := io.WriteString(h.in, "\x03"); err != nil {
		t.Fatalf("write ctrl-c: %v", err)
	}
	waitFor(t, func() bool { return h.typed(id) == "\x03" })
}

func TestConsoleResizeRefitsFocusedTerminal(t *testing.T) {
	h := newConsoleHarness(t)
	size := make(chan struct{}, 1)
	var mu sync.Mutex
	width, height := 100, 31
	h.console.size = func() (int, int, error) {
		mu.Lock()
		defer mu.Unlock()
		return width, height, nil
	}
	h.console.resize = size
	h.run(t)
	id := h.activeTerminal(t)

	mu.Lock()
	width, height = 120, 41
	mu.Unlock()
	size <- struct{}{}
	waitFor(t, func() bool {
		w, _ := h.console.Screen().Size()
		return w == 120
	})
	waitFor(t, func() bool {
		h.clock.Advance(schema.DefaultResizeDebounce)
		for _, frame := range h.loop.Sent() {
			if frame.Action == schema.ActionResize && frame.Data.TerminalID == id && frame.Data.Cols == 120 && frame.Data.Rows == 40 {
				return true
			}
		}
		return false
	})
}

func TestStatusLine(t *testing.T) {
	snapshot := schema.ManagerSnapshot{
		ActiveSession: "session-2",
		Sessions: []schema.SessionSnapshot{
			{ID: "session-1", Label: "Terminal 1", Status: schema.StatusActive, Panes: []schema.PaneSnapshot{{ID: "pane-1", Active: true}}},
			{ID: "session-2", Label: "Terminal 2", Status: schema.StatusLoading, Active: true, Panes: []schema.PaneSnapshot{
				{ID: "pane-2"},
				{ID: "pane-3", Active: true},
			}},
		},
	}
	line := statusLine(snapshot)
	if !strings.Contains(line, " 1:Terminal 1 ● ") {
		t.Fatalf("expected first tab badge, got %q", line)
	}
	if !strings.Contains(line, "\x1b[7m 2:Terminal 2 ◐ [2/2] \x1b[0m") {
		t.Fatalf("expected highlighted active tab, got %q", line)
	}
}
