package host

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/termplex/schema"
)

type fakeProcess struct {
	id       schema.TerminalID
	geometry schema.Geometry
	outR     *io.PipeReader
	outW     *io.PipeWriter

	mu      sync.Mutex
	input   strings.Builder
	resizes []schema.Geometry
	closed  bool
	exited  chan struct{}
	once    sync.Once
}

func newFakeProcess(id schema.TerminalID, geometry schema.Geometry) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{id: id, geometry: geometry, outR: r, outW: w, exited: make(chan struct{})}
}

func (p *fakeProcess) Read(b []byte) (int, error) { return p.outR.Read(b) }

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input.Write(b)
	return len(b), nil
}

func (p *fakeProcess) Resize(geometry schema.Geometry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, geometry)
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.exit()
	return nil
}

// exit simulates the shell ending.
func (p *fakeProcess) exit() {
	p.once.Do(func() {
		_ = p.outW.Close()
		close(p.exited)
	})
}

func (p *fakeProcess) typed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

type fakeSpawner struct {
	mu      sync.Mutex
	procs   map[schema.TerminalID]*fakeProcess
	spawned chan *fakeProcess
	err     error
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{procs: make(map[schema.TerminalID]*fakeProcess), spawned: make(chan *fakeProcess, 4)}
}

func (s *fakeSpawner) Spawn(_ context.Context, id schema.TerminalID, geometry schema.Geometry) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	proc := newFakeProcess(id, geometry)
	s.procs[id] = proc
	s.spawned <- proc
	return proc, nil
}

func (s *fakeSpawner) next(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case proc := <-s.spawned:
		return proc
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for spawn")
		return nil
	}
}

func dialHost(t *testing.T, spawner Spawner) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(Config{}, spawner, nil).Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame schema.Frame) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readRemote(t *testing.T, conn *websocket.Conn) schema.RemoteFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := schema.ParseRemoteFrame(raw)
	if err != nil {
		t.Fatalf("parse frame %s: %v", raw, err)
	}
	return frame
}

func TestHostSpawnsOnResizeAndStreams(t *testing.T) {
	spawner := newFakeSpawner()
	conn := dialHost(t, spawner)

	sendFrame(t, conn, schema.ResizeFrame("t1", schema.Geometry{Cols: 120, Rows: 40}))
	proc := spawner.next(t)
	if proc.id != "t1" || proc.geometry != (schema.Geometry{Cols: 120, Rows: 40}) {
		t.Fatalf("unexpected spawn %s %+v", proc.id, proc.geometry)
	}

	sendFrame(t, conn, schema.InputFrame("t1", "ls\r"))
	sendFrame(t, conn, schema.ResizeFrame("t1", schema.Geometry{Cols: 100, Rows: 30}))

	if _, err := proc.outW.Write([]byte("hello")); err != nil {
		t.Fatalf("write output: %v", err)
	}
	frame := readRemote(t, conn)
	if frame.TerminalID != "t1" || frame.Kind != schema.RemoteData || string(frame.Output) != "hello" {
		t.Fatalf("unexpected output frame %+v", frame)
	}

	proc.exit()
	frame = readRemote(t, conn)
	if frame.TerminalID != "t1" || frame.Kind != schema.RemoteExit {
		t.Fatalf("expected exit frame, got %+v", frame)
	}
	waitFor(t, func() bool { return proc.typed() == "ls\r" })
	waitFor(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return len(proc.resizes) == 1 && proc.resizes[0] == (schema.Geometry{Cols: 100, Rows: 30})
	})
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

func TestHostSpawnsWithDefaultGeometryOnInput(t *testing.T) {
	spawner := newFakeSpawner()
	conn := dialHost(t, spawner)
	sendFrame(t, conn, schema.InputFrame("t2", "x"))
	proc := spawner.next(t)
	if proc.geometry != defaultGeometry {
		t.Fatalf("expected default geometry, got %+v", proc.geometry)
	}
}

func TestHostReportsSpawnErrors(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.err = errors.New("no shell")
	conn := dialHost(t, spawner)
	sendFrame(t, conn, schema.InputFrame("t1", "x"))
	frame := readRemote(t, conn)
	if frame.Kind != schema.RemoteError || frame.TerminalID != "t1" || !strings.Contains(frame.Message, "no shell") {
		t.Fatalf("expected error frame, got %+v", frame)
	}
}

func TestHostRejectsUnknownAction(t *testing.T) {
	conn := dialHost(t, newFakeSpawner())
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"spawn","data":{"terminalId":"t1"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readRemote(t, conn)
	if frame.Kind != schema.RemoteError || frame.TerminalID != "t1" {
		t.Fatalf("expected error frame, got %+v", frame)
	}
}

func TestHostDoesNotRespawnExitedTerminal(t *testing.T) {
	spawner := newFakeSpawner()
	conn := dialHost(t, spawner)
	sendFrame(t, conn, schema.InputFrame("t1", "exit\r"))
	proc := spawner.next(t)
	proc.exit()
	if frame := readRemote(t, conn); frame.Kind != schema.RemoteExit || frame.TerminalID != "t1" {
		t.Fatalf("expected exit frame, got %+v", frame)
	}

	sendFrame(t, conn, schema.InputFrame("t1", "ls\r"))
	frame := readRemote(t, conn)
	if frame.Kind != schema.RemoteError || frame.TerminalID != "t1" || frame.Message != errTerminalExited.Error() {
		t.Fatalf("expected exited error frame, got %+v", frame)
	}
	select {
	case extra := <-spawner.spawned:
		t.Fatalf("unexpected respawn for %s", extra.id)
	default:
	}

	// Other ids on the connection still spawn.
	sendFrame(t, conn, schema.InputFrame("t2", "x"))
	if next := spawner.next(t); next.id != "t2" {
		t.Fatalf("expected t2 spawn, got %s", next.id)
	}
}

func TestHostClosesProcessesOnDisconnect(t *testing.T) {
	spawner := newFakeSpawner()
	conn := dialHost(t, spawner)
	sendFrame(t, conn, schema.InputFrame("t1", "x"))
	proc := spawner.next(t)
	_ = conn.Close()
	select {
	case <-proc.exited:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected process closed on disconnect")
	}
}

func TestSplitUTF8(t *testing.T) {
	full := []byte("añb")
	out, rest := splitUTF8(full[:2])
	if string(out) != "a" || len(rest) != 1 {
		t.Fatalf("expected split before partial rune, got %q %v", out, rest)
	}
	out, rest = splitUTF8(full)
	if string(out) != "añb" || len(rest) != 0 {
		t.Fatalf("expected complete input, got %q %v", out, rest)
	}
}
