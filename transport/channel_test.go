package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/termplex/schema"
)

type wsServer struct {
	server *httptest.Server
	conns  chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s := &wsServer{conns: make(chan *websocket.Conn, 4)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection")
		return nil
	}
}

func startChannel(t *testing.T, url string) (*Channel, chan struct{}, chan error) {
	t.Helper()
	ch, err := NewChannel(Config{URL: url, ReconnectMin: 10 * time.Millisecond, ReconnectMax: 20 * time.Millisecond}, Deps{})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	ready := make(chan struct{}, 4)
	ch.OnReady(func() { ready <- struct{}{} })
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- ch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("channel did not stop")
		}
	})
	return ch, ready, done
}

func waitReady(t *testing.T, ready chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ready")
	}
}

func TestChannelDeliversFramesBothWays(t *testing.T) {
	srv := newWSServer(t)
	ch, ready, _ := startChannel(t, srv.url())
	received := make(chan string, 4)
	ch.Subscribe(func(raw []byte) { received <- string(raw) })

	conn := srv.accept(t)
	waitReady(t, ready)
	if !ch.IsReady() {
		t.Fatalf("expected channel to be ready")
	}

	if err := ch.Send(schema.InputFrame("t1", "ls\r")); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	data, _ := got["data"].(map[string]any)
	if got["action"] != "input" || data["terminalId"] != "t1" || data["value"] != "ls\r" {
		t.Fatalf("unexpected frame %s", payload)
	}

	frame := `{"terminal_id":"t1","data":"hello"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case raw := <-received:
		if raw != frame {
			t.Fatalf("unexpected inbound frame %q", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound frame")
	}
}

func TestChannelSendBeforeConnect(t *testing.T) {
	ch, err := NewChannel(Config{URL: "ws://127.0.0.1:1/ws"}, Deps{})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if ch.IsReady() {
		t.Fatalf("did not expect a fresh channel to be ready")
	}
	if err := ch.Send(schema.InputFrame("t1", "x")); !errors.Is(err, schema.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestChannelReconnects(t *testing.T) {
	srv := newWSServer(t)
	ch, ready, _ := startChannel(t, srv.url())
	conn := srv.accept(t)
	waitReady(t, ready)

	_ = conn.Close()
	srv.accept(t)
	waitReady(t, ready)
	if !ch.IsReady() {
		t.Fatalf("expected channel to be ready after reconnect")
	}
}

func TestChannelCloseStopsRun(t *testing.T) {
	srv := newWSServer(t)
	ch, ready, done := startChannel(t, srv.url())
	srv.accept(t)
	waitReady(t, ready)

	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
		done <- err
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after close")
	}
	if ch.IsReady() {
		t.Fatalf("expected channel to be disconnected")
	}
	if err := ch.Run(context.Background()); !errors.Is(err, schema.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestNewChannelValidates(t *testing.T) {
	if _, err := NewChannel(Config{}, Deps{}); err == nil {
		t.Fatalf("expected error for missing url")
	}
	_, err := NewChannel(Config{URL: "ws://x", ReconnectMin: time.Second, ReconnectMax: time.Millisecond}, Deps{})
	if !errors.Is(err, schema.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestLoopback(t *testing.T) {
	loop := NewLoopback(false)
	var readies int
	loop.OnReady(func() { readies++ })
	var got []string
	unsubscribe := loop.Subscribe(func(raw []byte) { got = append(got, string(raw)) })

	if err := loop.Send(schema.InputFrame("t1", "x")); !errors.Is(err, schema.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	loop.SetReady(true)
	loop.SetReady(true)
	if readies != 1 {
		t.Fatalf("expected one ready notification, got %d", readies)
	}

	var handled []schema.Frame
	loop.Handle(func(frame schema.Frame) { handled = append(handled, frame) })
	if err := loop.Send(schema.InputFrame("t1", "x")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(handled) != 1 || len(loop.Sent()) != 1 {
		t.Fatalf("expected frame recorded and handled")
	}

	if err := loop.DeliverFrame(schema.RemoteFrame{TerminalID: "t1", Kind: schema.RemoteExit}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	unsubscribe()
	unsubscribe()
	loop.Deliver([]byte("ignored"))
	if len(got) != 1 || !strings.Contains(got[0], `"exit"`) {
		t.Fatalf("unexpected deliveries %q", got)
	}
	if loop.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}
