package host

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/termplex/internal/logx"
	"pkt.systems/termplex/schema"
)

const (
	readBufferSize = 4096
	writeTimeout   = 10 * time.Second
)

var defaultGeometry = schema.Geometry{Cols: 80, Rows: 24}

var errTerminalExited = errors.New("terminal exited")

// Config configures the process host.
type Config struct {
	Addr string
	// Path is the websocket endpoint, "/ws" by default.
	Path string
	// AllowedOrigins limits browser origins; empty allows any.
	AllowedOrigins []string
}

// Server accepts websocket connections and runs one process per terminal id
// seen on each connection.
type Server struct {
	cfg      Config
	spawner  Spawner
	log      pslog.Logger
	upgrader websocket.Upgrader
}

// NewServer constructs a process host.
func NewServer(cfg Config, spawner Spawner, logger pslog.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if spawner == nil {
		spawner = PTYSpawner{}
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &Server{cfg: cfg, spawner: spawner, log: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: readBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = pslog.ContextWithLogger(ctx, s.log)
	return ListenAndServe(ctx, s.cfg.Addr, s.Handler())
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("host upgrade failed", "err", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	client := &connection{
		server: s,
		conn:   conn,
		log:    s.log.With("remote", r.RemoteAddr),
		procs:  make(map[schema.TerminalID]Process),
		exited: make(map[schema.TerminalID]struct{}),
	}
	client.log.Info("host client connected")
	client.readLoop(ctx)
	cancel()
	client.closeAll()
	_ = conn.Close()
	client.log.Info("host client disconnected")
}

type connection struct {
	server *Server
	conn   *websocket.Conn
	log    pslog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	procs  map[schema.TerminalID]Process
	// exited holds ids whose process has ended; they are never respawned.
	exited map[schema.TerminalID]struct{}
	wg     sync.WaitGroup
}

func (c *connection) readLoop(ctx context.Context) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("host read failed", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		frame, err := schema.ParseFrame(data)
		if err != nil {
			c.log.Warn("host frame malformed", "err", err)
			if frame.Data.TerminalID != "" {
				c.sendError(frame.Data.TerminalID, err.Error())
			}
			continue
		}
		c.handleFrame(ctx, frame)
	}
}

func (c *connection) handleFrame(ctx context.Context, frame schema.Frame) {
	id := frame.Data.TerminalID
	log := logx.WithTerminal(c.log, id)
	geometry := schema.Geometry{Cols: frame.Data.Cols, Rows: frame.Data.Rows}
	proc, created, err := c.process(ctx, id, geometry)
	if errors.Is(err, errTerminalExited) {
		log.Debug("host frame for exited terminal", "action", frame.Action)
		c.sendError(id, err.Error())
		return
	}
	if err != nil {
		log.Warn("host spawn failed", "err", err)
		c.sendError(id, err.Error())
		return
	}
	switch frame.Action {
	case schema.ActionInput:
		if _, err := io.WriteString(proc, frame.Data.Value); err != nil {
			log.Debug("host input write failed", "err", err)
		}
	case schema.ActionResize:
		if created || !geometry.Valid() {
			return
		}
		if err := proc.Resize(geometry); err != nil {
			log.Debug("host resize failed", "err", err)
		}
	}
}

// process returns the process for id, spawning it on first use. An id whose
// process already exited yields errTerminalExited.
func (c *connection) process(ctx context.Context, id schema.TerminalID, geometry schema.Geometry) (Process, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if proc, ok := c.procs[id]; ok {
		return proc, false, nil
	}
	if _, done := c.exited[id]; done {
		return nil, false, errTerminalExited
	}
	if !geometry.Valid() {
		geometry = defaultGeometry
	}
	proc, err := c.server.spawner.Spawn(ctx, id, geometry)
	if err != nil {
		return nil, false, err
	}
	c.procs[id] = proc
	logx.WithTerminal(c.log, id).Info("host process started", "cols", geometry.Cols, "rows", geometry.Rows)
	c.wg.Add(1)
	go c.pump(id, proc)
	return proc, true, nil
}

// pump forwards process output until EOF and then reports the exit.
func (c *connection) pump(id schema.TerminalID, proc Process) {
	defer c.wg.Done()
	log := logx.WithTerminal(c.log, id)
	buf := make([]byte, readBufferSize)
	var carry []byte
	for {
		n, err := proc.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			var out []byte
			out, carry = splitUTF8(chunk)
			if len(out) > 0 {
				c.send(schema.RemoteFrame{TerminalID: id, Kind: schema.RemoteData, Output: out})
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("host process read ended", "err", err)
			}
			break
		}
	}
	if len(carry) > 0 {
		c.send(schema.RemoteFrame{TerminalID: id, Kind: schema.RemoteData, Output: carry})
	}
	waitErr := proc.Wait()
	c.mu.Lock()
	current, tracked := c.procs[id]
	if tracked && current == proc {
		delete(c.procs, id)
		c.exited[id] = struct{}{}
	}
	c.mu.Unlock()
	if !tracked {
		return
	}
	log.Info("host process exited", "err", waitErr)
	_ = proc.Close()
	c.send(schema.RemoteFrame{TerminalID: id, Kind: schema.RemoteExit})
}

func (c *connection) sendError(id schema.TerminalID, message string) {
	c.send(schema.RemoteFrame{TerminalID: id, Kind: schema.RemoteError, Message: message})
}

func (c *connection) send(frame schema.RemoteFrame) {
	payload, err := schema.EncodeRemoteFrame(frame)
	if err != nil {
		c.log.Warn("host frame encode failed", "err", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Debug("host write failed", "err", err)
	}
}

// closeAll kills every process owned by the connection and waits for the
// output pumps to finish.
func (c *connection) closeAll() {
	c.mu.Lock()
	procs := c.procs
	c.procs = make(map[schema.TerminalID]Process)
	c.mu.Unlock()
	for id, proc := range procs {
		if err := proc.Close(); err != nil {
			logx.WithTerminal(c.log, id).Debug("host process close failed", "err", err)
		}
	}
	c.wg.Wait()
}

// splitUTF8 returns the longest prefix of b that does not end inside a
// multi-byte sequence, and the remaining bytes.
func splitUTF8(b []byte) ([]byte, []byte) {
	end := len(b)
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if !utf8.FullRune(b[start:]) {
			end = start
		}
		break
	}
	out := append([]byte(nil), b[:end]...)
	rest := append([]byte(nil), b[end:]...)
	return out, rest
}
