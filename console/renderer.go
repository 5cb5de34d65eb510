package console

import (
	"sync"

	"pkt.systems/termplex/schema"
	"pkt.systems/termplex/terminal"
)

// renderer is a scrollback replay surface painted onto the shared Screen.
// It does not emulate the terminal; output is passed to the real terminal
// while focused and replayed from scrollback when focus returns.
type renderer struct {
	screen  *Screen
	id      schema.TerminalID
	history *scrollback

	mu        sync.Mutex
	geometry  schema.Geometry
	onData    []func(string)
	onResize  []func(schema.Geometry)
	filter    func(schema.KeyEvent) bool
	selection string
	disposed  bool
}

var _ terminal.Renderer = (*renderer)(nil)

func newRenderer(screen *Screen, id schema.TerminalID, capacity int) *renderer {
	r := &renderer{screen: screen, id: id, history: newScrollback(capacity)}
	screen.register(r)
	return r
}

func (r *renderer) Write(data []byte) {
	r.mu.Lock()
	disposed := r.disposed
	r.mu.Unlock()
	if disposed || len(data) == 0 {
		return
	}
	r.history.Write(data)
	r.screen.paint(r.id, data)
}

func (r *renderer) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.onData = nil
	r.onResize = nil
	r.filter = nil
	r.selection = ""
	r.mu.Unlock()
	r.history.Reset()
	r.screen.forget(r)
}

func (r *renderer) OnData(fn func(data string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || fn == nil {
		return
	}
	r.onData = append(r.onData, fn)
}

func (r *renderer) OnResize(fn func(geometry schema.Geometry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || fn == nil {
		return
	}
	r.onResize = append(r.onResize, fn)
}

// ProposeGeometry maps the pane area one cell per column and row.
func (r *renderer) ProposeGeometry(width, height int) (schema.Geometry, bool) {
	geometry := schema.Geometry{Cols: width, Rows: height}
	return geometry, geometry.Valid()
}

func (r *renderer) Resize(geometry schema.Geometry) {
	r.mu.Lock()
	if r.disposed || geometry == r.geometry {
		r.mu.Unlock()
		return
	}
	r.geometry = geometry
	listeners := append(([]func(schema.Geometry))(nil), r.onResize...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(geometry)
	}
}

func (r *renderer) Selection() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selection
}

func (r *renderer) ClearSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selection = ""
}

func (r *renderer) SetKeyFilter(filter func(event schema.KeyEvent) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.filter = filter
}

// selectLastLine selects the last line of output for a later copy.
func (r *renderer) selectLastLine() bool {
	line := r.history.LastLine()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || line == "" {
		return false
	}
	r.selection = line
	return true
}

// deliver runs the key filter and forwards the raw bytes to data listeners.
func (r *renderer) deliver(press keyPress) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	filter := r.filter
	listeners := append(([]func(string))(nil), r.onData...)
	r.mu.Unlock()
	if filter != nil && !filter(press.event) {
		return
	}
	if len(press.raw) == 0 {
		return
	}
	data := string(press.raw)
	for _, fn := range listeners {
		fn(data)
	}
}
