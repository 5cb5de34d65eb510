package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termplex/internal/clock"
	"pkt.systems/termplex/internal/logx"
	"pkt.systems/termplex/schema"
)

type latch int

const (
	latchUninitialized latch = iota
	latchInitializing
	latchReady
)

func (l latch) String() string {
	switch l {
	case latchInitializing:
		return "initializing"
	case latchReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Deps captures the collaborators of a terminal unit.
type Deps struct {
	Transport Transport
	Renderers RendererFactory
	Mount     Mount
	Clock     clock.Clock
	Logger    pslog.Logger
	Clipboard Clipboard
	// OnStatus receives status transitions. It is called without the unit lock held.
	OnStatus func(schema.Status)
	// OnExit is invoked when the exit command is typed locally.
	OnExit func()
}

// Unit binds one renderer to one remote terminal on the shared transport.
type Unit struct {
	id        schema.TerminalID
	cfg       schema.TerminalConfig
	transport Transport
	renderers RendererFactory
	mount     Mount
	clock     clock.Clock
	log       pslog.Logger
	clipboard Clipboard
	onStatus  func(schema.Status)
	onExit    func()

	mu       sync.Mutex
	state    latch
	disposed bool
	started  bool
	closed   bool
	renderer Renderer
	buffer   outputBuffer
	line     lineTracker
	geometry schema.Geometry

	retries     []*clock.Timer
	retryGen    int
	retriesLeft int
	settle      *clock.Timer
	refit       *clock.Timer

	unsubscribe func()
	stopObserve func()
	stopReady   func()
}

// NewUnit constructs a unit for id. Nothing is subscribed until Start.
func NewUnit(id schema.TerminalID, cfg schema.TerminalConfig, deps Deps) (*Unit, error) {
	if id == "" {
		return nil, errors.New("terminal id is required")
	}
	if deps.Transport == nil {
		return nil, errors.New("terminal transport is required")
	}
	if deps.Renderers == nil {
		return nil, errors.New("terminal renderer factory is required")
	}
	if deps.Mount == nil {
		return nil, errors.New("terminal mount is required")
	}
	normalized, err := schema.NormalizeTerminalConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("terminal %s: %w", id, err)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Unit{
		id:        id,
		cfg:       normalized,
		transport: deps.Transport,
		renderers: deps.Renderers,
		mount:     deps.Mount,
		clock:     deps.Clock,
		log:       logx.WithTerminal(logger, id),
		clipboard: deps.Clipboard,
		onStatus:  deps.OnStatus,
		onExit:    deps.OnExit,
		line:      newLineTracker(normalized.LineBufferMax),
	}, nil
}

// ID returns the terminal id.
func (u *Unit) ID() schema.TerminalID {
	return u.id
}

// Ready reports whether initialization completed.
func (u *Unit) Ready() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == latchReady && !u.disposed
}

// Disposed reports whether the unit was torn down.
func (u *Unit) Disposed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.disposed
}

// Geometry returns the last committed geometry.
func (u *Unit) Geometry() schema.Geometry {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.geometry
}

// Start subscribes to the transport and attempts initialization, arming the
// bounded dimension retries when the mount is not laid out yet.
func (u *Unit) Start() {
	u.mu.Lock()
	if u.disposed || u.started {
		u.mu.Unlock()
		return
	}
	u.started = true
	u.mu.Unlock()

	unsubscribe := u.transport.Subscribe(u.handleFrame)
	stopObserve := u.mount.Observe(u.handleMountChange)
	var stopReady func()
	if notifier, ok := u.transport.(ReadyNotifier); ok {
		stopReady = notifier.OnReady(u.handleTransportReady)
	}

	u.mu.Lock()
	u.unsubscribe = unsubscribe
	u.stopObserve = stopObserve
	u.stopReady = stopReady
	u.mu.Unlock()

	u.log.Debug("terminal start")
	if !u.tryInit() {
		u.armRetries()
	}
}

// Relayout is called after the surrounding layout changed, such as the panel
// being reopened. An uninitialized unit re-arms its dimension retries; a
// ready unit refits to the mount.
func (u *Unit) Relayout() {
	u.mu.Lock()
	state, disposed := u.state, u.disposed
	u.mu.Unlock()
	if disposed {
		return
	}
	switch state {
	case latchUninitialized:
		if !u.tryInit() {
			u.armRetries()
		}
	case latchReady:
		u.scheduleRefit()
	}
}

// Input feeds one keystroke chunk from the renderer.
func (u *Unit) Input(data string) {
	if !u.cfg.AllowInput || data == "" {
		return
	}
	u.mu.Lock()
	if u.disposed || u.state == latchUninitialized {
		u.mu.Unlock()
		return
	}
	exit := u.line.feed(data)
	u.mu.Unlock()
	if exit {
		u.log.Info("terminal exit command")
		if u.onExit != nil {
			u.onExit()
		}
		return
	}
	u.send(schema.InputFrame(u.id, data))
}

// Teardown disposes the renderer, clears buffered output and the mount, and
// cancels every pending timer. It is idempotent.
func (u *Unit) Teardown() {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return
	}
	u.disposed = true
	renderer := u.renderer
	u.renderer = nil
	u.buffer.reset()
	u.line.reset()
	u.cancelAllPendingLocked()
	u.mu.Unlock()

	if renderer != nil {
		renderer.Dispose()
	}
	u.mount.Clear()
	u.log.Debug("terminal teardown")
}

// Close tears the unit down and releases its transport subscription and
// observers.
func (u *Unit) Close() {
	u.Teardown()
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	release := []func(){u.unsubscribe, u.stopObserve, u.stopReady}
	u.unsubscribe, u.stopObserve, u.stopReady = nil, nil, nil
	u.mu.Unlock()
	for _, fn := range release {
		if fn != nil {
			fn()
		}
	}
}

// tryInit initializes the unit when the transport is ready, the mount has
// positive dimensions and initialization has not run.
func (u *Unit) tryInit() bool {
	u.mu.Lock()
	if u.disposed || u.state != latchUninitialized {
		u.mu.Unlock()
		return false
	}
	if !u.transport.IsReady() {
		u.mu.Unlock()
		return false
	}
	width, height := u.mount.Size()
	if width <= 0 || height <= 0 {
		u.mu.Unlock()
		return false
	}
	u.state = latchInitializing
	u.cancelRetriesLocked()
	u.mu.Unlock()

	u.setStatus(schema.StatusLoading)
	renderer, err := u.renderers(u.mount)
	if err != nil {
		u.log.Warn("terminal renderer create failed", "err", err)
		u.mu.Lock()
		if !u.disposed {
			u.state = latchUninitialized
		}
		u.mu.Unlock()
		u.setStatus(schema.StatusIdle)
		return false
	}

	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		renderer.Dispose()
		return false
	}
	u.renderer = renderer
	if pending := u.buffer.drain(); len(pending) > 0 {
		renderer.Write(pending)
	}
	u.mu.Unlock()

	geometry, ok := renderer.ProposeGeometry(width, height)
	if ok && geometry.Valid() {
		renderer.Resize(geometry)
		u.mu.Lock()
		u.geometry = geometry
		u.mu.Unlock()
		u.send(schema.ResizeFrame(u.id, geometry))
	}
	renderer.OnResize(u.handleRendererResize)
	if u.cfg.AllowInput {
		renderer.SetKeyFilter(u.filterKey)
		renderer.OnData(u.Input)
	}

	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return false
	}
	u.state = latchReady
	u.settle = u.clock.AfterFunc(u.cfg.SettleDelay, u.settled)
	u.mu.Unlock()
	u.log.Info("terminal initialized", "cols", geometry.Cols, "rows", geometry.Rows)
	return true
}

func (u *Unit) armRetries() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.disposed || u.state != latchUninitialized || u.retriesLeft > 0 {
		return
	}
	u.retryGen++
	gen := u.retryGen
	u.retriesLeft = len(u.cfg.DimensionRetries)
	for _, delay := range u.cfg.DimensionRetries {
		u.retries = append(u.retries, u.clock.AfterFunc(delay, func() { u.retry(gen) }))
	}
}

func (u *Unit) retry(gen int) {
	u.mu.Lock()
	if gen != u.retryGen || u.retriesLeft == 0 {
		u.mu.Unlock()
		return
	}
	u.retriesLeft--
	exhausted := u.retriesLeft == 0
	if exhausted {
		u.retries = nil
	}
	u.mu.Unlock()
	if !u.tryInit() && exhausted {
		u.log.Debug("terminal dimension retries exhausted")
	}
}

func (u *Unit) settled() {
	u.mu.Lock()
	if u.disposed || u.state != latchReady {
		u.mu.Unlock()
		return
	}
	u.settle = nil
	u.mu.Unlock()
	u.setStatus(schema.StatusActive)
}

func (u *Unit) handleTransportReady() {
	u.mu.Lock()
	state, disposed := u.state, u.disposed
	u.mu.Unlock()
	if disposed || state != latchUninitialized {
		return
	}
	u.log.Debug("terminal transport ready")
	if !u.tryInit() {
		u.armRetries()
	}
}

func (u *Unit) handleMountChange() {
	u.mu.Lock()
	state, disposed := u.state, u.disposed
	u.mu.Unlock()
	if disposed {
		return
	}
	switch state {
	case latchUninitialized:
		u.tryInit()
	case latchReady:
		u.scheduleRefit()
	}
}

func (u *Unit) scheduleRefit() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.disposed || u.state != latchReady {
		return
	}
	u.refit.Stop()
	u.refit = u.clock.AfterFunc(u.cfg.ResizeDebounce, u.fit)
}

// fit proposes a geometry for the current mount size. The renderer reports
// the committed change through OnResize.
func (u *Unit) fit() {
	u.mu.Lock()
	if u.disposed || u.state != latchReady || u.renderer == nil {
		u.mu.Unlock()
		return
	}
	u.refit = nil
	renderer := u.renderer
	current := u.geometry
	u.mu.Unlock()

	if !u.transport.IsReady() {
		return
	}
	width, height := u.mount.Size()
	if width <= 0 || height <= 0 {
		return
	}
	geometry, ok := renderer.ProposeGeometry(width, height)
	if !ok || !geometry.Valid() || geometry == current {
		return
	}
	renderer.Resize(geometry)
}

func (u *Unit) handleRendererResize(geometry schema.Geometry) {
	if !geometry.Valid() {
		return
	}
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return
	}
	u.geometry = geometry
	u.mu.Unlock()
	u.send(schema.ResizeFrame(u.id, geometry))
}

// filterKey keeps modifier+D for the shortcut surface and turns modifier+C
// with a selection into a copy.
func (u *Unit) filterKey(event schema.KeyEvent) bool {
	if !event.Modifier() {
		return true
	}
	switch {
	case event.Is("d"):
		return false
	case event.Is("c"):
		u.mu.Lock()
		renderer := u.renderer
		u.mu.Unlock()
		if renderer == nil {
			return true
		}
		selection := renderer.Selection()
		if selection == "" {
			return true
		}
		if u.clipboard != nil {
			if err := u.clipboard.Copy(selection); err != nil {
				u.log.Warn("terminal clipboard copy failed", "err", err)
			}
		}
		renderer.ClearSelection()
		return false
	}
	return true
}

func (u *Unit) send(frame schema.Frame) {
	if !u.transport.IsReady() {
		u.log.Debug("terminal frame dropped", "action", frame.Action, "reason", "transport not ready")
		return
	}
	if err := u.transport.Send(frame); err != nil {
		u.log.Debug("terminal frame dropped", "action", frame.Action, "err", err)
	}
}

func (u *Unit) setStatus(status schema.Status) {
	if u.onStatus != nil {
		u.onStatus(status)
	}
}

func (u *Unit) cancelRetriesLocked() {
	for _, timer := range u.retries {
		timer.Stop()
	}
	u.retries = nil
	u.retriesLeft = 0
	u.retryGen++
}

// cancelAllPendingLocked stops every timer owned by the unit.
func (u *Unit) cancelAllPendingLocked() {
	u.cancelRetriesLocked()
	u.settle.Stop()
	u.settle = nil
	u.refit.Stop()
	u.refit = nil
}
