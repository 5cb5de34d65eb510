package console

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aymanbagabas/go-osc52/v2"
	"pkt.systems/pslog"
	"pkt.systems/termplex/core"
	"pkt.systems/termplex/internal/clock"
	"pkt.systems/termplex/internal/eventbus"
	"pkt.systems/termplex/internal/logx"
	"pkt.systems/termplex/schema"
	"pkt.systems/termplex/terminal"
)

// Config configures the console.
type Config struct {
	Manager  schema.ManagerConfig
	Terminal schema.TerminalConfig
	// Scrollback is the replay capacity per terminal in bytes.
	Scrollback int
}

// Deps captures the console's collaborators.
type Deps struct {
	Transport terminal.Transport
	Input     io.Reader
	Output    io.Writer
	// Size reports the window size. Defaults to 80x24.
	Size func() (width, height int, err error)
	// Resize signals window size changes.
	Resize    <-chan struct{}
	Clock     clock.Clock
	Logger    pslog.Logger
	Bus       *eventbus.Bus
	Clipboard terminal.Clipboard
	// Sink receives every manager event after the bus.
	Sink core.EventSink
}

// Console drives a session manager from a real terminal: keys from Input,
// the focused pane and a status bar on Output.
type Console struct {
	cfg       Config
	transport terminal.Transport
	input     io.Reader
	size      func() (int, int, error)
	resize    <-chan struct{}
	clock     clock.Clock
	log       pslog.Logger
	bus       *eventbus.Bus
	sink      core.EventSink
	clipboard terminal.Clipboard
	screen    *Screen
	manager   *core.Manager
	shortcuts *core.Shortcuts

	refreshMu sync.Mutex

	mu        sync.Mutex
	visible   map[schema.TerminalID]bool
	observers map[schema.TerminalID]map[int]func()
	observeID int
	running   bool
}

// New constructs a console and its manager. The first session is created
// immediately; its unit initializes once Run lays out the screen.
func New(cfg Config, deps Deps) (*Console, error) {
	if deps.Transport == nil {
		return nil, errors.New("console transport is required")
	}
	if deps.Input == nil || deps.Output == nil {
		return nil, errors.New("console input and output are required")
	}
	if deps.Size == nil {
		deps.Size = func() (int, int, error) { return 80, 24, nil }
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New(logger)
	}
	c := &Console{
		cfg:       cfg,
		transport: deps.Transport,
		input:     deps.Input,
		size:      deps.Size,
		resize:    deps.Resize,
		clock:     deps.Clock,
		log:       logger,
		bus:       deps.Bus,
		sink:      deps.Sink,
		visible:   make(map[schema.TerminalID]bool),
		observers: make(map[schema.TerminalID]map[int]func()),
	}
	width, height, err := deps.Size()
	if err != nil {
		logger.Debug("console size unavailable", "err", err)
	}
	c.screen = NewScreen(deps.Output, width, height)
	c.clipboard = deps.Clipboard
	if c.clipboard == nil {
		c.clipboard = osc52Clipboard{screen: c.screen}
	}
	manager, err := core.NewManager(cfg.Manager, core.ManagerDeps{
		Terminals: core.TerminalFactoryFunc(c.newTerminal),
		EventSink: c,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.manager = manager
	c.mu.Unlock()
	c.shortcuts = core.NewShortcuts(manager)
	return c, nil
}

// Manager returns the session manager.
func (c *Console) Manager() *core.Manager {
	return c.manager
}

// Bus returns the manager event bus.
func (c *Console) Bus() *eventbus.Bus {
	return c.bus
}

// Screen returns the output surface.
func (c *Console) Screen() *Screen {
	return c.screen
}

// Publish implements core.EventSink. The layout is refreshed before the
// event reaches bus subscribers.
func (c *Console) Publish(event schema.ManagerEvent) {
	c.refresh(event.Snapshot)
	c.bus.Publish(event)
	if c.sink != nil {
		c.sink.Publish(event)
	}
}

// Run processes keys and window changes until ctx is done, the input ends
// or the panel is closed. Every unit is released on return.
func (c *Console) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("console already running")
	}
	c.running = true
	c.mu.Unlock()

	events, cancel := c.bus.Subscribe()
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	keys := make(chan keyPress, 64)
	go readKeys(c.input, keys, done)

	defer func() {
		c.manager.Close()
		c.screen.Reset()
		c.log.Info("console stopped")
	}()

	c.log.Info("console started")
	c.handleWindowChange()
	c.refresh(c.manager.Snapshot())
	c.screen.SetStatus(statusLine(c.manager.Snapshot()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.resize:
			c.handleWindowChange()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			snapshot := c.manager.Snapshot()
			if !snapshot.PanelOpen {
				return nil
			}
			c.screen.SetStatus(statusLine(snapshot))
		case press, ok := <-keys:
			if !ok {
				c.log.Debug("console input closed")
				return nil
			}
			c.handleKey(press)
			if !c.manager.PanelOpen() {
				return nil
			}
		}
	}
}

func (c *Console) handleKey(press keyPress) {
	if press.event.Alt && !press.event.Modifier() && press.event.Is("y") {
		if r := c.screen.renderer(c.screen.Focused()); r != nil {
			r.selectLastLine()
		}
		return
	}
	if c.shortcuts.HandleKey(press.event) {
		return
	}
	if r := c.screen.renderer(c.screen.Focused()); r != nil {
		r.deliver(press)
	}
}

func (c *Console) handleWindowChange() {
	width, height, err := c.size()
	if err != nil {
		c.log.Debug("console size unavailable", "err", err)
		return
	}
	c.screen.Resize(width, height)
	c.notify(nil)
}

// refresh recomputes which terminals are laid out and which one is painted,
// then notifies the mounts whose visibility changed. The manager's current
// snapshot wins over the event's when the manager is available.
func (c *Console) refresh(fallback schema.ManagerSnapshot) {
	c.refreshMu.Lock()
	c.mu.Lock()
	manager := c.manager
	c.mu.Unlock()
	snapshot := fallback
	if manager != nil {
		snapshot = manager.Snapshot()
	}
	visible := make(map[schema.TerminalID]bool)
	var focus schema.TerminalID
	if snapshot.PanelOpen {
		if session, ok := snapshot.Session(snapshot.ActiveSession); ok {
			for _, pane := range session.Panes {
				visible[pane.TerminalID] = true
				if pane.ID == session.ActivePane {
					focus = pane.TerminalID
				}
			}
		}
	}
	c.mu.Lock()
	var changed []schema.TerminalID
	for id := range visible {
		if !c.visible[id] {
			changed = append(changed, id)
		}
	}
	for id := range c.visible {
		if !visible[id] {
			changed = append(changed, id)
		}
	}
	c.visible = visible
	c.mu.Unlock()
	c.screen.Focus(focus)
	c.refreshMu.Unlock()

	if len(changed) > 0 {
		c.notify(changed)
	}
}

// notify runs the mount observers of ids, or of every terminal when ids is nil.
func (c *Console) notify(ids []schema.TerminalID) {
	c.mu.Lock()
	var fns []func()
	if ids == nil {
		for _, set := range c.observers {
			for _, fn := range set {
				fns = append(fns, fn)
			}
		}
	}
	for _, id := range ids {
		for _, fn := range c.observers[id] {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Console) newTerminal(req core.TerminalRequest) (core.TerminalHandle, error) {
	unit, err := terminal.NewUnit(req.TerminalID, c.cfg.Terminal, terminal.Deps{
		Transport: c.transport,
		Renderers: func(terminal.Mount) (terminal.Renderer, error) {
			return newRenderer(c.screen, req.TerminalID, c.cfg.Scrollback), nil
		},
		Mount:     &paneMount{console: c, id: req.TerminalID},
		Clock:     c.clock,
		Logger:    logx.WithPane(c.log, req.Session, req.Pane),
		Clipboard: c.clipboard,
		OnStatus:  req.OnStatus,
		OnExit:    req.OnExit,
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// paneMount reports the pane area while its terminal belongs to the active
// session and zero otherwise, so background units wait for a relayout.
type paneMount struct {
	console *Console
	id      schema.TerminalID
}

func (m *paneMount) Size() (int, int) {
	m.console.mu.Lock()
	visible := m.console.visible[m.id]
	m.console.mu.Unlock()
	if !visible {
		return 0, 0
	}
	return m.console.screen.PaneSize()
}

func (m *paneMount) Clear() {
	m.console.screen.clear(m.id)
}

func (m *paneMount) Observe(fn func()) func() {
	c := m.console
	c.mu.Lock()
	c.observeID++
	key := c.observeID
	set := c.observers[m.id]
	if set == nil {
		set = make(map[int]func())
		c.observers[m.id] = set
	}
	set[key] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.observers[m.id], key)
			if len(c.observers[m.id]) == 0 {
				delete(c.observers, m.id)
			}
		})
	}
}

// osc52Clipboard copies through the terminal's OSC 52 clipboard sequence.
type osc52Clipboard struct {
	screen *Screen
}

func (c osc52Clipboard) Copy(text string) error {
	c.screen.WriteControl(osc52.New(text).String())
	return nil
}
