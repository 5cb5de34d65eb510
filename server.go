package termplex

import (
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termplex/console"
	"pkt.systems/termplex/core"
	"pkt.systems/termplex/host"
	"pkt.systems/termplex/httpapi"
	"pkt.systems/termplex/internal/clock"
	"pkt.systems/termplex/transport"
)

// Server composes the process host, the websocket transport, the console and
// the status API.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Host      host.Config
	Transport transport.Config
	Console   console.Config
	Status    httpapi.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Logger  pslog.Logger
	Clock   clock.Clock
	Spawner host.Spawner
	// Input, Output, Size and Resize drive the console.
	Input  io.Reader
	Output io.Writer
	Size   func() (int, int, error)
	Resize <-chan struct{}
	// EventSinks receive every manager event published by the console.
	EventSinks []core.EventSink
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHost    bool
	enableConsole bool
	enableStatus  bool
}

// WithHost enables the websocket process host.
func WithHost() ServerOption {
	return func(o *serverOptions) { o.enableHost = true }
}

// WithConsole enables the console and the transport it attaches through.
// Wait returns once the console exits.
func WithConsole() ServerOption {
	return func(o *serverOptions) { o.enableConsole = true }
}

// WithStatusAPI serves the console's session state over HTTP. It requires
// WithConsole.
func WithStatusAPI() ServerOption {
	return func(o *serverOptions) { o.enableStatus = true }
}

// New constructs a composable termplex server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHost && !options.enableConsole {
		return nil, errors.New("no services enabled")
	}
	if options.enableStatus && !options.enableConsole {
		return nil, errors.New("status api requires the console")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	var hostSrv *host.Server
	if options.enableHost {
		hostSrv = host.NewServer(cfg.Host, deps.Spawner, logger.With("component", "host"))
	}

	sinks := deps.EventSinks
	var statusSrv *httpapi.Server
	if options.enableStatus {
		hub := httpapi.NewHub(cfg.Status.HistorySize, logger.With("component", "status"))
		statusSrv = httpapi.NewServer(cfg.Status, hub)
		sinks = append(append([]core.EventSink(nil), sinks...), hub)
	}

	var channel *transport.Channel
	var term *console.Console
	if options.enableConsole {
		var err error
		channel, err = transport.NewChannel(cfg.Transport, transport.Deps{
			Clock:  deps.Clock,
			Logger: logger.With("component", "transport"),
		})
		if err != nil {
			return nil, err
		}
		term, err = console.New(cfg.Console, console.Deps{
			Transport: channel,
			Input:     deps.Input,
			Output:    deps.Output,
			Size:      deps.Size,
			Resize:    deps.Resize,
			Clock:     deps.Clock,
			Logger:    logger.With("component", "console"),
			Sink:      joinSinks(sinks),
		})
		if err != nil {
			return nil, err
		}
	}

	return &compositeServer{
		cfg:       cfg,
		options:   options,
		hostSrv:   hostSrv,
		statusSrv: statusSrv,
		channel:   channel,
		console:   term,
	}, nil
}

type compositeServer struct {
	cfg       ServerConfig
	options   serverOptions
	hostSrv   *host.Server
	statusSrv *httpapi.Server
	channel   *transport.Channel
	console   *console.Console
	logger    pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 4)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"host", s.options.enableHost,
		"console", s.options.enableConsole,
		"status", s.options.enableStatus,
		"host_addr", s.cfg.Host.Addr,
		"transport_url", s.cfg.Transport.URL,
	)
	if s.hostSrv != nil {
		go func() {
			if err := s.hostSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("host server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.statusSrv != nil {
		go func() {
			if err := s.statusSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("status api failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.channel != nil {
		go func() {
			if err := s.channel.Run(s.ctx); err != nil {
				log.Error("transport failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.console != nil {
		go func() {
			err := s.console.Run(s.ctx)
			if err != nil {
				log.Error("console failed", "err", err)
			} else {
				log.Info("console finished")
			}
			s.errCh <- err
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		_ = s.Stop(context.Background())
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	serverCtx := s.ctx
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			log.Warn("server transport close failed", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-serverCtx.Done():
		log.Info("server stopped")
		return nil
	}
}
