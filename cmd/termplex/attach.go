package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termplex"
	"pkt.systems/termplex/console"
	"pkt.systems/termplex/internal/appconfig"
)

func newAttachCmd() *cobra.Command {
	var cfgPath string
	var url string
	var logPath string
	var withHost bool
	var statusAddr string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Open the terminal panel in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Transport.URL = url
			}
			if statusAddr != "" {
				cfg.Status.Addr = statusAddr
			}
			// The panel owns the screen, so logs go to a file or nowhere.
			logger, closeLog, err := attachLogger(logPath)
			if err != nil {
				return err
			}
			defer closeLog()

			restore, err := console.MakeRaw(os.Stdin)
			if err != nil {
				return fmt.Errorf("attach: %w", err)
			}
			defer restore()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			ctx = pslog.ContextWithLogger(ctx, logger)

			opts := []termplex.ServerOption{termplex.WithConsole()}
			if withHost {
				opts = append(opts, termplex.WithHost())
			}
			if cfg.Status.Addr != "" {
				opts = append(opts, termplex.WithStatusAPI())
			}
			server, err := termplex.New(toServerConfig(cfg), termplex.ServerDeps{
				Logger:  logger,
				Spawner: toSpawner(cfg.Host),
				Input:   os.Stdin,
				Output:  os.Stdout,
				Size:    console.WindowSize(os.Stdout),
				Resize:  console.NotifyResize(ctx),
			}, opts...)
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("attach start", "url", cfg.Transport.URL, "embedded_host", withHost, "status_addr", cfg.Status.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&url, "url", "", "process host websocket url, overrides transport.url")
	cmd.Flags().StringVar(&logPath, "log-file", "", "write logs to this file while attached")
	cmd.Flags().BoolVar(&withHost, "with-host", false, "also run the process host in this process")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve the session status api on this address, overrides status.addr")
	return cmd
}

func attachLogger(path string) (pslog.Logger, func(), error) {
	var w io.Writer = io.Discard
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(w),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured}),
	)
	return logger, closeFn, nil
}
