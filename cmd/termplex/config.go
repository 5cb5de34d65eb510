package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termplex"
	"pkt.systems/termplex/console"
	"pkt.systems/termplex/host"
	"pkt.systems/termplex/httpapi"
	"pkt.systems/termplex/internal/appconfig"
	"pkt.systems/termplex/transport"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the termplex config file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var cfgPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := appconfig.WriteDefault(cfgPath, force)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config written", "path", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "transport.url: %s\n", cfg.Transport.URL)
			_, _ = fmt.Fprintf(out, "host.addr: %s\n", cfg.Host.Addr)
			_, _ = fmt.Fprintf(out, "host.path: %s\n", cfg.Host.Path)
			_, _ = fmt.Fprintf(out, "terminal.max_sessions: %d\n", cfg.Terminal.MaxSessions)
			_, _ = fmt.Fprintf(out, "terminal.max_splits: %d\n", cfg.Terminal.MaxSplits)
			_, err = fmt.Fprintf(out, "terminal.allow_input: %t\n", cfg.Terminal.AllowInput)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func toServerConfig(cfg appconfig.Config) termplex.ServerConfig {
	return termplex.ServerConfig{
		Host: host.Config{
			Addr:           cfg.Host.Addr,
			Path:           cfg.Host.Path,
			AllowedOrigins: cfg.Host.AllowedOrigins,
		},
		Transport: transport.Config{
			URL:              cfg.Transport.URL,
			ReconnectMin:     cfg.Transport.ReconnectMin(),
			ReconnectMax:     cfg.Transport.ReconnectMax(),
			HandshakeTimeout: cfg.Transport.HandshakeTimeout(),
		},
		Console: console.Config{
			Manager:    cfg.Terminal.ManagerConfig(),
			Terminal:   cfg.Terminal.UnitConfig(),
			Scrollback: cfg.Console.ScrollbackBytes,
		},
		Status: httpapi.Config{
			Addr:        cfg.Status.Addr,
			BasePath:    cfg.Status.BasePath,
			HistorySize: cfg.Status.HistorySize,
		},
	}
}

func toSpawner(cfg appconfig.HostConfig) host.PTYSpawner {
	return host.PTYSpawner{Shell: cfg.Shell, Args: cfg.Args}
}
