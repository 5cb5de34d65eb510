package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/termplex/internal/appconfig"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"attach": false, "host": false, "config": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected %s command", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "pkt.systems/termplex ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestConfigInitWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termplex", "config.yaml")
	root := newRootCmd()
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.ConfigVersion != appconfig.CurrentConfigVersion {
		t.Fatalf("unexpected config version %d", cfg.ConfigVersion)
	}

	root = newRootCmd()
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected init without --force to refuse an existing file")
	}
}

func TestToServerConfig(t *testing.T) {
	cfg := appconfig.DefaultConfig()
	cfg.Host.AllowedOrigins = []string{"http://localhost"}
	cfg.Console.ScrollbackBytes = 4096
	cfg.Status.Addr = "127.0.0.1:27491"
	got := toServerConfig(cfg)
	if got.Transport.URL != cfg.Transport.URL {
		t.Fatalf("unexpected transport url %q", got.Transport.URL)
	}
	if got.Transport.ReconnectMin != cfg.Transport.ReconnectMin() || got.Transport.ReconnectMax != cfg.Transport.ReconnectMax() {
		t.Fatalf("unexpected reconnect bounds %s..%s", got.Transport.ReconnectMin, got.Transport.ReconnectMax)
	}
	if got.Host.Addr != cfg.Host.Addr || got.Host.Path != cfg.Host.Path || len(got.Host.AllowedOrigins) != 1 {
		t.Fatalf("unexpected host config %+v", got.Host)
	}
	if got.Console.Scrollback != 4096 {
		t.Fatalf("unexpected scrollback %d", got.Console.Scrollback)
	}
	if got.Status.Addr != "127.0.0.1:27491" || got.Status.HistorySize != cfg.Status.HistorySize {
		t.Fatalf("unexpected status config %+v", got.Status)
	}
	if got.Console.Manager.MaxSessions != cfg.Terminal.MaxSessions || got.Console.Terminal.AllowInput != cfg.Terminal.AllowInput {
		t.Fatalf("unexpected console config %+v", got.Console)
	}
}
