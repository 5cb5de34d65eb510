package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"pkt.systems/termplex/schema"
)

// Process is one shell attached to a terminal id.
type Process interface {
	io.Reader
	io.Writer
	Resize(geometry schema.Geometry) error
	// Wait blocks until the process exits.
	Wait() error
	// Close kills the process and releases the terminal.
	Close() error
}

// Spawner starts processes for new terminal ids.
type Spawner interface {
	Spawn(ctx context.Context, id schema.TerminalID, geometry schema.Geometry) (Process, error)
}

// PTYSpawner runs Shell in a pseudo-terminal.
type PTYSpawner struct {
	Shell string
	Args  []string
	Env   []string
}

// Spawn starts the shell sized to geometry.
func (s PTYSpawner) Spawn(ctx context.Context, id schema.TerminalID, geometry schema.Geometry) (Process, error) {
	shell := s.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.CommandContext(ctx, shell, s.Args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, "TERM=xterm-256color", "TERMPLEX_TERMINAL_ID="+string(id))
	ptmx, err := pty.StartWithSize(cmd, winsize(geometry))
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", shell, err)
	}
	return &ptyProcess{cmd: cmd, ptmx: ptmx}, nil
}

type ptyProcess struct {
	cmd       *exec.Cmd
	ptmx      *os.File
	closeOnce sync.Once
	closeErr  error
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	return p.ptmx.Read(b)
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

func (p *ptyProcess) Resize(geometry schema.Geometry) error {
	if !geometry.Valid() {
		return errors.New("invalid geometry")
	}
	return pty.Setsize(p.ptmx, winsize(geometry))
}

func (p *ptyProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *ptyProcess) Close() error {
	p.closeOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		p.closeErr = p.ptmx.Close()
	})
	return p.closeErr
}

func winsize(geometry schema.Geometry) *pty.Winsize {
	return &pty.Winsize{Cols: clampDimension(geometry.Cols), Rows: clampDimension(geometry.Rows)}
}

// clampDimension bounds a cell count to the range a kernel winsize holds.
func clampDimension(n int) uint16 {
	switch {
	case n <= 0:
		return 0
	case n > math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(n)
	}
}
