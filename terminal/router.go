package terminal

import (
	"errors"
	"fmt"

	"pkt.systems/termplex/schema"
)

// handleFrame receives every frame on the shared transport and keeps the
// ones addressed to this unit.
func (u *Unit) handleFrame(raw []byte) {
	frame, err := schema.ParseRemoteFrame(raw)
	if frame.TerminalID != "" && frame.TerminalID != u.id {
		return
	}
	if err != nil {
		if errors.Is(err, schema.ErrMissingTerminalID) {
			u.log.Trace("terminal frame unroutable", "err", err)
			return
		}
		u.log.Warn("terminal frame malformed", "err", err)
		return
	}
	switch frame.Kind {
	case schema.RemoteData:
		u.log.Trace("terminal output", "bytes", len(frame.Output))
		u.write(frame.Output)
	case schema.RemoteError:
		u.log.Warn("terminal remote error", "message", frame.Message)
		u.write([]byte(formatRemoteError(frame.Message)))
	case schema.RemoteExit:
		u.log.Info("terminal remote exit")
		u.Teardown()
		u.setStatus(schema.StatusIdle)
	}
}

// write sends output to the renderer, or buffers it until one exists.
func (u *Unit) write(data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.disposed {
		return
	}
	if u.renderer != nil {
		u.renderer.Write(data)
		return
	}
	u.buffer.append(data)
}

func formatRemoteError(message string) string {
	return fmt.Sprintf("\r\n\x1b[31m[error] %s\x1b[0m\r\n", message)
}
