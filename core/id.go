package core

import (
	"fmt"

	"github.com/google/uuid"
	"pkt.systems/termplex/schema"
)

func newTerminalID() schema.TerminalID {
	return schema.TerminalID(uuid.NewString())
}

func sessionID(n int) schema.SessionID {
	return schema.SessionID(fmt.Sprintf("session-%d", n))
}

func paneID(n int) schema.PaneID {
	return schema.PaneID(fmt.Sprintf("pane-%d", n))
}
