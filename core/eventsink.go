package core

import "pkt.systems/termplex/schema"

// EventSink receives topology and status events from the session manager.
type EventSink interface {
	Publish(event schema.ManagerEvent)
}
