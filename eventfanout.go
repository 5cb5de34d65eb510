package termplex

import (
	"pkt.systems/termplex/core"
	"pkt.systems/termplex/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) Publish(event schema.ManagerEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.Publish(event)
	}
}

// joinSinks collapses sinks into a single sink, or nil when none are set.
func joinSinks(sinks []core.EventSink) core.EventSink {
	live := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			live = append(live, sink)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return eventFanout{sinks: live}
	}
}
