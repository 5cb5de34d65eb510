package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termplex/core"
	"pkt.systems/termplex/schema"
)

const defaultHistorySize = 256

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                  `json:"seq"`
	Type      string                  `json:"type"`
	Session   schema.SessionID        `json:"session_id,omitempty"`
	Pane      schema.PaneID           `json:"pane_id,omitempty"`
	Terminal  schema.TerminalID       `json:"terminal_id,omitempty"`
	Status    schema.Status           `json:"status,omitempty"`
	Snapshot  *schema.ManagerSnapshot `json:"snapshot,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Hub records manager events with a sequence number and fans them out to
// stream subscribers.
type Hub struct {
	mu          sync.Mutex
	log         pslog.Logger
	historySize int
	seq         uint64
	history     []StreamEvent
	latest      schema.ManagerSnapshot
	subs        map[chan StreamEvent]struct{}
}

var _ core.EventSink = (*Hub)(nil)

// NewHub constructs a hub keeping historySize events for replay.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		log:         logger,
		historySize: historySize,
		subs:        make(map[chan StreamEvent]struct{}),
	}
}

// Publish implements core.EventSink.
func (h *Hub) Publish(event schema.ManagerEvent) {
	snapshot := event.Snapshot
	h.log.Trace("hub manager event", "type", event.Type, "session", event.Session, "terminal", event.Terminal)
	h.mu.Lock()
	h.seq++
	stream := StreamEvent{
		Seq:       h.seq,
		Type:      string(event.Type),
		Session:   event.Session,
		Pane:      event.Pane,
		Terminal:  event.Terminal,
		Status:    event.Status,
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	}
	h.latest = snapshot
	h.history = append(h.history, stream)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	// Sends stay under the lock so unsubscribe never closes a channel mid-send.
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- stream:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		h.log.Warn("hub event dropped", "type", stream.Type, "dropped", dropped)
	}
}

// Latest returns the last published snapshot and its sequence number.
func (h *Hub) Latest() (schema.ManagerSnapshot, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.seq
}

// Subscribe registers a subscriber. The returned replay holds the retained
// events after seq after, taken atomically with the registration so no event
// is both replayed and delivered.
func (h *Hub) Subscribe(after uint64) (<-chan StreamEvent, func(), []StreamEvent) {
	h.mu.Lock()
	ch := make(chan StreamEvent, 64)
	h.subs[ch] = struct{}{}
	replay := h.replayLocked(after)
	subs := len(h.subs)
	h.mu.Unlock()
	h.log.Info("hub subscribe", "subs", subs, "after", after, "replay", len(replay))

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			h.log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, replay
}

func (h *Hub) replayLocked(after uint64) []StreamEvent {
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	return events
}
