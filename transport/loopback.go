package transport

import (
	"sync"

	"pkt.systems/termplex/schema"
)

// Loopback is an in-memory transport. Frames passed to Send go to the
// handler installed with Handle; Deliver injects inbound frames.
type Loopback struct {
	subs *fanout

	mu     sync.Mutex
	ready  bool
	sent   []schema.Frame
	handle func(schema.Frame)
}

// NewLoopback constructs a loopback transport in the given ready state.
func NewLoopback(ready bool) *Loopback {
	return &Loopback{subs: newFanout(), ready: ready}
}

// IsReady reports the simulated connection state.
func (l *Loopback) IsReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// SetReady changes the connection state, notifying OnReady subscribers on a
// transition to ready.
func (l *Loopback) SetReady(ready bool) {
	l.mu.Lock()
	was := l.ready
	l.ready = ready
	l.mu.Unlock()
	if ready && !was {
		l.subs.notifyReady()
	}
}

// Handle installs the receiver for sent frames.
func (l *Loopback) Handle(fn func(schema.Frame)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handle = fn
}

// Send records the frame and hands it to the installed receiver.
func (l *Loopback) Send(frame schema.Frame) error {
	l.mu.Lock()
	if !l.ready {
		l.mu.Unlock()
		return schema.ErrNotReady
	}
	l.sent = append(l.sent, frame)
	handle := l.handle
	l.mu.Unlock()
	if handle != nil {
		handle(frame)
	}
	return nil
}

// Sent returns a copy of every frame accepted by Send.
func (l *Loopback) Sent() []schema.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]schema.Frame(nil), l.sent...)
}

// Subscribe registers a handler for inbound frames.
func (l *Loopback) Subscribe(handler func(raw []byte)) func() {
	return l.subs.subscribe(handler)
}

// OnReady registers fn for transitions to ready.
func (l *Loopback) OnReady(fn func()) func() {
	return l.subs.onReady(fn)
}

// Deliver fans raw out to every subscriber.
func (l *Loopback) Deliver(raw []byte) {
	l.subs.emit(raw)
}

// DeliverFrame encodes frame and delivers it.
func (l *Loopback) DeliverFrame(frame schema.RemoteFrame) error {
	raw, err := schema.EncodeRemoteFrame(frame)
	if err != nil {
		return err
	}
	l.Deliver(raw)
	return nil
}

// Subscribers returns the number of registered frame handlers.
func (l *Loopback) Subscribers() int {
	return l.subs.subscribers()
}
