package terminal

import "pkt.systems/termplex/schema"

// Transport is the shared duplex channel to the process host. Every unit
// subscribes independently; units never close or reconfigure it.
type Transport interface {
	IsReady() bool
	Send(frame schema.Frame) error
	Subscribe(handler func(raw []byte)) (unsubscribe func())
}

// ReadyNotifier is implemented by transports that can report a transition
// to ready, such as after a reconnect.
type ReadyNotifier interface {
	OnReady(fn func()) (cancel func())
}

// Renderer is the local terminal surface for one unit.
//
// Resize must notify OnResize listeners when the committed geometry changes.
// A key filter returns false to keep the renderer from handling the event.
type Renderer interface {
	Write(data []byte)
	Dispose()
	OnData(fn func(data string))
	OnResize(fn func(geometry schema.Geometry))
	ProposeGeometry(width, height int) (schema.Geometry, bool)
	Resize(geometry schema.Geometry)
	Selection() string
	ClearSelection()
	SetKeyFilter(filter func(event schema.KeyEvent) bool)
}

// RendererFactory constructs a renderer attached to mount.
type RendererFactory func(mount Mount) (Renderer, error)

// Mount is the layout target a renderer draws into.
type Mount interface {
	Size() (width, height int)
	Clear()
	Observe(fn func()) (cancel func())
}

// Clipboard receives copied selections.
type Clipboard interface {
	Copy(text string) error
}
