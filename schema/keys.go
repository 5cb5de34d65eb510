package schema

import "strings"

// KeyEvent is a keyboard event as seen by the host UI before a renderer
// consumes it.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Alt   bool
	Shift bool
	// TextInput is true when the event target is a text input outside the
	// terminal (search box, rename field).
	TextInput bool
}

// Modifier reports whether the platform command modifier (Ctrl or Meta) is held.
func (e KeyEvent) Modifier() bool {
	return e.Ctrl || e.Meta
}

// Is reports whether the event key matches key, ignoring case.
func (e KeyEvent) Is(key string) bool {
	return strings.EqualFold(e.Key, key)
}
