//go:build !unix

package console

import "context"

// NotifyResize returns nil where window change signals are unavailable.
func NotifyResize(context.Context) <-chan struct{} {
	return nil
}
