package transport

import "sync"

// fanout delivers raw frames and ready transitions to independent
// subscribers. Handlers run on the caller's goroutine in no particular order.
type fanout struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func([]byte)
	ready    map[int]func()
}

func newFanout() *fanout {
	return &fanout{
		handlers: make(map[int]func([]byte)),
		ready:    make(map[int]func()),
	}
}

func (f *fanout) subscribe(handler func(raw []byte)) func() {
	if handler == nil {
		return func() {}
	}
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = handler
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}
}

func (f *fanout) onReady(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	f.mu.Lock()
	id := f.next
	f.next++
	f.ready[id] = fn
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.ready, id)
			f.mu.Unlock()
		})
	}
}

func (f *fanout) emit(raw []byte) {
	f.mu.Lock()
	handlers := make([]func([]byte), 0, len(f.handlers))
	for _, handler := range f.handlers {
		handlers = append(handlers, handler)
	}
	f.mu.Unlock()
	for _, handler := range handlers {
		handler(raw)
	}
}

func (f *fanout) notifyReady() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.ready))
	for _, fn := range f.ready {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fanout) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
