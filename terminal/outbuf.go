package terminal

// outputBuffer holds output that arrives before the renderer exists. It is
// drained once, in arrival order, and then stays empty.
type outputBuffer struct {
	chunks [][]byte
	size   int
}

func (b *outputBuffer) append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.chunks = append(b.chunks, append([]byte(nil), data...))
	b.size += len(data)
}

// drain returns every buffered chunk joined as one write and empties the buffer.
func (b *outputBuffer) drain() []byte {
	if b.size == 0 {
		b.reset()
		return nil
	}
	out := make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	b.reset()
	return out
}

func (b *outputBuffer) reset() {
	b.chunks = nil
	b.size = 0
}
