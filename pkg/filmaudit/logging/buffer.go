package logging

import "sync"

// DefaultBufferSize is the number of entries kept for the progress display.
const DefaultBufferSize = 50

// Buffer is a fixed-size ring of recent entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	start   int
	count   int
}

// NewBuffer creates a buffer holding up to size entries.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Add appends e, overwriting the oldest entry when full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % len(b.entries)
	b.entries[idx] = e
	if b.count < len(b.entries) {
		b.count++
	} else {
		b.start = (b.start + 1) % len(b.entries)
	}
}

// Last returns up to n most recent entries, oldest first.
func (b *Buffer) Last(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	out := make([]Entry, n)
	offset := b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.entries[(b.start+offset+i)%len(b.entries)]
	}
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
