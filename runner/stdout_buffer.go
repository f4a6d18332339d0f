package runner

import (
	"sync"
)

// byteCounter counts what a test process writes to stdout, so empty output
// is never handed to the JSON store.
type byteCounter struct {
	mu    sync.Mutex
	total int64
}

func (b *byteCounter) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += int64(len(p))
	return len(p), nil
}

func (b *byteCounter) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
