package workspace

import (
	"sync"
	"time"
)

// batchDebouncer collects paths and emits them once no new path has
// arrived for delay.
type batchDebouncer struct {
	delay time.Duration
	emit  func([]string)

	mu    sync.Mutex
	timer *time.Timer
	paths []string
	seen  map[string]struct{}
}

func newBatchDebouncer(delay time.Duration, emit func([]string)) *batchDebouncer {
	return &batchDebouncer{delay: delay, emit: emit, seen: map[string]struct{}{}}
}

// Add queues path and restarts the quiet period.
func (b *batchDebouncer) Add(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.seen[path]; !dup {
		b.seen[path] = struct{}{}
		b.paths = append(b.paths, path)
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
}

func (b *batchDebouncer) flush() {
	b.mu.Lock()
	paths := b.paths
	b.paths = nil
	b.seen = map[string]struct{}{}
	b.timer = nil
	b.mu.Unlock()

	if len(paths) > 0 {
		b.emit(paths)
	}
}

// Flush emits pending paths immediately.
func (b *batchDebouncer) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()
	b.flush()
}

// Cancel drops pending paths.
func (b *batchDebouncer) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.paths = nil
	b.seen = map[string]struct{}{}
}

// Pending returns the number of queued paths.
func (b *batchDebouncer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.paths)
}
