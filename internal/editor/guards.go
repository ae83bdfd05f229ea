package editor

import "sync"

// guardSet is the per-cell concurrency guard: a cell's second commit
// cannot begin persisting until the first completes or fails. Release
// always happens in the caller's defer, regardless of outcome.
type guardSet struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newGuardSet() *guardSet {
	return &guardSet{inflight: make(map[string]struct{})}
}

// acquire reports false when the key is already held.
func (g *guardSet) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.inflight[key]; held {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

func (g *guardSet) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}
