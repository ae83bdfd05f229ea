package service

import (
	"sync"
	"time"
)

// RefreshController is the monotonically increasing version counter
// that decides when the grid must be re-fetched from the store versus
// trusted as-is. The counter bumps on explicit refresh requests and on
// completed commits not marked skip-trigger; a wall-clock timestamp
// tracks the last completed refresh for display.
type RefreshController struct {
	mu          sync.Mutex
	version     int64
	lastRefresh time.Time
	watchers    map[int]chan int64
	nextWatcher int
}

func NewRefreshController() *RefreshController {
	return &RefreshController{watchers: make(map[int]chan int64)}
}

// Bump increments the counter and notifies watchers. Notification is
// coalescing: a watcher that has not drained its channel simply sees
// the latest bump once.
func (r *RefreshController) Bump() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version++
	v := r.version
	for _, ch := range r.watchers {
		select {
		case ch <- v:
		default:
			// Watcher is behind; it will read the current version when
			// it catches up.
		}
	}
	return v
}

// Version returns the current counter value.
func (r *RefreshController) Version() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// MarkRefreshed stamps the wall clock of a completed reload.
func (r *RefreshController) MarkRefreshed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRefresh = time.Now()
}

// LastRefresh returns when the grid last completed a reload.
func (r *RefreshController) LastRefresh() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefresh
}

// Watch registers a watcher. The returned cancel func must be called
// when the watcher stops consuming.
func (r *RefreshController) Watch() (<-chan int64, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextWatcher++
	id := r.nextWatcher
	ch := make(chan int64, 1)
	r.watchers[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers, id)
	}
}
