package maintenance

import "sync"

// Guard is the in-memory single-flight token for maintenance windows: at
// most one task may hold it at a time, process-wide. Sufficient for the
// single-orchestrator deployment this control plane requires; a multi-process
// deployment would need to replace it with a lock record or distributed
// mutex.
type Guard struct {
	mu       sync.Mutex
	activeID string
}

// TryAcquire takes the guard for the given task id. Returns false when
// another maintenance window is already open.
func (g *Guard) TryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeID != "" {
		return false
	}
	g.activeID = id
	return true
}

// Release frees the guard if held by the given task id.
func (g *Guard) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeID == id {
		g.activeID = ""
	}
}

// ActiveID returns the id of the task currently holding the guard, or empty.
func (g *Guard) ActiveID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeID
}
