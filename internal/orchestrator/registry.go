package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// registry guarantees at most one live worker per job. Submitting or
// reprocessing an already-running job is a no-op on the worker side.
type registry struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRegistry() *registry {
	return &registry{running: make(map[uuid.UUID]struct{})}
}

// tryAcquire reserves the job for a new worker. It returns false when a
// worker already holds the job.
func (r *registry) tryAcquire(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[id]; busy {
		return false
	}
	r.running[id] = struct{}{}
	return true
}

func (r *registry) release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}

func (r *registry) isRunning(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.running[id]
	return busy
}
