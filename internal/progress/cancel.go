package progress

import (
	"context"
	"sync"
)

// CancelRegistry maps live job IDs to their context cancel functions so an
// external caller (CLI, HTTP handler) can request cooperative cancellation.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCancelRegistry returns an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

// Register associates a job with its cancel function. Overwrites any
// previous registration for the same job.
func (r *CancelRegistry) Register(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[jobID] = cancel
}

// Cancel fires the job's cancel function. Returns false when the job is
// unknown or already finished.
func (r *CancelRegistry) Cancel(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Remove forgets a finished job. Safe to call for unknown IDs.
func (r *CancelRegistry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, jobID)
}
