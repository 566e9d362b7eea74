package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ppiankov/sourcecheck/internal/backend"
)

// Service status values
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// ServiceState is a read-only snapshot of the service's readiness. A new
// snapshot replaces the old one; snapshots are never mutated.
type ServiceState struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Backend      string    `json:"backend"`
	BackendReady bool      `json:"backend_ready"`
	StartedAt    time.Time `json:"started_at"`
}

// StateHolder publishes service state snapshots to concurrent readers
type StateHolder struct {
	version   string
	startedAt time.Time
	current   atomic.Pointer[ServiceState]
}

// NewStateHolder creates a holder with an initial degraded snapshot
func NewStateHolder(version string, b backend.Backend) *StateHolder {
	h := &StateHolder{version: version, startedAt: time.Now().UTC()}
	h.current.Store(&ServiceState{
		Status:    StatusDegraded,
		Version:   version,
		Backend:   b.Name(),
		StartedAt: h.startedAt,
	})
	return h
}

// Load returns the current snapshot
func (h *StateHolder) Load() ServiceState {
	return *h.current.Load()
}

// Refresh probes the backend and publishes a new snapshot
func (h *StateHolder) Refresh(ctx context.Context, b backend.Backend) ServiceState {
	ready := b.IsAvailable(ctx)
	status := StatusOK
	if !ready {
		status = StatusDegraded
	}
	next := &ServiceState{
		Status:       status,
		Version:      h.version,
		Backend:      b.Name(),
		BackendReady: ready,
		StartedAt:    h.startedAt,
	}
	h.current.Store(next)
	return *next
}
