package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/getsolo/solo/internal/devices"
)

// InstanceState tracks a managed backend through its lifecycle.
//
// The transitions are linear: Planned -> Starting -> HealthChecking ->
// Running -> Stopping -> Stopped. Unhealthy is absorbing; an unhealthy
// instance is never revived in place, only terminated and replaced.
type InstanceState string

const (
	StatePlanned        InstanceState = "planned"
	StateStarting       InstanceState = "starting"
	StateHealthChecking InstanceState = "health-checking"
	StateRunning        InstanceState = "running"
	StateStopping       InstanceState = "stopping"
	StateStopped        InstanceState = "stopped"
	StateUnhealthy      InstanceState = "unhealthy"
)

// Record is the manager's view of one backend instance. At most one
// record exists per backend id.
type Record struct {
	InstanceID  string
	Backend     string
	Model       string
	Port        int
	ContainerID string
	Mode        devices.Mode
	State       InstanceState
	StartedAt   time.Time

	// Error carries the failure detail for unhealthy instances.
	Error string
}

// clone returns an independent copy of the record. Record holds only
// value fields, so a shallow copy is a full copy.
func (rec *Record) clone() *Record {
	c := *rec
	return &c
}

// Registry tracks managed instances, keyed by backend id, and enforces
// port exclusivity across them. It is rebuilt from container labels on
// every CLI invocation, so it holds no state the engine does not.
//
// All access goes through the registry's lock: stored records never
// escape, every read hands out a copy, and mutations run inside Update.
// Readers therefore never observe a half-applied state transition.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Reserve atomically checks port exclusivity and inserts a copy of the
// record. It fails with *PortConflictError when another backend already
// holds the port. Re-reserving the same backend replaces its record.
func (r *Registry) Reserve(rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for backend, existing := range r.records {
		if backend == rec.Backend {
			continue
		}
		if existing.Port == rec.Port {
			return &PortConflictError{Port: rec.Port, Backend: backend}
		}
	}

	r.records[rec.Backend] = rec.clone()
	return nil
}

// Get returns a copy of the record for a backend, or nil when none
// exists.
func (r *Registry) Get(backend string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[backend]
	if !ok {
		return nil
	}
	return rec.clone()
}

// Update applies fn to a backend's record under the lock. Missing
// records are a no-op, matching a concurrent stop winning the race.
func (r *Registry) Update(backend string, fn func(*Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[backend]; ok {
		fn(rec)
	}
}

// Delete removes a backend's record. Deleting a missing record is a
// no-op.
func (r *Registry) Delete(backend string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, backend)
}

// ByPort returns a copy of the record holding a port, or nil.
func (r *Registry) ByPort(port int) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Port == port {
			return rec.clone()
		}
	}
	return nil
}

// All returns a snapshot of the records, copied, sorted by backend id.
func (r *Registry) All() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Backend < out[j].Backend })
	return out
}
