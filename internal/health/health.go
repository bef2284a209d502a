// Package health runs named readiness checks for the screening service's
// dependencies.
package health

import (
	"context"
	"sync"
	"time"
)

// checkTimeout bounds each individual check so one stuck dependency cannot
// hang the readiness probe.
const checkTimeout = 5 * time.Second

// Status is the outcome of one named check.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one dependency. A nil return means healthy; the error
// message becomes the status detail.
type Checker func(ctx context.Context) error

// Registry holds named checkers and runs them on demand. Checks run in
// registration order so probe output stays stable.
type Registry struct {
	mu       sync.RWMutex
	names    []string
	checkers map[string]Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds a named checker. Registering the same name twice replaces
// the earlier checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	if _, ok := r.checkers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.checkers[name] = check
	r.mu.Unlock()
}

// CheckAll runs every checker with a bounded deadline and returns the
// aggregate health plus per-dependency results.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	checkers := make(map[string]Checker, len(r.checkers))
	for name, check := range r.checkers {
		checkers[name] = check
	}
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, 0, len(names))

	for _, name := range names {
		status := Status{Name: name, Healthy: true}
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		if err := checkers[name](checkCtx); err != nil {
			status.Healthy = false
			status.Detail = err.Error()
			healthy = false
		}
		cancel()
		statuses = append(statuses, status)
	}

	return healthy, statuses
}
