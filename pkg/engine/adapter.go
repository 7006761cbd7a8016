package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/desktide/desktide/pkg/resource"
)

// ProbeResult reports whether a resource's desired state already holds.
type ProbeResult struct {
	// Satisfied is true when no apply is needed.
	Satisfied bool

	// Reason explains the probe result for the run report.
	Reason string
}

// ApplyResult reports the outcome of a successful apply.
type ApplyResult struct {
	// Changed is true when the system was actually mutated.
	Changed bool

	// Detail is a short human-readable description of what was done.
	Detail string

	// Flags are advisory flags raised by this apply (e.g. a driver
	// install recommending a reboot). Flags accumulate across the run.
	Flags []AdvisoryFlag
}

// Adapter translates resources of one kind into calls against a single
// real-world subsystem. Probe and Apply must classify every failure
// into the StepError taxonomy; raw backend errors never cross this
// boundary.
type Adapter interface {
	// Kind returns the resource kind this adapter handles.
	Kind() resource.Kind

	// Probe reports whether the desired state is already satisfied.
	Probe(ctx context.Context, res *resource.Resource) (ProbeResult, error)

	// Apply mutates the system toward the desired state. Apply is
	// treated as atomic by the executor: there is no cancellation
	// mid-step beyond the context deadline.
	Apply(ctx context.Context, res *resource.Resource) (*ApplyResult, error)

	// ConcurrencySafe reports whether independent resources of this
	// kind may be applied in parallel. Package managers single-lock
	// the system database, so the safe default is false.
	ConcurrencySafe() bool
}

// Registry maps resource kinds to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[resource.Kind]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[resource.Kind]Adapter)}
}

// Register adds an adapter, replacing any previous adapter for the kind.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Get returns the adapter for a kind.
func (r *Registry) Get(kind resource.Kind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, NewPermanentError(fmt.Sprintf("no adapter registered for kind %s", kind), nil).
			WithCode(ErrCodeInternal)
	}
	return a, nil
}

// Kinds returns the registered kinds.
func (r *Registry) Kinds() []resource.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]resource.Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
