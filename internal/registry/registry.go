// Package registry maps capability names to worker constructors and
// created worker instances.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// entry pairs a descriptor with its constructor.
type entry struct {
	desc contracts.WorkerDescriptor
	ctor contracts.WorkerConstructor
}

// registry implements contracts.Registry.
//
// The capability index is read-mostly: lookups take a read lock,
// registrations (rare) take the write lock.
type registry struct {
	mu      sync.RWMutex
	kinds   map[contracts.Capability]*entry
	workers map[contracts.Capability][]contracts.Worker
	log     *zap.Logger
}

// New creates an empty Registry.
func New(log *zap.Logger) contracts.Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &registry{
		kinds:   make(map[contracts.Capability]*entry),
		workers: make(map[contracts.Capability][]contracts.Worker),
		log:     log,
	}
}

// Register records a worker kind. Idempotent on (capability, version):
// re-registering the same pair updates the entry in place.
func (r *registry) Register(desc contracts.WorkerDescriptor, ctor contracts.WorkerConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.kinds[desc.Capability]; exists && prev.desc.Version == desc.Version {
		prev.desc = desc
		prev.ctor = ctor
		r.log.Debug("worker kind updated",
			zap.String("capability", string(desc.Capability)),
			zap.String("version", desc.Version))
		return
	}

	r.kinds[desc.Capability] = &entry{desc: desc, ctor: ctor}
	r.log.Info("worker kind registered",
		zap.String("capability", string(desc.Capability)),
		zap.String("version", desc.Version),
		zap.Int("requires", len(desc.Requires)))
}

// Create constructs and retains a worker for the capability.
// Fails with ErrMissingDependency if any required capability of the
// descriptor has no registered kind.
func (r *registry) Create(cap contracts.Capability, cfg map[string]any) (contracts.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.kinds[cap]
	if !exists {
		return nil, fmt.Errorf("capability %s: %w", cap, contracts.ErrUnknownCapability)
	}

	for _, req := range e.desc.Requires {
		if _, ok := r.kinds[req]; !ok {
			return nil, fmt.Errorf("capability %s requires %s: %w",
				cap, req, contracts.ErrMissingDependency)
		}
	}

	w, err := e.ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing %s worker: %w", cap, err)
	}

	r.workers[cap] = append(r.workers[cap], w)
	r.log.Info("worker created",
		zap.String("capability", string(cap)),
		zap.String("worker_id", string(w.ID())))
	return w, nil
}

// ByCapability returns all created workers for one capability.
func (r *registry) ByCapability(cap contracts.Capability) []contracts.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws := r.workers[cap]
	out := make([]contracts.Worker, len(ws))
	copy(out, ws)
	return out
}

// ByCapabilities returns workers satisfying every given capability.
// With a single capability per worker this is the set intersection
// over the capability index; zero capabilities yields nil.
func (r *registry) ByCapabilities(caps ...contracts.Capability) []contracts.Worker {
	if len(caps) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[contracts.WorkerID]int)
	byID := make(map[contracts.WorkerID]contracts.Worker)
	seen := make(map[contracts.Capability]bool)
	for _, cap := range caps {
		if seen[cap] {
			continue
		}
		seen[cap] = true
		for _, w := range r.workers[cap] {
			counts[w.ID()]++
			byID[w.ID()] = w
		}
	}

	var out []contracts.Worker
	for id, n := range counts {
		if n == len(seen) {
			out = append(out, byID[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Descriptors returns a snapshot of all registered worker kinds,
// sorted by capability for determinism.
func (r *registry) Descriptors() []contracts.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.WorkerDescriptor, 0, len(r.kinds))
	for _, e := range r.kinds {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out
}
