package supervisor

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/remitstream/remitcore/contracts"
)

// performanceTopK bounds the candidate pool for performance selection.
const performanceTopK = 3

// weightEpsilon floors the processing-time divisor in weighted selection.
const weightEpsilon = time.Millisecond

// selector picks one worker from a capability's pool under a policy.
// Round-robin cursors are kept per capability so the rotation is
// stable across calls.
type selector struct {
	mu      sync.Mutex
	cursors map[contracts.Capability]int
	rng     *rand.Rand
	health  func(contracts.WorkerID) (successRate float64, avg time.Duration)
}

func newSelector(health func(contracts.WorkerID) (float64, time.Duration)) *selector {
	return &selector{
		cursors: make(map[contracts.Capability]int),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		health:  health,
	}
}

// pick selects one worker from the pool. The pool must be sorted by
// worker ID by the caller for deterministic rotation.
func (s *selector) pick(cap contracts.Capability, pool []contracts.Worker, policy contracts.SelectionPolicy, inFlight func(contracts.WorkerID) int) (contracts.Worker, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("capability %s: %w", cap, contracts.ErrNoWorkers)
	}
	if len(pool) == 1 {
		return pool[0], nil
	}

	switch policy {
	case contracts.SelectLeastInFlight:
		return s.leastInFlight(pool, inFlight), nil
	case contracts.SelectWeighted:
		return s.weightedPick(pool), nil
	case contracts.SelectRandom:
		s.mu.Lock()
		w := pool[s.rng.Intn(len(pool))]
		s.mu.Unlock()
		return w, nil
	case contracts.SelectPerformance:
		return s.performancePick(pool), nil
	default: // round_robin
		s.mu.Lock()
		idx := s.cursors[cap] % len(pool)
		s.cursors[cap] = idx + 1
		s.mu.Unlock()
		return pool[idx], nil
	}
}

func (s *selector) leastInFlight(pool []contracts.Worker, inFlight func(contracts.WorkerID) int) contracts.Worker {
	best := pool[0]
	bestN := inFlight(best.ID())
	for _, w := range pool[1:] {
		if n := inFlight(w.ID()); n < bestN {
			best, bestN = w, n
		}
	}
	return best
}

// weight is success_rate / max(avg_processing_time, epsilon).
func (s *selector) weight(id contracts.WorkerID) float64 {
	rate, avg := s.health(id)
	if avg < weightEpsilon {
		avg = weightEpsilon
	}
	return rate / avg.Seconds()
}

func (s *selector) weightedPick(pool []contracts.Worker) contracts.Worker {
	weights := make([]float64, len(pool))
	var total float64
	for i, w := range pool {
		weights[i] = s.weight(w.ID())
		total += weights[i]
	}
	if total <= 0 {
		return pool[0]
	}

	s.mu.Lock()
	target := s.rng.Float64() * total
	s.mu.Unlock()

	var acc float64
	for i, w := range pool {
		acc += weights[i]
		if target < acc {
			return w
		}
	}
	return pool[len(pool)-1]
}

// performancePick keeps the top-K workers by weight and rotates
// randomly among them.
func (s *selector) performancePick(pool []contracts.Worker) contracts.Worker {
	ranked := make([]contracts.Worker, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool {
		return s.weight(ranked[i].ID()) > s.weight(ranked[j].ID())
	})

	k := performanceTopK
	if k > len(ranked) {
		k = len(ranked)
	}
	s.mu.Lock()
	w := ranked[s.rng.Intn(k)]
	s.mu.Unlock()
	return w
}
