package contracts

import (
	"context"
	"time"
)

// Worker is an entity implementing one capability, invoked by stages
// through the supervisor. Implementations must tolerate concurrent
// Process calls up to their declared MaxConcurrent.
type Worker interface {
	// ID returns the unique worker instance id.
	ID() WorkerID

	// Capability returns the capability tag this worker satisfies.
	Capability() Capability

	// MaxConcurrent returns the in-flight capacity of the worker.
	MaxConcurrent() int

	// Process executes one stage-local transaction. It must observe
	// ctx cancellation at every suspension point.
	Process(ctx context.Context, tx *StageTransaction) (*StageResult, error)
}

// WorkerConstructor builds a worker instance from a config map.
type WorkerConstructor func(cfg map[string]any) (Worker, error)

// WorkerDescriptor is the static registry entry for a worker kind.
// A worker can be constructed only if all required capabilities resolve.
type WorkerDescriptor struct {
	Capability   Capability
	Version      string
	Requires     []Capability
	ConfigSchema map[string]string
}

// BreakerState is the snapshot of a per-worker circuit breaker.
type BreakerState struct {
	Open     bool
	OpenedAt time.Time
}

// WorkerState is the runtime health snapshot of a worker, owned and
// mutated only by the supervisor.
type WorkerState struct {
	ID                  WorkerID
	Capability          Capability
	Status              WorkerStatus
	InFlight            int
	SuccessRate         float64 // EMA in [0,1]
	AvgProcessing       time.Duration
	ConsecutiveFailures int
	Breaker             BreakerState
}

// SelectionPolicy chooses among workers of one capability.
type SelectionPolicy string

const (
	SelectRoundRobin    SelectionPolicy = "round_robin"
	SelectLeastInFlight SelectionPolicy = "least_in_flight"
	SelectWeighted      SelectionPolicy = "weighted"
	SelectRandom        SelectionPolicy = "random"
	SelectPerformance   SelectionPolicy = "performance"
)
