package contracts

import (
	"context"
	"time"
)

// =============================================================================
// Worker Supervision Interfaces
// =============================================================================

// Registry maps capability names to worker constructors and instances.
type Registry interface {
	// Register records a worker kind. Registration is idempotent on
	// (capability, version) and updates the entry in place.
	Register(desc WorkerDescriptor, ctor WorkerConstructor)

	// Create constructs and retains a worker for the capability.
	// Fails with ErrMissingDependency if any required capability of
	// the descriptor is not registered.
	Create(cap Capability, cfg map[string]any) (Worker, error)

	// ByCapability returns all created workers for one capability.
	ByCapability(cap Capability) []Worker

	// ByCapabilities returns workers satisfying every given capability
	// (set intersection over the capability index).
	ByCapabilities(caps ...Capability) []Worker

	// Descriptors returns a snapshot of all registered worker kinds.
	Descriptors() []WorkerDescriptor
}

// Supervisor routes work to registered workers with bounded concurrency,
// load balancing, health tracking and per-worker circuit breaking.
type Supervisor interface {
	// Invoke selects a worker of the capability under the policy and
	// runs the transaction through the retry envelope.
	Invoke(ctx context.Context, cap Capability, policy SelectionPolicy, tx *StageTransaction) (*StageResult, error)

	// InvokeWorker runs the transaction on a specific worker through
	// the retry envelope (used by consensus fan-out).
	InvokeWorker(ctx context.Context, w Worker, tx *StageTransaction) (*StageResult, error)

	// Select returns a worker of the capability under the policy
	// without invoking it.
	Select(cap Capability, policy SelectionPolicy) (Worker, error)

	// States returns a health snapshot for every supervised worker.
	States() map[WorkerID]WorkerState
}

// =============================================================================
// Orchestration Interfaces
// =============================================================================

// StageExecutor runs one pipeline stage: asserts prerequisites, selects
// a worker, shapes the stage-local transaction and returns the result.
type StageExecutor interface {
	// StageID returns the stage this executor implements.
	StageID() StageID

	// Requires returns the stages whose results must exist and be OK
	// before this stage can run.
	Requires() []StageID

	// Capability returns the worker capability this stage consumes.
	Capability() Capability

	// Execute runs the stage against the workflow context.
	Execute(ctx context.Context, wf *WorkflowContext) (*StageResult, error)
}

// Orchestrator drives a payment intent through the stage DAG to a
// terminal result.
type Orchestrator interface {
	// Run executes the pipeline for the intent.
	//
	// Returns a non-nil WorkflowResult in every case, including
	// failure and cancellation; partial stage results are preserved.
	// The error mirrors result.Kind for callers that use errors.Is.
	Run(ctx context.Context, intent *PaymentIntent) (*WorkflowResult, error)
}

// Arbiter combines multiple worker verdicts for one stage under a
// selectable consensus rule.
type Arbiter interface {
	// Combine folds parallel stage results into a consensus outcome.
	// Requires at least MinAgents results.
	Combine(results []*StageResult) (*ConsensusOutcome, error)
}

// ConsensusRule selects how the arbiter combines verdicts.
type ConsensusRule string

const (
	RuleMajority  ConsensusRule = "majority"
	RuleWeighted  ConsensusRule = "weighted"
	RuleUnanimous ConsensusRule = "unanimous"
	RuleThreshold ConsensusRule = "threshold"
	RuleMedian    ConsensusRule = "median"
	RuleAverage   ConsensusRule = "average"
)

// ConsensusOutcome is the arbiter's combined verdict.
type ConsensusOutcome struct {
	Result         *StageResult
	Reached        bool
	AgreementRatio float64
	Rule           ConsensusRule
	Votes          int
}

// =============================================================================
// Observability
// =============================================================================

// Sink records per-stage and per-worker counters and compliance alerts.
// Implementations must be safe for concurrent use.
type Sink interface {
	// RecordStage records one stage completion.
	RecordStage(stage StageID, ok bool, elapsed time.Duration)

	// RecordWorker records one worker invocation outcome.
	RecordWorker(id WorkerID, cap Capability, outcome string, elapsed time.Duration)

	// RecordWorkflow records one terminal workflow result.
	RecordWorkflow(status WorkflowStatus, elapsed time.Duration)

	// Alert emits one compliance or risk alert.
	Alert(category, message string)
}
