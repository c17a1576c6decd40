package contracts

import (
	"context"
	"errors"
)

// Sentinel errors for the orchestration core. Each maps to a stable
// ErrorKind surfaced in stage and workflow results.
var (
	// Intent / stage input errors
	ErrValidationFailed   = errors.New("validation failed")
	ErrPrerequisiteFailed = errors.New("prerequisite stage failed")

	// Domain verdicts
	ErrNoViableRoute         = errors.New("no viable route")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrComplianceRejected    = errors.New("compliance rejected")

	// Adapter errors
	ErrAdapterTransient = errors.New("adapter transient failure")
	ErrAdapterPermanent = errors.New("adapter permanent failure")
	ErrRateLimited      = errors.New("adapter rate limited")

	// Budgets and flow control
	ErrStageTimeout    = errors.New("stage timeout exceeded")
	ErrWorkflowTimeout = errors.New("workflow timeout exceeded")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrBusy            = errors.New("worker concurrency slot unavailable")
	ErrCancelled       = errors.New("workflow cancelled")

	// Consensus
	ErrAllWorkersFailed = errors.New("all consensus workers failed")
	ErrNoConsensus      = errors.New("consensus not reached")

	// Registry / factory
	ErrMissingDependency = errors.New("required capability not registered")
	ErrUnknownCapability = errors.New("capability not registered")
	ErrUnknownPreset     = errors.New("unknown workflow preset")
	ErrNoWorkers         = errors.New("no workers available for capability")

	// Catch-all for unexpected faults in the core
	ErrInternal = errors.New("internal error")
)

// ErrorKind is the stable, user-visible classification of a failure.
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindValidationFailed      ErrorKind = "validation_failed"
	KindPrerequisiteFailed    ErrorKind = "prerequisite_failed"
	KindNoViableRoute         ErrorKind = "no_viable_route"
	KindInsufficientLiquidity ErrorKind = "insufficient_liquidity"
	KindComplianceRejected    ErrorKind = "compliance_rejected"
	KindAdapterTransient      ErrorKind = "adapter_transient"
	KindAdapterPermanent      ErrorKind = "adapter_permanent"
	KindStageTimeout          ErrorKind = "stage_timeout"
	KindWorkflowTimeout       ErrorKind = "workflow_timeout"
	KindCircuitOpen           ErrorKind = "circuit_open"
	KindBusy                  ErrorKind = "busy"
	KindCancelled             ErrorKind = "cancelled"
	KindAllWorkersFailed      ErrorKind = "all_workers_failed"
	KindInternal              ErrorKind = "internal"
)

// KindOf classifies an error into its stable ErrorKind. Unrecognized
// errors classify as internal; nil classifies as none.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidationFailed):
		return KindValidationFailed
	case errors.Is(err, ErrPrerequisiteFailed):
		return KindPrerequisiteFailed
	case errors.Is(err, ErrNoViableRoute):
		return KindNoViableRoute
	case errors.Is(err, ErrInsufficientLiquidity):
		return KindInsufficientLiquidity
	case errors.Is(err, ErrComplianceRejected):
		return KindComplianceRejected
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrAdapterTransient):
		return KindAdapterTransient
	case errors.Is(err, ErrAdapterPermanent):
		return KindAdapterPermanent
	case errors.Is(err, ErrStageTimeout):
		return KindStageTimeout
	case errors.Is(err, ErrWorkflowTimeout):
		return KindWorkflowTimeout
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrAllWorkersFailed):
		return KindAllWorkersFailed
	default:
		return KindInternal
	}
}

// Err returns the sentinel error for the kind, for callers that match
// with errors.Is. None yields nil.
func (k ErrorKind) Err() error {
	switch k {
	case KindNone:
		return nil
	case KindValidationFailed:
		return ErrValidationFailed
	case KindPrerequisiteFailed:
		return ErrPrerequisiteFailed
	case KindNoViableRoute:
		return ErrNoViableRoute
	case KindInsufficientLiquidity:
		return ErrInsufficientLiquidity
	case KindComplianceRejected:
		return ErrComplianceRejected
	case KindAdapterTransient:
		return ErrAdapterTransient
	case KindAdapterPermanent:
		return ErrAdapterPermanent
	case KindStageTimeout:
		return ErrStageTimeout
	case KindWorkflowTimeout:
		return ErrWorkflowTimeout
	case KindCircuitOpen:
		return ErrCircuitOpen
	case KindBusy:
		return ErrBusy
	case KindCancelled:
		return ErrCancelled
	case KindAllWorkersFailed:
		return ErrAllWorkersFailed
	default:
		return ErrInternal
	}
}

// Retryable reports whether the supervisor's retry envelope should retry
// a failure of this kind. Validation failures and cancellation stop
// retries immediately; only transient adapter faults are retried.
func (k ErrorKind) Retryable() bool {
	return k == KindAdapterTransient
}

// Terminal reports whether the kind always ends the workflow when it
// occurs on a required stage.
func (k ErrorKind) Terminal() bool {
	return k != KindNone
}
