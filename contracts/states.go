package contracts

// WorkflowStatus is the terminal status of a workflow run.
type WorkflowStatus string

const (
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
	StatusCancelled WorkflowStatus = "cancelled"
)

// TransactionStatus is the adapter-side lifecycle of a transaction.
// Transitions are monotonic: pending -> submitted -> confirmed | failed.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxSubmitted TransactionStatus = "submitted"
	TxConfirmed TransactionStatus = "confirmed"
	TxFailed    TransactionStatus = "failed"
)

// rank orders transaction statuses for monotonicity checks.
func (s TransactionStatus) rank() int {
	switch s {
	case TxPending:
		return 0
	case TxSubmitted:
		return 1
	case TxConfirmed, TxFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next respects the
// monotonic transaction lifecycle. Repeating the current status is
// allowed (idempotent status updates).
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	if s == next {
		return true
	}
	if s == TxConfirmed || s == TxFailed {
		return false
	}
	return next.rank() > s.rank()
}

// Terminal reports whether the status admits no further transitions.
func (s TransactionStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// WorkerStatus is the runtime status of a worker instance.
type WorkerStatus string

const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerBusy    WorkerStatus = "busy"
	WorkerError   WorkerStatus = "error"
	WorkerOffline WorkerStatus = "offline"
)
