package routing

import (
	"context"
	"errors"

	"github.com/remitstream/remitcore/contracts"
)

// Worker exposes the optimizer as a route_optimization worker.
type Worker struct {
	id            contracts.WorkerID
	opt           *Optimizer
	maxConcurrent int
}

// NewWorker wraps an Optimizer as a supervised worker.
func NewWorker(id string, opt *Optimizer, maxConcurrent int) *Worker {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &Worker{id: contracts.WorkerID(id), opt: opt, maxConcurrent: maxConcurrent}
}

func (w *Worker) ID() contracts.WorkerID          { return w.id }
func (w *Worker) Capability() contracts.Capability { return contracts.CapRouteOptimization }
func (w *Worker) MaxConcurrent() int               { return w.maxConcurrent }

// Optimizer returns the wrapped optimizer for outcome feedback.
func (w *Worker) Optimizer() *Optimizer { return w.opt }

// Process runs the optimization pass for the transaction's intent.
// An empty candidate set is a domain verdict, not a worker fault: it
// comes back as a failed stage result so the breaker stays untouched.
func (w *Worker) Process(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	result, err := w.opt.Optimize(ctx, tx.Intent)
	if errors.Is(err, contracts.ErrNoViableRoute) {
		return &contracts.StageResult{
			OK:      false,
			StageID: tx.StageID,
			Message: err.Error(),
			Kind:    contracts.KindNoViableRoute,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &contracts.StageResult{
		OK:      true,
		StageID: tx.StageID,
		Message: result.Reason,
		Payload: &contracts.RoutePayload{
			Optimization: result,
			Selected:     result.Selected,
		},
		Confidence: result.Confidence,
	}, nil
}
