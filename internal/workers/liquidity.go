package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// LiquidityWorker implements the liquidity capability against a set of
// per-currency pools. The core releases a run's reservation when it
// ends without settling and commits it once the run completes.
type LiquidityWorker struct {
	id            contracts.WorkerID
	maxConcurrent int
	log           *zap.Logger

	mu       sync.Mutex
	pools    map[contracts.CurrencyCode]decimal.Decimal
	reserved map[contracts.WorkflowID]reservation
}

type reservation struct {
	currency contracts.CurrencyCode
	amount   decimal.Decimal
}

// NewLiquidityWorker creates a liquidity worker with empty pools.
// Seed balances with SetPool before use.
func NewLiquidityWorker(id string, maxConcurrent int, log *zap.Logger) *LiquidityWorker {
	if maxConcurrent < 1 {
		maxConcurrent = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LiquidityWorker{
		id:            contracts.WorkerID(id),
		maxConcurrent: maxConcurrent,
		log:           log,
		pools:         make(map[contracts.CurrencyCode]decimal.Decimal),
		reserved:      make(map[contracts.WorkflowID]reservation),
	}
}

func (w *LiquidityWorker) ID() contracts.WorkerID           { return w.id }
func (w *LiquidityWorker) Capability() contracts.Capability { return contracts.CapLiquidity }
func (w *LiquidityWorker) MaxConcurrent() int               { return w.maxConcurrent }

// SetPool seeds the available liquidity for a destination currency.
func (w *LiquidityWorker) SetPool(currency contracts.CurrencyCode, available decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pools[currency] = available
}

// Pool returns the current available liquidity for a currency.
func (w *LiquidityWorker) Pool(currency contracts.CurrencyCode) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pools[currency]
}

// Process reserves destination-currency liquidity for the run. An
// underfunded pool is a domain verdict, not a worker fault.
func (w *LiquidityWorker) Process(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("liquidity worker: %w", contracts.ErrCancelled)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	currency := tx.Intent.ToCurrency
	pool := w.pools[currency]

	if pool.LessThan(tx.Intent.Amount) {
		return &contracts.StageResult{
			OK:      false,
			StageID: tx.StageID,
			Kind:    contracts.KindInsufficientLiquidity,
			Message: fmt.Sprintf("pool %s holds %s, need %s", currency, pool, tx.Intent.Amount),
			Payload: &contracts.LiquidityPayload{Available: false, Pool: pool, Currency: currency},
		}, nil
	}

	// Idempotent per workflow: re-running the stage must not double-book.
	if _, ok := w.reserved[tx.WorkflowID]; !ok {
		w.pools[currency] = pool.Sub(tx.Intent.Amount)
		w.reserved[tx.WorkflowID] = reservation{currency: currency, amount: tx.Intent.Amount}
	}

	w.log.Debug("liquidity reserved",
		zap.String("workflow_id", string(tx.WorkflowID)),
		zap.String("currency", string(currency)),
		zap.String("amount", tx.Intent.Amount.String()))

	return &contracts.StageResult{
		OK:      true,
		StageID: tx.StageID,
		Payload: &contracts.LiquidityPayload{Available: true, Pool: w.pools[currency], Currency: currency},
	}, nil
}

// Release returns a run's reservation to its pool. Safe to call for
// runs that never reserved.
func (w *LiquidityWorker) Release(id contracts.WorkflowID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.reserved[id]
	if !ok {
		return
	}
	delete(w.reserved, id)
	w.pools[r.currency] = w.pools[r.currency].Add(r.amount)
}

// Commit discards a run's reservation after successful settlement.
func (w *LiquidityWorker) Commit(id contracts.WorkflowID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.reserved, id)
}
