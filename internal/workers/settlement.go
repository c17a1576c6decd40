package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// SettlementWorker implements the settlement capability by delegating
// to a settlement adapter. The settlement id is the intent's reference
// id so the adapter's exactly-once guarantee covers retries.
type SettlementWorker struct {
	id            contracts.WorkerID
	adapter       contracts.SettlementAdapter
	address       string
	maxConcurrent int
	log           *zap.Logger
}

// NewSettlementWorker wraps a settlement adapter as a supervised worker.
func NewSettlementWorker(id string, adapter contracts.SettlementAdapter, address string, maxConcurrent int, log *zap.Logger) *SettlementWorker {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SettlementWorker{
		id:            contracts.WorkerID(id),
		adapter:       adapter,
		address:       address,
		maxConcurrent: maxConcurrent,
		log:           log,
	}
}

func (w *SettlementWorker) ID() contracts.WorkerID           { return w.id }
func (w *SettlementWorker) Capability() contracts.Capability { return contracts.CapSettlement }
func (w *SettlementWorker) MaxConcurrent() int               { return w.maxConcurrent }

// Process settles the payment on-chain. The adapter returns the
// original receipt on repeat calls, so a retried stage cannot settle
// twice.
func (w *SettlementWorker) Process(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	req := &contracts.SettlementRequest{
		SettlementID: tx.Intent.ReferenceID,
		Reference:    tx.Intent.ReferenceID,
		Amount:       tx.Intent.Amount,
		Currency:     tx.Intent.ToCurrency,
		Address:      w.address,
	}

	receipt, err := w.adapter.Settle(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("settlement worker %s: %w", w.id, err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("settlement worker %s: adapter returned no receipt: %w", w.id, contracts.ErrInternal)
	}

	w.log.Debug("payment settled",
		zap.String("settlement_id", receipt.SettlementID),
		zap.String("tx_hash", receipt.TxHash))

	return &contracts.StageResult{
		OK:      true,
		StageID: tx.StageID,
		Payload: &contracts.SettlementPayload{
			SettlementID: receipt.SettlementID,
			TxHash:       receipt.TxHash,
			Fee:          receipt.Fee,
		},
	}, nil
}
