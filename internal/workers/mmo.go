package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// MMOWorker implements the mmo_service capability by delegating to a
// mobile-money adapter. The transaction reference is the intent's
// reference id so adapter-side idempotency survives retries.
type MMOWorker struct {
	id            contracts.WorkerID
	adapter       contracts.MMOAdapter
	maxConcurrent int
	log           *zap.Logger
}

// NewMMOWorker wraps a mobile-money adapter as a supervised worker.
func NewMMOWorker(id string, adapter contracts.MMOAdapter, maxConcurrent int, log *zap.Logger) *MMOWorker {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MMOWorker{
		id:            contracts.WorkerID(id),
		adapter:       adapter,
		maxConcurrent: maxConcurrent,
		log:           log,
	}
}

func (w *MMOWorker) ID() contracts.WorkerID           { return w.id }
func (w *MMOWorker) Capability() contracts.Capability { return contracts.CapMMOService }
func (w *MMOWorker) MaxConcurrent() int               { return w.maxConcurrent }

// Process initiates delivery through the adapter, attributing the fee
// from the selected route.
func (w *MMOWorker) Process(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	mmoTx := &contracts.MMOTransaction{
		Reference: tx.Intent.ReferenceID,
		Amount:    tx.Intent.Amount,
		Currency:  tx.Intent.ToCurrency,
		Phone:     tx.Intent.Recipient.Phone,
		Country:   tx.Intent.Recipient.Country,
	}

	submitted, err := w.adapter.Initiate(ctx, mmoTx)
	if err != nil {
		return nil, fmt.Errorf("mmo worker %s: %w", w.id, err)
	}
	if submitted == nil {
		return nil, fmt.Errorf("mmo worker %s: adapter returned no transaction: %w", w.id, contracts.ErrInternal)
	}

	payload := &contracts.MMOPayload{
		ProviderTxID: submitted.ProviderTxID,
		Provider:     submitted.Provider,
	}
	if route := selectedRoute(tx); route != nil {
		payload.Fee = route.EstimatedFee
	}

	w.log.Debug("mmo delivery initiated",
		zap.String("reference", tx.Intent.ReferenceID),
		zap.String("provider", payload.Provider),
		zap.String("provider_tx_id", payload.ProviderTxID))

	return &contracts.StageResult{OK: true, StageID: tx.StageID, Payload: payload}, nil
}

// selectedRoute extracts the winning route from the optimization stage,
// if that stage ran.
func selectedRoute(tx *contracts.StageTransaction) *contracts.Route {
	raw, ok := tx.PriorPayload(contracts.StageOptimizeRoute)
	if !ok {
		return nil
	}
	rp, ok := raw.(*contracts.RoutePayload)
	if !ok {
		return nil
	}
	return rp.Selected
}
