package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// ExchangeRateWorker implements the exchange_rate capability against a
// static rate table. Locks are cached per corridor so concurrent runs
// in the same corridor see the same locked rate until expiry.
type ExchangeRateWorker struct {
	id            contracts.WorkerID
	maxConcurrent int
	lockWindow    time.Duration
	log           *zap.Logger

	mu    sync.Mutex
	rates map[contracts.Corridor]decimal.Decimal
	locks map[contracts.Corridor]*contracts.RatePayload
}

// NewExchangeRateWorker creates an exchange-rate worker. Seed rates
// with SetRate before use.
func NewExchangeRateWorker(id string, maxConcurrent int, lockWindow time.Duration, log *zap.Logger) *ExchangeRateWorker {
	if maxConcurrent < 1 {
		maxConcurrent = 8
	}
	if lockWindow <= 0 {
		lockWindow = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExchangeRateWorker{
		id:            contracts.WorkerID(id),
		maxConcurrent: maxConcurrent,
		lockWindow:    lockWindow,
		log:           log,
		rates:         make(map[contracts.Corridor]decimal.Decimal),
		locks:         make(map[contracts.Corridor]*contracts.RatePayload),
	}
}

func (w *ExchangeRateWorker) ID() contracts.WorkerID           { return w.id }
func (w *ExchangeRateWorker) Capability() contracts.Capability { return contracts.CapExchangeRate }
func (w *ExchangeRateWorker) MaxConcurrent() int               { return w.maxConcurrent }

// SetRate seeds the rate for a corridor.
func (w *ExchangeRateWorker) SetRate(c contracts.Corridor, rate decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rates[c] = rate
}

// Process locks the corridor rate for the lock window. An unquoted
// corridor is permanent: no amount of retrying produces a rate.
func (w *ExchangeRateWorker) Process(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fx worker: %w", contracts.ErrCancelled)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	corridor := tx.Intent.Corridor()

	if lock, ok := w.locks[corridor]; ok && time.Now().Before(lock.ExpiresAt) {
		return &contracts.StageResult{OK: true, StageID: tx.StageID, Payload: lock}, nil
	}

	rate, ok := w.rates[corridor]
	if !ok {
		return nil, fmt.Errorf("fx: no rate quoted for %s/%s: %w",
			corridor.From, corridor.To, contracts.ErrAdapterPermanent)
	}

	now := time.Now()
	lock := &contracts.RatePayload{
		Rate:      rate,
		LockedAt:  now,
		ExpiresAt: now.Add(w.lockWindow),
	}
	w.locks[corridor] = lock

	w.log.Debug("exchange rate locked",
		zap.String("corridor", string(corridor.From)+"/"+string(corridor.To)),
		zap.String("rate", rate.String()),
		zap.Time("expires_at", lock.ExpiresAt))

	return &contracts.StageResult{OK: true, StageID: tx.StageID, Payload: lock}, nil
}
