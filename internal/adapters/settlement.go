package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// SettlementConfig configures the in-memory settlement adapter.
type SettlementConfig struct {
	FlatFee     decimal.Decimal
	SnapshotTTL time.Duration // retention for redis receipt snapshots
}

// InMemorySettlement is a reference SettlementAdapter. Settle and
// BatchSettle are exactly-once per settlement id: the in-memory receipt
// map is the authority, with an optional Redis snapshot so last-known
// receipts outlive a process.
type InMemorySettlement struct {
	cfg      SettlementConfig
	snapshot *redis.Client // optional
	log      *zap.Logger

	mu       sync.Mutex
	receipts map[string]*contracts.SettlementReceipt
	balances map[string]*contracts.Balance
	scripted []error
}

// NewInMemorySettlement creates the reference settlement adapter.
// A nil snapshot client disables durable receipt snapshots.
func NewInMemorySettlement(cfg SettlementConfig, snapshot *redis.Client, log *zap.Logger) *InMemorySettlement {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemorySettlement{
		cfg:      cfg,
		snapshot: snapshot,
		log:      log,
		receipts: make(map[string]*contracts.SettlementReceipt),
		balances: make(map[string]*contracts.Balance),
	}
}

// ScriptFailures queues errors returned by subsequent Settle calls,
// one per call, before normal processing resumes. Test hook.
func (s *InMemorySettlement) ScriptFailures(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted = append(s.scripted, errs...)
}

// Settle executes one settlement. Repeated calls with the same
// settlement id return the original receipt without re-executing.
func (s *InMemorySettlement) Settle(ctx context.Context, req *contracts.SettlementRequest) (*contracts.SettlementReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("settle: %w", contracts.ErrCancelled)
	}
	if req == nil || req.SettlementID == "" {
		return nil, fmt.Errorf("settle: missing settlement id: %w", contracts.ErrValidationFailed)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("settle: non-positive amount: %w", contracts.ErrAdapterPermanent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if receipt, ok := s.receipts[req.SettlementID]; ok {
		copied := *receipt
		return &copied, nil
	}
	if receipt := s.restoreLocked(ctx, req.SettlementID); receipt != nil {
		copied := *receipt
		return &copied, nil
	}

	if len(s.scripted) > 0 {
		err := s.scripted[0]
		s.scripted = s.scripted[1:]
		if err != nil {
			return nil, err
		}
	}

	receipt := &contracts.SettlementReceipt{
		SettlementID: req.SettlementID,
		TxHash:       txHash(req.SettlementID),
		Status:       contracts.TxConfirmed,
		Fee:          s.cfg.FlatFee,
		SettledAt:    time.Now(),
	}
	s.receipts[req.SettlementID] = receipt
	s.persistLocked(ctx, receipt)

	s.log.Debug("settlement confirmed",
		zap.String("settlement_id", req.SettlementID),
		zap.String("tx_hash", receipt.TxHash))

	copied := *receipt
	return &copied, nil
}

// BatchSettle settles a batch; each request keeps its per-id
// exactly-once guarantee.
func (s *InMemorySettlement) BatchSettle(ctx context.Context, reqs []*contracts.SettlementRequest) (*contracts.BatchReceipt, error) {
	batch := &contracts.BatchReceipt{BatchID: uuid.NewString()}
	for _, req := range reqs {
		receipt, err := s.Settle(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("batch settle %s: %w", req.SettlementID, err)
		}
		batch.Receipts = append(batch.Receipts, receipt)
	}
	return batch, nil
}

// Status returns the latest known status for the settlement id.
func (s *InMemorySettlement) Status(ctx context.Context, settlementID string) (contracts.TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("settlement status: %w", contracts.ErrCancelled)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if receipt, ok := s.receipts[settlementID]; ok {
		return receipt.Status, nil
	}
	if receipt := s.restoreLocked(ctx, settlementID); receipt != nil {
		return receipt.Status, nil
	}
	return "", nil
}

// Balance returns the chain balance of an address, if seeded.
func (s *InMemorySettlement) Balance(ctx context.Context, address string) (*contracts.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("settlement balance: %w", contracts.ErrCancelled)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[address]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

// SetBalance seeds an address balance.
func (s *InMemorySettlement) SetBalance(address string, available decimal.Decimal, currency contracts.CurrencyCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = &contracts.Balance{Subject: address, Available: available, Currency: currency}
}

// txHash derives a deterministic chain hash from the settlement id.
func txHash(settlementID string) string {
	sum := sha256.Sum256([]byte("remitstream:" + settlementID))
	return "0x" + hex.EncodeToString(sum[:])
}

func snapshotKey(settlementID string) string {
	return "settlement:receipt:" + settlementID
}

// persistLocked writes a best-effort receipt snapshot to Redis.
func (s *InMemorySettlement) persistLocked(ctx context.Context, receipt *contracts.SettlementReceipt) {
	if s.snapshot == nil {
		return
	}
	data, err := json.Marshal(receipt)
	if err != nil {
		return
	}
	if err := s.snapshot.Set(ctx, snapshotKey(receipt.SettlementID), data, s.cfg.SnapshotTTL).Err(); err != nil {
		s.log.Warn("receipt snapshot write failed",
			zap.String("settlement_id", receipt.SettlementID), zap.Error(err))
	}
}

// restoreLocked recovers a receipt snapshot from Redis, repopulating
// the in-memory map so retries after a restart stay exactly-once.
func (s *InMemorySettlement) restoreLocked(ctx context.Context, settlementID string) *contracts.SettlementReceipt {
	if s.snapshot == nil {
		return nil
	}
	data, err := s.snapshot.Get(ctx, snapshotKey(settlementID)).Bytes()
	if err != nil {
		return nil
	}
	var receipt contracts.SettlementReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil
	}
	s.receipts[settlementID] = &receipt
	return &receipt
}
