package contracts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MMOTransaction is a mobile-money transaction as seen by an adapter.
type MMOTransaction struct {
	Reference    string // stable idempotency key
	Amount       decimal.Decimal
	Currency     CurrencyCode
	Phone        string
	Country      CountryCode
	Provider     string
	ProviderTxID string
	Status       TransactionStatus
	UpdatedAt    time.Time
}

// Balance is an account balance held with an adapter.
type Balance struct {
	Subject   string
	Available decimal.Decimal
	Currency  CurrencyCode
}

// ProviderLimits bounds a mobile-money provider.
type ProviderLimits struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	PerMinute int
	PerHour   int
}

// MMOAdapter is the contract a mobile-money provider plug-in must
// satisfy. Initiate must be idempotent keyed by the transaction
// reference: repeated calls with the same reference return the same
// provider transaction.
type MMOAdapter interface {
	Initiate(ctx context.Context, tx *MMOTransaction) (*MMOTransaction, error)
	Status(ctx context.Context, reference string) (*MMOTransaction, error)
	Balance(ctx context.Context, subject string) (*Balance, error)
	SupportedCountries() []CountryCode
	Limits() ProviderLimits
}

// SettlementRequest asks the settlement chain to move funds.
type SettlementRequest struct {
	SettlementID string // exactly-once key
	Reference    string
	Amount       decimal.Decimal
	Currency     CurrencyCode
	Address      string
}

// SettlementReceipt is the durable proof of one settlement.
type SettlementReceipt struct {
	SettlementID string
	TxHash       string
	Status       TransactionStatus
	Fee          decimal.Decimal
	SettledAt    time.Time
}

// BatchReceipt covers a batch settlement.
type BatchReceipt struct {
	BatchID  string
	Receipts []*SettlementReceipt
}

// SettlementAdapter is the contract a settlement-chain plug-in must
// satisfy. Settle and BatchSettle are exactly-once per SettlementID:
// repeated calls with the same id return the original receipt.
type SettlementAdapter interface {
	Settle(ctx context.Context, req *SettlementRequest) (*SettlementReceipt, error)
	BatchSettle(ctx context.Context, reqs []*SettlementRequest) (*BatchReceipt, error)
	Status(ctx context.Context, settlementID string) (TransactionStatus, error)
	Balance(ctx context.Context, address string) (*Balance, error)
}
