package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage payloads. Each stage stores exactly one of these in its
// StageResult.Payload; downstream executors assert the concrete type.

// PaymentRecord is the normalized payment produced by create_payment
// and completed by confirm_payment.
type PaymentRecord struct {
	PaymentID    string
	ReferenceID  string
	Amount       decimal.Decimal
	FromCurrency CurrencyCode
	ToCurrency   CurrencyCode
	Status       TransactionStatus
	CreatedAt    time.Time
}

// ValidationPayload is produced by validate_payment.
type ValidationPayload struct {
	Valid  bool
	Reason string
}

// RoutePayload is produced by optimize_route.
type RoutePayload struct {
	Optimization *OptimizationResult
	Selected     *Route
}

// CompliancePayload is produced by validate_compliance.
type CompliancePayload struct {
	Result *ComplianceResult
}

// LiquidityPayload is produced by check_liquidity.
type LiquidityPayload struct {
	Available bool
	Pool      decimal.Decimal
	Currency  CurrencyCode
}

// RatePayload is produced by lock_exchange_rate.
type RatePayload struct {
	Rate      decimal.Decimal
	LockedAt  time.Time
	ExpiresAt time.Time
}

// MMOPayload is produced by execute_mmo.
type MMOPayload struct {
	ProviderTxID string
	Provider     string
	Fee          decimal.Decimal
}

// SettlementPayload is produced by settle_payment.
type SettlementPayload struct {
	SettlementID string
	TxHash       string
	Fee          decimal.Decimal
}

// ConfirmPayload is produced by confirm_payment.
type ConfirmPayload struct {
	Payment     *PaymentRecord
	ConfirmedAt time.Time
}
