// Package contracts defines the core types and interfaces for the payment
// orchestration core.
package contracts

// WorkflowID uniquely identifies a workflow run.
type WorkflowID string

// StageID identifies a stage within the pipeline.
type StageID string

// WorkerID uniquely identifies a worker instance.
type WorkerID string

// Capability is a named contract a worker satisfies (e.g., "compliance").
type Capability string

// CurrencyCode is an ISO 4217 currency code (e.g., "USD").
type CurrencyCode string

// CountryCode is an ISO 3166-1 alpha-2 country code (e.g., "KE").
type CountryCode string

// PresetName identifies a pipeline preset in the workflow factory.
type PresetName string

// Corridor is a (source currency, destination currency) pair.
type Corridor struct {
	From CurrencyCode
	To   CurrencyCode
}

// Canonical capabilities consumed by the pipeline stages.
const (
	CapPaymentService    Capability = "payment_service"
	CapRouteOptimization Capability = "route_optimization"
	CapCompliance        Capability = "compliance"
	CapLiquidity         Capability = "liquidity"
	CapExchangeRate      Capability = "exchange_rate"
	CapMMOService        Capability = "mmo_service"
	CapSettlement        Capability = "settlement"
)

// Canonical pipeline stage IDs, in dependency order.
const (
	StageCreatePayment      StageID = "create_payment"
	StageValidatePayment    StageID = "validate_payment"
	StageOptimizeRoute      StageID = "optimize_route"
	StageValidateCompliance StageID = "validate_compliance"
	StageCheckLiquidity     StageID = "check_liquidity"
	StageLockExchangeRate   StageID = "lock_exchange_rate"
	StageExecuteMMO         StageID = "execute_mmo"
	StageSettlePayment      StageID = "settle_payment"
	StageConfirmPayment     StageID = "confirm_payment"
)

// Built-in presets held by the workflow factory.
const (
	PresetStandard           PresetName = "standard"
	PresetFastTrack          PresetName = "fast_track"
	PresetHighValue          PresetName = "high_value"
	PresetComplianceHeavy    PresetName = "compliance_heavy"
	PresetLiquidityOptimized PresetName = "liquidity_optimized"
)
