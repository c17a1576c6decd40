package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType classifies the kind of transfer requested.
type PaymentType string

const (
	PaymentRemittance PaymentType = "remittance"
	PaymentMerchant   PaymentType = "merchant"
	PaymentP2P        PaymentType = "p2p"
)

// PaymentMethod is a hint for the delivery rail.
type PaymentMethod string

const (
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodWallet       PaymentMethod = "wallet"
)

// Party describes one side of a payment.
type Party struct {
	Name    string      `json:"name"`
	Phone   string      `json:"phone"`
	Country CountryCode `json:"country"`
}

// Preferences carries optional caller priorities for route selection.
type Preferences struct {
	PriorityCost       bool            `json:"priority_cost"`
	PrioritySpeed      bool            `json:"priority_speed"`
	MaxDeliveryMinutes int             `json:"max_delivery_time,omitempty"`
	MaxFee             decimal.Decimal `json:"max_fees,omitempty"`
}

// PaymentIntent is the immutable input to a workflow run.
type PaymentIntent struct {
	ReferenceID   string          `json:"reference_id"`
	Amount        decimal.Decimal `json:"amount"`
	FromCurrency  CurrencyCode    `json:"from_currency"`
	ToCurrency    CurrencyCode    `json:"to_currency"`
	PaymentType   PaymentType     `json:"payment_type"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Sender        Party           `json:"sender"`
	Recipient     Party           `json:"recipient"`
	Preferences   *Preferences    `json:"preferences,omitempty"`
}

// Corridor returns the currency corridor of the intent.
func (p *PaymentIntent) Corridor() Corridor {
	return Corridor{From: p.FromCurrency, To: p.ToCurrency}
}

// StageResult is the outcome of a single stage attempt sequence.
// A stage absent from the context has not been attempted; a stage
// present with OK=false has exhausted its retries for the run.
type StageResult struct {
	OK         bool
	StageID    StageID
	WorkerID   WorkerID
	Message    string
	Payload    any
	Kind       ErrorKind
	Elapsed    time.Duration
	Attempts   int
	Confidence float64
}

// WorkflowContext is the per-run mutable state, owned exclusively by
// the orchestrator for that run.
type WorkflowContext struct {
	ID        WorkflowID
	Intent    *PaymentIntent
	Results   map[StageID]*StageResult
	StartedAt time.Time
	Current   StageID
	Terminal  bool
}

// Result returns the stage result if the stage has been attempted.
func (w *WorkflowContext) Result(id StageID) (*StageResult, bool) {
	r, ok := w.Results[id]
	return r, ok
}

// StageTransaction is the stage-local record handed to a worker:
// the intent plus a read-only view of prerequisite results.
type StageTransaction struct {
	WorkflowID WorkflowID
	StageID    StageID
	Intent     *PaymentIntent
	Prior      map[StageID]*StageResult
}

// PriorPayload returns the payload of a completed prerequisite stage.
func (t *StageTransaction) PriorPayload(id StageID) (any, bool) {
	r, ok := t.Prior[id]
	if !ok || !r.OK {
		return nil, false
	}
	return r.Payload, true
}

// WorkflowResult is the terminal output of a workflow run.
type WorkflowResult struct {
	OK                bool
	WorkflowID        WorkflowID
	PaymentID         string
	Status            WorkflowStatus
	Message           string
	Kind              ErrorKind
	FailedStage       StageID
	Elapsed           time.Duration
	StepResults       map[StageID]*StageResult
	TransactionHash   string
	EstimatedDelivery time.Duration
	FeesCharged       decimal.Decimal
	ExchangeRate      decimal.Decimal
}
