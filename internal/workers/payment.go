// Package workers provides the in-process reference workers behind the
// pipeline capabilities: payment service, liquidity, exchange rate, and
// the adapter-backed mobile-money and settlement workers.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// PaymentWorker implements the payment_service capability. It serves
// the create, validate and confirm stages off the same instance.
type PaymentWorker struct {
	id            contracts.WorkerID
	maxConcurrent int
	log           *zap.Logger
}

// NewPaymentWorker creates a payment-service worker.
func NewPaymentWorker(id string, maxConcurrent int, log *zap.Logger) *PaymentWorker {
	if maxConcurrent < 1 {
		maxConcurrent = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentWorker{id: contracts.WorkerID(id), maxConcurrent: maxConcurrent, log: log}
}

func (w *PaymentWorker) ID() contracts.WorkerID           { return w.id }
func (w *PaymentWorker) Capability() contracts.Capability { return contracts.CapPaymentService }
func (w *PaymentWorker) MaxConcurrent() int               { return w.maxConcurrent }

// Process dispatches on the stage being served.
func (w *PaymentWorker) Process(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("payment worker: %w", contracts.ErrCancelled)
	}
	switch tx.StageID {
	case contracts.StageCreatePayment:
		return w.create(tx)
	case contracts.StageValidatePayment:
		return w.validate(tx)
	case contracts.StageConfirmPayment:
		return w.confirm(tx)
	default:
		return nil, fmt.Errorf("payment worker: unsupported stage %s: %w", tx.StageID, contracts.ErrInternal)
	}
}

// create normalizes the intent into a payment record.
func (w *PaymentWorker) create(tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	record := &contracts.PaymentRecord{
		PaymentID:    "pay_" + uuid.NewString(),
		ReferenceID:  tx.Intent.ReferenceID,
		Amount:       tx.Intent.Amount,
		FromCurrency: tx.Intent.FromCurrency,
		ToCurrency:   tx.Intent.ToCurrency,
		Status:       contracts.TxPending,
		CreatedAt:    time.Now(),
	}
	return &contracts.StageResult{
		OK:      true,
		StageID: tx.StageID,
		Payload: record,
	}, nil
}

// validate applies the structural intent checks. A malformed intent is
// a failed stage result with a validation kind, never retried.
func (w *PaymentWorker) validate(tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	reason := validateIntent(tx.Intent)
	if reason != "" {
		return &contracts.StageResult{
			OK:      false,
			StageID: tx.StageID,
			Kind:    contracts.KindValidationFailed,
			Message: reason,
			Payload: &contracts.ValidationPayload{Valid: false, Reason: reason},
		}, nil
	}
	return &contracts.StageResult{
		OK:      true,
		StageID: tx.StageID,
		Payload: &contracts.ValidationPayload{Valid: true},
	}, nil
}

func validateIntent(intent *contracts.PaymentIntent) string {
	switch {
	case intent.ReferenceID == "":
		return "reference_id is required"
	case !intent.Amount.IsPositive():
		return "amount must be positive"
	case intent.FromCurrency == "" || intent.ToCurrency == "":
		return "both currencies are required"
	case intent.FromCurrency == intent.ToCurrency:
		return "source and destination currency must differ"
	case intent.Sender.Country == "" || intent.Recipient.Country == "":
		return "both party countries are required"
	case intent.Recipient.Phone == "":
		return "recipient phone is required for delivery"
	default:
		return ""
	}
}

// confirm closes the loop: the created record plus the settlement
// proof become the completed payment.
func (w *PaymentWorker) confirm(tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	raw, ok := tx.PriorPayload(contracts.StageCreatePayment)
	if !ok {
		return nil, fmt.Errorf("confirm: create_payment result missing: %w", contracts.ErrPrerequisiteFailed)
	}
	record, ok := raw.(*contracts.PaymentRecord)
	if !ok {
		return nil, fmt.Errorf("confirm: unexpected create_payment payload: %w", contracts.ErrInternal)
	}

	completed := *record
	completed.Status = contracts.TxConfirmed

	w.log.Info("payment confirmed",
		zap.String("payment_id", completed.PaymentID),
		zap.String("reference_id", completed.ReferenceID))

	return &contracts.StageResult{
		OK:      true,
		StageID: tx.StageID,
		Payload: &contracts.ConfirmPayload{Payment: &completed, ConfirmedAt: time.Now()},
	}, nil
}
