package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/contracts"
)

// mmoAdapterMock scripts the adapter behind the mmo worker.
type mmoAdapterMock struct {
	initiate func(ctx context.Context, tx *contracts.MMOTransaction) (*contracts.MMOTransaction, error)
}

func (m *mmoAdapterMock) Initiate(ctx context.Context, tx *contracts.MMOTransaction) (*contracts.MMOTransaction, error) {
	return m.initiate(ctx, tx)
}
func (m *mmoAdapterMock) Status(context.Context, string) (*contracts.MMOTransaction, error) {
	return nil, nil
}
func (m *mmoAdapterMock) Balance(context.Context, string) (*contracts.Balance, error) {
	return nil, nil
}
func (m *mmoAdapterMock) SupportedCountries() []contracts.CountryCode { return nil }
func (m *mmoAdapterMock) Limits() contracts.ProviderLimits            { return contracts.ProviderLimits{} }

// settlementAdapterMock scripts the adapter behind the settlement worker.
type settlementAdapterMock struct {
	settle func(ctx context.Context, req *contracts.SettlementRequest) (*contracts.SettlementReceipt, error)
}

func (m *settlementAdapterMock) Settle(ctx context.Context, req *contracts.SettlementRequest) (*contracts.SettlementReceipt, error) {
	return m.settle(ctx, req)
}
func (m *settlementAdapterMock) BatchSettle(context.Context, []*contracts.SettlementRequest) (*contracts.BatchReceipt, error) {
	return nil, nil
}
func (m *settlementAdapterMock) Status(context.Context, string) (contracts.TransactionStatus, error) {
	return "", nil
}
func (m *settlementAdapterMock) Balance(context.Context, string) (*contracts.Balance, error) {
	return nil, nil
}

func TestMMOWorkerBuildsTransactionFromIntent(t *testing.T) {
	var seen *contracts.MMOTransaction
	adapter := &mmoAdapterMock{
		initiate: func(_ context.Context, tx *contracts.MMOTransaction) (*contracts.MMOTransaction, error) {
			seen = tx
			out := *tx
			out.Provider = "mpesa"
			out.ProviderTxID = "mpesa-123"
			out.Status = contracts.TxSubmitted
			return &out, nil
		},
	}
	w := NewMMOWorker("mmo-1", adapter, 4, nil)

	tx := stageTx(contracts.StageExecuteMMO, validIntent())
	tx.Prior[contracts.StageOptimizeRoute] = &contracts.StageResult{
		OK:      true,
		StageID: contracts.StageOptimizeRoute,
		Payload: &contracts.RoutePayload{Selected: &contracts.Route{
			ID: "direct:USD-KES:mpesa", EstimatedFee: decimal.NewFromInt(6),
		}},
	}

	res, err := w.Process(context.Background(), tx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// Delivery lands in the destination currency at the recipient.
	if seen.Reference != "ref-1" || seen.Currency != "KES" {
		t.Errorf("adapter saw %+v, want ref-1 in KES", seen)
	}
	if seen.Phone != "+254700000001" || seen.Country != "KE" {
		t.Errorf("adapter saw recipient %s/%s, want the intent's recipient", seen.Phone, seen.Country)
	}

	payload := res.Payload.(*contracts.MMOPayload)
	if payload.ProviderTxID != "mpesa-123" || payload.Provider != "mpesa" {
		t.Errorf("payload = %+v, want provider attribution", payload)
	}
	if !payload.Fee.Equal(decimal.NewFromInt(6)) {
		t.Errorf("fee = %s, want the selected route's 6", payload.Fee)
	}
}

func TestMMOWorkerWithoutRouteStage(t *testing.T) {
	adapter := &mmoAdapterMock{
		initiate: func(_ context.Context, tx *contracts.MMOTransaction) (*contracts.MMOTransaction, error) {
			out := *tx
			out.ProviderTxID = "x-1"
			return &out, nil
		},
	}
	w := NewMMOWorker("mmo-1", adapter, 4, nil)

	res, err := w.Process(context.Background(), stageTx(contracts.StageExecuteMMO, validIntent()))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Payload.(*contracts.MMOPayload).Fee.IsZero() {
		t.Error("fee must stay zero when no route stage ran")
	}
}

func TestMMOWorkerAdapterErrorPropagates(t *testing.T) {
	adapter := &mmoAdapterMock{
		initiate: func(context.Context, *contracts.MMOTransaction) (*contracts.MMOTransaction, error) {
			return nil, contracts.ErrAdapterTransient
		},
	}
	w := NewMMOWorker("mmo-1", adapter, 4, nil)

	_, err := w.Process(context.Background(), stageTx(contracts.StageExecuteMMO, validIntent()))
	if !errors.Is(err, contracts.ErrAdapterTransient) {
		t.Errorf("got %v, want the adapter's transient error", err)
	}
}

func TestSettlementWorkerUsesReferenceAsSettlementID(t *testing.T) {
	var seen *contracts.SettlementRequest
	adapter := &settlementAdapterMock{
		settle: func(_ context.Context, req *contracts.SettlementRequest) (*contracts.SettlementReceipt, error) {
			seen = req
			return &contracts.SettlementReceipt{
				SettlementID: req.SettlementID,
				TxHash:       "0xabc",
				Status:       contracts.TxConfirmed,
				Fee:          decimal.NewFromFloat(0.05),
			}, nil
		},
	}
	w := NewSettlementWorker("settle-1", adapter, "0xremitstream", 4, nil)

	res, err := w.Process(context.Background(), stageTx(contracts.StageSettlePayment, validIntent()))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if seen.SettlementID != "ref-1" || seen.Address != "0xremitstream" {
		t.Errorf("request = %+v, want the reference id and chain address", seen)
	}

	payload := res.Payload.(*contracts.SettlementPayload)
	if payload.TxHash != "0xabc" || !payload.Fee.Equal(decimal.NewFromFloat(0.05)) {
		t.Errorf("payload = %+v, want receipt fields", payload)
	}
}

func TestSettlementWorkerNilReceipt(t *testing.T) {
	adapter := &settlementAdapterMock{
		settle: func(context.Context, *contracts.SettlementRequest) (*contracts.SettlementReceipt, error) {
			return nil, nil
		},
	}
	w := NewSettlementWorker("settle-1", adapter, "0xremitstream", 4, nil)

	_, err := w.Process(context.Background(), stageTx(contracts.StageSettlePayment, validIntent()))
	if !errors.Is(err, contracts.ErrInternal) {
		t.Errorf("got %v, want ErrInternal", err)
	}
}
