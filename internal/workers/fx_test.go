package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/contracts"
)

func TestExchangeRateLockReusedWithinWindow(t *testing.T) {
	w := NewExchangeRateWorker("fx-1", 4, time.Minute, nil)
	w.SetRate(contracts.Corridor{From: "USD", To: "KES"}, decimal.NewFromFloat(129.45))
	ctx := context.Background()

	first, err := w.Process(ctx, stageTx(contracts.StageLockExchangeRate, validIntent()))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	lock := first.Payload.(*contracts.RatePayload)
	if !lock.Rate.Equal(decimal.NewFromFloat(129.45)) {
		t.Errorf("rate = %s, want 129.45", lock.Rate)
	}
	if !lock.ExpiresAt.After(lock.LockedAt) {
		t.Error("lock must expire after it was taken")
	}

	// A concurrent run in the same corridor sees the identical lock.
	second, err := w.Process(ctx, stageTx(contracts.StageLockExchangeRate, validIntent()))
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if second.Payload.(*contracts.RatePayload) != lock {
		t.Error("lock within the window must be shared")
	}
}

func TestExchangeRateLockExpires(t *testing.T) {
	w := NewExchangeRateWorker("fx-1", 4, 10*time.Millisecond, nil)
	w.SetRate(contracts.Corridor{From: "USD", To: "KES"}, decimal.NewFromFloat(129.45))
	ctx := context.Background()

	first, err := w.Process(ctx, stageTx(contracts.StageLockExchangeRate, validIntent()))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	second, err := w.Process(ctx, stageTx(contracts.StageLockExchangeRate, validIntent()))
	if err != nil {
		t.Fatalf("process after expiry: %v", err)
	}
	if second.Payload.(*contracts.RatePayload) == first.Payload.(*contracts.RatePayload) {
		t.Error("an expired lock must be replaced")
	}
}

func TestExchangeRateUnquotedCorridorIsPermanent(t *testing.T) {
	w := NewExchangeRateWorker("fx-1", 4, time.Minute, nil)

	_, err := w.Process(context.Background(), stageTx(contracts.StageLockExchangeRate, validIntent()))
	if !errors.Is(err, contracts.ErrAdapterPermanent) {
		t.Fatalf("got %v, want ErrAdapterPermanent", err)
	}
}
