package stages

import (
	"errors"
	"testing"

	"github.com/remitstream/remitcore/contracts"
)

func TestBuildFullPipeline(t *testing.T) {
	execs, err := Build(Deps{}, CanonicalOrder)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(execs) != len(CanonicalOrder) {
		t.Fatalf("built %d executors, want %d", len(execs), len(CanonicalOrder))
	}

	byID := make(map[contracts.StageID]contracts.StageExecutor)
	for _, e := range execs {
		byID[e.StageID()] = e
	}

	// Spot-check the canonical chain.
	if got := byID[contracts.StageCreatePayment].Requires(); len(got) != 0 {
		t.Errorf("create_payment requires %v, want none", got)
	}
	if got := byID[contracts.StageSettlePayment].Requires(); len(got) != 1 || got[0] != contracts.StageExecuteMMO {
		t.Errorf("settle_payment requires %v, want execute_mmo", got)
	}
	if capability := byID[contracts.StageCheckLiquidity].Capability(); capability != contracts.CapLiquidity {
		t.Errorf("check_liquidity capability = %s, want liquidity", capability)
	}
}

func TestBuildRewiresSkippedStages(t *testing.T) {
	// Skipping compliance must hand its prerequisite to check_liquidity.
	ids := []contracts.StageID{
		contracts.StageCreatePayment,
		contracts.StageValidatePayment,
		contracts.StageOptimizeRoute,
		contracts.StageCheckLiquidity,
		contracts.StageLockExchangeRate,
		contracts.StageExecuteMMO,
		contracts.StageSettlePayment,
		contracts.StageConfirmPayment,
	}
	execs, err := Build(Deps{}, ids)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, e := range execs {
		if e.StageID() != contracts.StageCheckLiquidity {
			continue
		}
		reqs := e.Requires()
		if len(reqs) != 1 || reqs[0] != contracts.StageOptimizeRoute {
			t.Fatalf("check_liquidity requires %v, want optimize_route after the skip", reqs)
		}
	}
}

func TestBuildRewiresTransitively(t *testing.T) {
	// Dropping both route and compliance pushes liquidity's prerequisite
	// back to validate_payment.
	ids := []contracts.StageID{
		contracts.StageCreatePayment,
		contracts.StageValidatePayment,
		contracts.StageCheckLiquidity,
	}
	execs, err := Build(Deps{}, ids)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, e := range execs {
		if e.StageID() != contracts.StageCheckLiquidity {
			continue
		}
		reqs := e.Requires()
		if len(reqs) != 1 || reqs[0] != contracts.StageValidatePayment {
			t.Fatalf("check_liquidity requires %v, want validate_payment", reqs)
		}
	}
}

func TestBuildUnknownStage(t *testing.T) {
	_, err := Build(Deps{}, []contracts.StageID{"refund_payment"})
	if !errors.Is(err, contracts.ErrInternal) {
		t.Errorf("got %v, want ErrInternal for an unknown stage", err)
	}
}

func TestCapabilityOf(t *testing.T) {
	if capability, ok := CapabilityOf(contracts.StageExecuteMMO); !ok || capability != contracts.CapMMOService {
		t.Errorf("CapabilityOf(execute_mmo) = %s, %v", capability, ok)
	}
	if _, ok := CapabilityOf("refund_payment"); ok {
		t.Error("unknown stage must not resolve")
	}
}
