package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
)

func orchConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		StageTimeout:     config.Duration(time.Second),
		WorkflowTimeout:  config.Duration(5 * time.Second),
		MaxParallelSteps: 4,
		BreakerThreshold: 5,
		BreakerTimeout:   config.Duration(time.Minute),
	}
}

func orchIntent() *contracts.PaymentIntent {
	return &contracts.PaymentIntent{
		ReferenceID:  "ref-1",
		Amount:       decimal.NewFromInt(500),
		FromCurrency: "USD",
		ToCurrency:   "KES",
	}
}

func okExec(id contracts.StageID, payload any, requires ...contracts.StageID) *fakeExec {
	return &fakeExec{
		id: id, requires: requires,
		fn: func(context.Context, *contracts.WorkflowContext) (*contracts.StageResult, error) {
			return &contracts.StageResult{OK: true, StageID: id, Payload: payload}, nil
		},
	}
}

func failExec(id contracts.StageID, kind contracts.ErrorKind, requires ...contracts.StageID) *fakeExec {
	return &fakeExec{
		id: id, requires: requires,
		fn: func(context.Context, *contracts.WorkflowContext) (*contracts.StageResult, error) {
			return &contracts.StageResult{OK: false, StageID: id, Kind: kind, Message: string(kind)}, nil
		},
	}
}

func newOrch(t *testing.T, cfg config.OrchestratorConfig, optional map[contracts.StageID]bool, execs ...contracts.StageExecutor) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Name:      contracts.PresetStandard,
		Config:    cfg,
		Executors: execs,
		Optional:  optional,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestRunHappyPathLiftsReceiptFields(t *testing.T) {
	record := &contracts.PaymentRecord{PaymentID: "pay_1", ReferenceID: "ref-1"}
	route := &contracts.RoutePayload{Selected: &contracts.Route{
		ID:                "direct:USD-KES:mpesa",
		EstimatedFee:      decimal.NewFromInt(6),
		EstimatedDelivery: 5 * time.Minute,
	}}
	rate := &contracts.RatePayload{Rate: decimal.NewFromFloat(129.45)}
	settle := &contracts.SettlementPayload{TxHash: "0xabc", Fee: decimal.NewFromFloat(0.05)}

	o := newOrch(t, orchConfig(), nil,
		okExec(contracts.StageCreatePayment, record),
		okExec(contracts.StageOptimizeRoute, route, contracts.StageCreatePayment),
		okExec(contracts.StageLockExchangeRate, rate, contracts.StageOptimizeRoute),
		okExec(contracts.StageSettlePayment, settle, contracts.StageLockExchangeRate),
	)

	result, err := o.Run(context.Background(), orchIntent())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.OK || result.Status != contracts.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if result.PaymentID != "pay_1" {
		t.Errorf("payment id = %s, want pay_1", result.PaymentID)
	}
	if result.TransactionHash != "0xabc" {
		t.Errorf("tx hash = %s, want 0xabc", result.TransactionHash)
	}
	if !result.ExchangeRate.Equal(decimal.NewFromFloat(129.45)) {
		t.Errorf("rate = %s, want 129.45", result.ExchangeRate)
	}
	if !result.FeesCharged.Equal(decimal.NewFromFloat(6.05)) {
		t.Errorf("fees = %s, want route fee plus settlement fee", result.FeesCharged)
	}
	if result.EstimatedDelivery != 5*time.Minute {
		t.Errorf("delivery = %v, want 5m", result.EstimatedDelivery)
	}
	if len(result.StepResults) != 4 {
		t.Errorf("step results = %d, want 4", len(result.StepResults))
	}
}

func TestRunSiblingsFinishTheirBatch(t *testing.T) {
	// b fails while its batch sibling c succeeds; both results merge
	// before the run turns terminal.
	o := newOrch(t, orchConfig(), nil,
		okExec("a", nil),
		failExec("b", contracts.KindComplianceRejected, "a"),
		okExec("c", nil, "a"),
		okExec("d", nil, "b", "c"),
	)

	result, err := o.Run(context.Background(), orchIntent())
	if err == nil {
		t.Fatal("expected a failed run")
	}
	if !errors.Is(err, contracts.ErrComplianceRejected) {
		t.Errorf("err = %v, want to match ErrComplianceRejected", err)
	}
	if result.Status != contracts.StatusFailed || result.FailedStage != "b" {
		t.Errorf("result = %+v, want failure at b", result)
	}
	if _, ok := result.StepResults["c"]; !ok {
		t.Error("sibling c must finish and merge")
	}
	if _, ok := result.StepResults["d"]; ok {
		t.Error("dependent d must never start")
	}
}

func TestRunOptionalFailureIsNonTerminal(t *testing.T) {
	o := newOrch(t, orchConfig(), map[contracts.StageID]bool{"b": true},
		okExec("a", nil),
		failExec("b", contracts.KindAdapterPermanent, "a"),
		okExec("c", nil, "b"),
	)

	result, err := o.Run(context.Background(), orchIntent())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.OK {
		t.Fatalf("result = %+v, want success past the optional failure", result)
	}
	if r := result.StepResults["b"]; r == nil || r.OK {
		t.Error("the optional failure must still be recorded")
	}
}

func TestRunCancellation(t *testing.T) {
	started := make(chan struct{})
	blocking := &fakeExec{
		id: "a",
		fn: func(ctx context.Context, _ *contracts.WorkflowContext) (*contracts.StageResult, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := newOrch(t, orchConfig(), nil, blocking)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := o.Run(ctx, orchIntent())
	if !errors.Is(err, contracts.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if result.Status != contracts.StatusCancelled || result.Kind != contracts.KindCancelled {
		t.Errorf("result = %+v, want cancelled", result)
	}
}

func TestRunWorkflowTimeout(t *testing.T) {
	cfg := orchConfig()
	cfg.WorkflowTimeout = config.Duration(30 * time.Millisecond)
	blocking := &fakeExec{
		id: "a",
		fn: func(ctx context.Context, _ *contracts.WorkflowContext) (*contracts.StageResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := newOrch(t, cfg, nil, blocking)

	result, err := o.Run(context.Background(), orchIntent())
	if !errors.Is(err, contracts.ErrWorkflowTimeout) {
		t.Fatalf("err = %v, want ErrWorkflowTimeout", err)
	}
	if result.Status != contracts.StatusFailed || result.Kind != contracts.KindWorkflowTimeout {
		t.Errorf("result = %+v, want workflow_timeout", result)
	}
}

func TestRunBreakerOpensOnInfraFailures(t *testing.T) {
	cfg := orchConfig()
	cfg.BreakerThreshold = 2
	o := newOrch(t, cfg, nil, failExec("a", contracts.KindInternal))

	for i := 0; i < 2; i++ {
		if _, err := o.Run(context.Background(), orchIntent()); err == nil {
			t.Fatal("expected failure")
		}
	}

	result, err := o.Run(context.Background(), orchIntent())
	if !errors.Is(err, contracts.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if result.Kind != contracts.KindCircuitOpen {
		t.Errorf("kind = %s, want circuit_open", result.Kind)
	}
}

func TestRunBreakerIgnoresDomainVerdicts(t *testing.T) {
	cfg := orchConfig()
	cfg.BreakerThreshold = 2
	o := newOrch(t, cfg, nil, failExec("a", contracts.KindComplianceRejected))

	// Domain rejections are healthy outcomes and never open the circuit.
	for i := 0; i < 5; i++ {
		_, err := o.Run(context.Background(), orchIntent())
		if errors.Is(err, contracts.ErrCircuitOpen) {
			t.Fatalf("run %d rejected by the breaker", i)
		}
	}
}

func TestRunRecordsToSink(t *testing.T) {
	sink := &countingSink{}
	o, err := New(Options{
		Name:   contracts.PresetStandard,
		Config: orchConfig(),
		Executors: []contracts.StageExecutor{
			okExec("a", nil), okExec("b", nil, "a"),
		},
		Sink: sink,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := o.Run(context.Background(), orchIntent()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := sink.stageCount(); n != 2 {
		t.Errorf("recorded %d stages, want 2", n)
	}
	if n := sink.workflowCount(); n != 1 {
		t.Errorf("recorded %d workflows, want 1", n)
	}
}

// countingSink counts recordings for orchestrator tests.
type countingSink struct {
	mu        sync.Mutex
	stages    int
	workflows int
}

func (s *countingSink) RecordStage(contracts.StageID, bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages++
}

func (s *countingSink) RecordWorker(contracts.WorkerID, contracts.Capability, string, time.Duration) {}

func (s *countingSink) RecordWorkflow(contracts.WorkflowStatus, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows++
}

func (s *countingSink) Alert(string, string) {}

func (s *countingSink) stageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stages
}

func (s *countingSink) workflowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workflows
}
