package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
)

// Options configures one orchestrator instance.
type Options struct {
	Name      contracts.PresetName
	Config    config.OrchestratorConfig
	Executors []contracts.StageExecutor
	Optional  map[contracts.StageID]bool
	Sink      contracts.Sink
	Logger    *zap.Logger
}

// Orchestrator drives payment intents through the stage DAG with
// batched execution: parallel stage I/O within a batch, sequential
// deterministic merge sorted by stage id.
type Orchestrator struct {
	name      contracts.PresetName
	cfg       config.OrchestratorConfig
	executors map[contracts.StageID]contracts.StageExecutor
	optional  map[contracts.StageID]bool
	breaker   *runBreaker
	sink      contracts.Sink
	log       *zap.Logger
}

// New creates an orchestrator over the given executors. The stage graph
// is validated here so a bad preset fails at build time, not per run.
func New(opts Options) (*Orchestrator, error) {
	if len(opts.Executors) == 0 {
		return nil, fmt.Errorf("orchestrator %s: no stages: %w", opts.Name, contracts.ErrInternal)
	}
	if _, err := buildDAG(opts.Executors); err != nil {
		return nil, fmt.Errorf("orchestrator %s: %w", opts.Name, err)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	executors := make(map[contracts.StageID]contracts.StageExecutor, len(opts.Executors))
	for _, ex := range opts.Executors {
		executors[ex.StageID()] = ex
	}
	optional := opts.Optional
	if optional == nil {
		optional = map[contracts.StageID]bool{}
	}
	return &Orchestrator{
		name:      opts.Name,
		cfg:       opts.Config,
		executors: executors,
		optional:  optional,
		breaker:   newRunBreaker(opts.Config.BreakerThreshold, opts.Config.BreakerTimeout.Std()),
		sink:      opts.Sink,
		log:       log.With(zap.String("preset", string(opts.Name))),
	}, nil
}

// batchOutcome is one stage's outcome inside a batch.
type batchOutcome struct {
	stage  contracts.StageID
	result *contracts.StageResult
	err    error
}

// Run executes the pipeline for the intent. Always returns a non-nil
// result; the error mirrors result.Kind for errors.Is matching.
func (o *Orchestrator) Run(ctx context.Context, intent *contracts.PaymentIntent) (*contracts.WorkflowResult, error) {
	start := time.Now()
	wf := &contracts.WorkflowContext{
		ID:        contracts.WorkflowID(uuid.NewString()),
		Intent:    intent,
		Results:   make(map[contracts.StageID]*contracts.StageResult),
		StartedAt: start,
	}
	log := o.log.With(
		zap.String("workflow_id", string(wf.ID)),
		zap.String("reference_id", intent.ReferenceID))

	if !o.breaker.allow() {
		result := o.terminal(wf, contracts.StatusFailed, contracts.KindCircuitOpen,
			"orchestrator circuit open", "", start)
		return result, fmt.Errorf("run %s: %w", wf.ID, contracts.ErrCircuitOpen)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.WorkflowTimeout.Std())
	defer cancel()

	d, err := buildDAG(sortedExecutors(o.executors))
	if err != nil {
		o.breaker.record(false)
		result := o.terminal(wf, contracts.StatusFailed, contracts.KindInternal, err.Error(), "", start)
		return result, fmt.Errorf("run %s: %w", wf.ID, err)
	}

	log.Info("workflow started", zap.Int("stages", len(o.executors)))

	result := o.loop(ctx, runCtx, d, wf, start, log)
	o.breaker.record(!infraFailure(result.Kind))
	if o.sink != nil {
		o.sink.RecordWorkflow(result.Status, result.Elapsed)
	}
	log.Info("workflow finished",
		zap.String("status", string(result.Status)),
		zap.String("kind", string(result.Kind)),
		zap.Duration("elapsed", result.Elapsed))

	if !result.OK {
		return result, fmt.Errorf("run %s stage %s: %s: %w",
			wf.ID, result.FailedStage, result.Message, result.Kind.Err())
	}
	return result, nil
}

// loop is the batched execution loop.
func (o *Orchestrator) loop(parent, runCtx context.Context, d *dag, wf *contracts.WorkflowContext, start time.Time, log *zap.Logger) *contracts.WorkflowResult {
	for {
		if err := runCtx.Err(); err != nil {
			return o.expired(parent, wf, start)
		}

		ready := d.ready()
		if len(ready) == 0 {
			if d.allDone() {
				return o.completed(wf, start)
			}
			// Blocked graph without a recorded failure is a scheduling bug.
			return o.terminal(wf, contracts.StatusFailed, contracts.KindInternal,
				"stage graph deadlocked", "", start)
		}
		if max := o.cfg.MaxParallelSteps; max > 0 && len(ready) > max {
			ready = ready[:max]
		}

		outcomes := o.executeBatch(runCtx, d, wf, ready)

		// Deterministic merge: sorted by stage id, sequential.
		sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].stage < outcomes[j].stage })

		var failed *contracts.StageResult
		for _, out := range outcomes {
			if out.err != nil {
				return o.expired(parent, wf, start)
			}
			wf.Results[out.stage] = out.result
			wf.Current = out.stage
			d.markComplete(out.stage)
			if o.sink != nil {
				o.sink.RecordStage(out.stage, out.result.OK, out.result.Elapsed)
			}
			if !out.result.OK {
				if o.optional[out.stage] {
					log.Warn("optional stage failed",
						zap.String("stage", string(out.stage)),
						zap.String("kind", string(out.result.Kind)))
					continue
				}
				if failed == nil {
					failed = out.result
				}
			}
		}
		// A required failure becomes terminal only after its whole
		// batch has merged; siblings are never cancelled mid-batch.
		if failed != nil {
			return o.terminal(wf, contracts.StatusFailed, failed.Kind, failed.Message, failed.StageID, start)
		}
	}
}

// executeBatch runs the batch stages in parallel. Each goroutine writes
// a distinct slice slot; the workflow context is not mutated here.
func (o *Orchestrator) executeBatch(ctx context.Context, d *dag, wf *contracts.WorkflowContext, ready []contracts.StageID) []batchOutcome {
	outcomes := make([]batchOutcome, len(ready))
	var wg sync.WaitGroup
	for i, id := range ready {
		d.markStarted(id)
		wg.Add(1)
		go func(idx int, stage contracts.StageID) {
			defer wg.Done()
			result, err := o.executors[stage].Execute(ctx, wf)
			if err == nil && result == nil {
				err = fmt.Errorf("stage %s returned no result: %w", stage, contracts.ErrInternal)
			}
			outcomes[idx] = batchOutcome{stage: stage, result: result, err: err}
		}(i, id)
	}
	wg.Wait()
	return outcomes
}

// expired shapes the terminal result when the run context ended:
// caller cancellation or the global workflow budget.
func (o *Orchestrator) expired(parent context.Context, wf *contracts.WorkflowContext, start time.Time) *contracts.WorkflowResult {
	if errors.Is(parent.Err(), context.Canceled) {
		return o.terminal(wf, contracts.StatusCancelled, contracts.KindCancelled,
			"workflow cancelled by caller", wf.Current, start)
	}
	return o.terminal(wf, contracts.StatusFailed, contracts.KindWorkflowTimeout,
		fmt.Sprintf("workflow budget %s exceeded", o.cfg.WorkflowTimeout.Std()), wf.Current, start)
}

// completed shapes the successful terminal result, lifting receipt data
// out of the stage payloads.
func (o *Orchestrator) completed(wf *contracts.WorkflowContext, start time.Time) *contracts.WorkflowResult {
	result := o.terminal(wf, contracts.StatusCompleted, contracts.KindNone, "payment completed", "", start)
	result.OK = true
	return result
}

// terminal assembles a workflow result with partial stage results
// preserved and receipt fields extracted from whatever stages ran.
func (o *Orchestrator) terminal(wf *contracts.WorkflowContext, status contracts.WorkflowStatus, kind contracts.ErrorKind, message string, failedStage contracts.StageID, start time.Time) *contracts.WorkflowResult {
	wf.Terminal = true
	result := &contracts.WorkflowResult{
		WorkflowID:  wf.ID,
		Status:      status,
		Kind:        kind,
		Message:     message,
		FailedStage: failedStage,
		Elapsed:     time.Since(start),
		StepResults: wf.Results,
	}

	if raw, ok := payloadOf(wf, contracts.StageCreatePayment); ok {
		if record, ok := raw.(*contracts.PaymentRecord); ok {
			result.PaymentID = record.PaymentID
		}
	}
	if raw, ok := payloadOf(wf, contracts.StageOptimizeRoute); ok {
		if rp, ok := raw.(*contracts.RoutePayload); ok && rp.Selected != nil {
			result.EstimatedDelivery = rp.Selected.EstimatedDelivery
			result.FeesCharged = result.FeesCharged.Add(rp.Selected.EstimatedFee)
		}
	}
	if raw, ok := payloadOf(wf, contracts.StageLockExchangeRate); ok {
		if rate, ok := raw.(*contracts.RatePayload); ok {
			result.ExchangeRate = rate.Rate
		}
	}
	if raw, ok := payloadOf(wf, contracts.StageSettlePayment); ok {
		if sp, ok := raw.(*contracts.SettlementPayload); ok {
			result.TransactionHash = sp.TxHash
			result.FeesCharged = result.FeesCharged.Add(sp.Fee)
		}
	}
	return result
}

func payloadOf(wf *contracts.WorkflowContext, id contracts.StageID) (any, bool) {
	r, ok := wf.Result(id)
	if !ok || !r.OK {
		return nil, false
	}
	return r.Payload, true
}

// infraFailure reports whether the kind counts against the
// orchestrator breaker. Domain verdicts are healthy rejections and do
// not open the circuit.
func infraFailure(kind contracts.ErrorKind) bool {
	switch kind {
	case contracts.KindStageTimeout, contracts.KindWorkflowTimeout,
		contracts.KindAllWorkersFailed, contracts.KindInternal,
		contracts.KindAdapterTransient, contracts.KindAdapterPermanent,
		contracts.KindBusy:
		return true
	default:
		return false
	}
}

func sortedExecutors(m map[contracts.StageID]contracts.StageExecutor) []contracts.StageExecutor {
	out := make([]contracts.StageExecutor, 0, len(m))
	for _, ex := range m {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageID() < out[j].StageID() })
	return out
}

// runBreaker is the orchestrator-level circuit breaker. Same state
// machine as the per-worker breaker: closed, open, half-open probe.
type runBreaker struct {
	mu        sync.Mutex
	open      bool
	halfOpen  bool
	failures  int
	openedAt  time.Time
	threshold int
	timeout   time.Duration
	now       func() time.Time
}

func newRunBreaker(threshold int, timeout time.Duration) *runBreaker {
	return &runBreaker{threshold: threshold, timeout: timeout, now: time.Now}
}

func (b *runBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.timeout {
		b.open = false
		b.halfOpen = true
		return true
	}
	return false
}

func (b *runBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.failures = 0
		b.halfOpen = false
		return
	}
	b.failures++
	if b.halfOpen || b.failures >= b.threshold {
		b.open = true
		b.halfOpen = false
		b.openedAt = b.now()
	}
}
