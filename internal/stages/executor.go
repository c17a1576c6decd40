// Package stages implements the pipeline stage executors. Each executor
// asserts its prerequisites, shapes a stage-local transaction, invokes
// workers through the supervisor and converts faults into typed stage
// results. Raw worker errors never cross the stage boundary.
package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
)

// Deps carries the collaborators shared by all executors.
type Deps struct {
	Supervisor contracts.Supervisor
	Registry   contracts.Registry
	Arbiter    contracts.Arbiter
	Consensus  config.ConsensusConfig
	Policy     contracts.SelectionPolicy
	Timeout    time.Duration
	Logger     *zap.Logger

	// Optional marks stages whose failure is recorded but non-terminal.
	// A failed optional prerequisite does not block its dependents.
	Optional map[contracts.StageID]bool
}

type executor struct {
	stage      contracts.StageID
	requires   []contracts.StageID
	capability contracts.Capability
	deps       Deps
	log        *zap.Logger
}

// newExecutor builds one stage executor over the shared dependencies.
func newExecutor(stage contracts.StageID, requires []contracts.StageID, capability contracts.Capability, deps Deps) *executor {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &executor{
		stage:      stage,
		requires:   requires,
		capability: capability,
		deps:       deps,
		log:        log.With(zap.String("stage", string(stage))),
	}
}

func (e *executor) StageID() contracts.StageID { return e.stage }

func (e *executor) Requires() []contracts.StageID {
	out := make([]contracts.StageID, len(e.requires))
	copy(out, e.requires)
	return out
}

func (e *executor) Capability() contracts.Capability { return e.capability }

// Execute runs the stage. Cancellation of the workflow context is the
// only condition reported as an error; every other fault becomes a
// typed failed result.
func (e *executor) Execute(ctx context.Context, wf *contracts.WorkflowContext) (*contracts.StageResult, error) {
	start := time.Now()

	if missing := e.unmetPrereq(wf); missing != "" {
		return &contracts.StageResult{
			OK:      false,
			StageID: e.stage,
			Kind:    contracts.KindPrerequisiteFailed,
			Message: missing,
			Elapsed: time.Since(start),
		}, nil
	}

	tx := &contracts.StageTransaction{
		WorkflowID: wf.ID,
		StageID:    e.stage,
		Intent:     wf.Intent,
		Prior:      snapshotResults(wf),
	}

	stageCtx, cancel := context.WithTimeout(ctx, e.deps.Timeout)
	defer cancel()

	result, err := e.invoke(stageCtx, tx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("stage %s: %w", e.stage, contracts.ErrCancelled)
		}
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return &contracts.StageResult{
				OK:      false,
				StageID: e.stage,
				Kind:    contracts.KindStageTimeout,
				Message: fmt.Sprintf("stage budget %s exceeded", e.deps.Timeout),
				Elapsed: time.Since(start),
			}, nil
		}
		return &contracts.StageResult{
			OK:      false,
			StageID: e.stage,
			Kind:    contracts.KindOf(err),
			Message: err.Error(),
			Elapsed: time.Since(start),
		}, nil
	}

	result.StageID = e.stage
	if result.Elapsed == 0 {
		result.Elapsed = time.Since(start)
	}
	return result, nil
}

// unmetPrereq reports the first missing or failed prerequisite. Failed
// optional prerequisites count as satisfied.
func (e *executor) unmetPrereq(wf *contracts.WorkflowContext) string {
	for _, req := range e.requires {
		r, ok := wf.Result(req)
		if !ok {
			return fmt.Sprintf("prerequisite %s not attempted", req)
		}
		if !r.OK && !e.deps.Optional[req] {
			return fmt.Sprintf("prerequisite %s failed", req)
		}
	}
	return ""
}

// snapshotResults gives the worker a read-only view of prior results.
func snapshotResults(wf *contracts.WorkflowContext) map[contracts.StageID]*contracts.StageResult {
	prior := make(map[contracts.StageID]*contracts.StageResult, len(wf.Results))
	for id, r := range wf.Results {
		prior[id] = r
	}
	return prior
}

// invoke runs the transaction, fanning out to multiple workers when the
// preset enables consensus and enough workers of the capability exist.
func (e *executor) invoke(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	if e.consensusEligible() {
		return e.invokeConsensus(ctx, tx)
	}
	return e.deps.Supervisor.Invoke(ctx, e.capability, e.deps.Policy, tx)
}

func (e *executor) consensusEligible() bool {
	if !e.deps.Consensus.Enabled || e.deps.Arbiter == nil || e.deps.Registry == nil {
		return false
	}
	return len(e.deps.Registry.ByCapability(e.capability)) >= e.deps.Consensus.MinAgents
}

// invokeConsensus fans the transaction out to up to MaxAgents workers in
// parallel and folds the verdicts through the arbiter. Errored
// invocations are excluded; if every invocation errors, the stage fails
// with an all-workers-failed kind.
func (e *executor) invokeConsensus(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	workers := e.deps.Registry.ByCapability(e.capability)
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID() < workers[j].ID() })
	if max := e.deps.Consensus.MaxAgents; max > 0 && len(workers) > max {
		workers = workers[:max]
	}

	type vote struct {
		idx    int
		result *contracts.StageResult
		err    error
	}
	votes := make([]vote, len(workers))

	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func(i int, w contracts.Worker) {
			defer wg.Done()
			r, err := e.deps.Supervisor.InvokeWorker(ctx, w, tx)
			votes[i] = vote{idx: i, result: r, err: err}
		}(i, w)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("consensus fan-out: %w", ctx.Err())
	}

	// Deterministic vote order: worker id, via the sorted fan-out.
	var results []*contracts.StageResult
	for _, v := range votes {
		if v.err != nil || v.result == nil {
			continue
		}
		results = append(results, v.result)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("stage %s: every consensus worker failed: %w",
			e.stage, contracts.ErrAllWorkersFailed)
	}

	outcome, err := e.deps.Arbiter.Combine(results)
	if err != nil {
		return nil, fmt.Errorf("stage %s consensus: %w", e.stage, err)
	}

	e.log.Debug("consensus combined",
		zap.Int("votes", outcome.Votes),
		zap.Bool("reached", outcome.Reached),
		zap.Float64("agreement", outcome.AgreementRatio),
		zap.String("rule", string(outcome.Rule)))

	return outcome.Result, nil
}
