// Package core wires the orchestration components into a single handle:
// registry, supervisor, factory, sink and the run store. Embedders
// construct one Core at startup and thread it through their surface.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
	"github.com/remitstream/remitcore/internal/registry"
	"github.com/remitstream/remitcore/internal/routing"
	"github.com/remitstream/remitcore/internal/supervisor"
	"github.com/remitstream/remitcore/internal/workflow"
)

// Options carries the optional collaborators of a Core.
type Options struct {
	Logger *zap.Logger
	Sink   contracts.Sink

	// Redis backs the route candidate cache when config enables it.
	// Nil with caching enabled dials config.Cache.Addr.
	Redis *redis.Client
}

// Core is the process-wide orchestration handle.
type Core struct {
	cfg     config.CoreConfig
	log     *zap.Logger
	sink    contracts.Sink
	reg     contracts.Registry
	sup     *supervisor.Supervisor
	factory *workflow.Factory
	cache   routing.CandidateCache
	runs    *runStore

	sem      chan struct{}
	draining chan struct{}
}

// New validates the configuration and assembles a Core. Workers are
// registered afterwards through Registry(); Submit fails for presets
// whose capabilities have no workers yet.
func New(cfg config.CoreConfig, opts Options) (*Core, error) {
	if err := config.NewValidator().Validate(&cfg); err != nil {
		return nil, fmt.Errorf("core config: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	reg := registry.New(log)
	sup := supervisor.New(supervisor.Config{
		RetryAttempts:    cfg.Supervisor.RetryAttempts,
		RetryDelay:       cfg.Supervisor.RetryDelay.Std(),
		BreakerThreshold: cfg.Supervisor.BreakerThreshold,
		BreakerTimeout:   cfg.Supervisor.BreakerTimeout.Std(),
		SlotWaitTimeout:  cfg.Supervisor.SlotWaitTimeout.Std(),
		HealthAlpha:      cfg.Supervisor.HealthAlpha,
	}, reg, opts.Sink, log)

	var cache routing.CandidateCache = routing.NopCache{}
	if cfg.Cache.Enabled {
		client := opts.Redis
		if client == nil {
			client = redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		}
		cache = routing.NewRedisCache(client, cfg.Cache.TTL.Std(), log)
	}

	factory := workflow.NewFactory(cfg, workflow.FactoryDeps{
		Registry:   reg,
		Supervisor: sup,
		Sink:       opts.Sink,
		Logger:     log,
	})

	maxRuns := cfg.Orchestrator.MaxConcurrentWorkflows
	if maxRuns < 1 {
		maxRuns = 1
	}

	return &Core{
		cfg:      cfg,
		log:      log.Named("core"),
		sink:     opts.Sink,
		reg:      reg,
		sup:      sup,
		factory:  factory,
		cache:    cache,
		runs:     newRunStore(),
		sem:      make(chan struct{}, maxRuns),
		draining: make(chan struct{}),
	}, nil
}

// Registry returns the worker registry for capability registration.
func (c *Core) Registry() contracts.Registry { return c.reg }

// Supervisor returns the worker supervisor.
func (c *Core) Supervisor() contracts.Supervisor { return c.sup }

// Factory returns the workflow factory.
func (c *Core) Factory() *workflow.Factory { return c.factory }

// RouteCache returns the route candidate cache configured for this core.
func (c *Core) RouteCache() routing.CandidateCache { return c.cache }

// Submit routes the intent to a preset and runs the workflow to its
// terminal result. Concurrent submissions are bounded by
// max_concurrent_workflows; waiting for admission respects ctx.
func (c *Core) Submit(ctx context.Context, intent *contracts.PaymentIntent) (*contracts.WorkflowResult, error) {
	if intent == nil || intent.ReferenceID == "" {
		return nil, fmt.Errorf("submit: missing reference id: %w", contracts.ErrValidationFailed)
	}
	select {
	case <-c.draining:
		return nil, fmt.Errorf("submit %s: core is draining: %w", intent.ReferenceID, contracts.ErrBusy)
	default:
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("submit %s: %w", intent.ReferenceID, contracts.ErrCancelled)
	}
	defer func() { <-c.sem }()

	orch, preset, err := c.factory.BuildFor(intent)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", intent.ReferenceID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if _, err := c.runs.create(intent.ReferenceID, cancel); err != nil {
		return nil, err
	}

	c.log.Info("payment submitted",
		zap.String("reference_id", intent.ReferenceID),
		zap.String("preset", string(preset)))

	result, err := orch.Run(runCtx, intent)
	c.settleReservations(result)
	c.observeRoute(intent, result)
	c.runs.markDone(intent.ReferenceID, result, err)
	return result, err
}

// reservationHolder is satisfied by liquidity workers holding per-run
// funds reservations.
type reservationHolder interface {
	Commit(contracts.WorkflowID)
	Release(contracts.WorkflowID)
}

// settleReservations commits liquidity holds when the run completed
// and returns them to their pools on any other terminal outcome.
func (c *Core) settleReservations(result *contracts.WorkflowResult) {
	if result == nil || result.WorkflowID == "" {
		return
	}
	for _, w := range c.reg.ByCapability(contracts.CapLiquidity) {
		h, ok := w.(reservationHolder)
		if !ok {
			continue
		}
		if result.Status == contracts.StatusCompleted {
			h.Commit(result.WorkflowID)
		} else {
			h.Release(result.WorkflowID)
		}
	}
}

// optimizerProvider is satisfied by routing workers that expose their
// optimizer for outcome feedback.
type optimizerProvider interface {
	Optimizer() *routing.Optimizer
}

// observeRoute feeds the realized outcome back into the route
// optimizers so learned scores adapt. Feedback only flows for runs
// that selected a route and went on to attempt delivery; earlier
// failures say nothing about the route itself.
func (c *Core) observeRoute(intent *contracts.PaymentIntent, result *contracts.WorkflowResult) {
	if result == nil {
		return
	}
	step, ok := result.StepResults[contracts.StageOptimizeRoute]
	if !ok || !step.OK {
		return
	}
	payload, ok := step.Payload.(*contracts.RoutePayload)
	if !ok || payload.Selected == nil {
		return
	}
	if _, attempted := result.StepResults[contracts.StageExecuteMMO]; !attempted {
		return
	}

	out := contracts.RouteOutcome{
		RouteID:          payload.Selected.ID,
		Success:          result.Status == contracts.StatusCompleted,
		RealizedFee:      result.FeesCharged,
		RealizedDelivery: result.Elapsed,
		Amount:           intent.Amount,
	}
	for _, w := range c.reg.ByCapability(contracts.CapRouteOptimization) {
		if p, ok := w.(optimizerProvider); ok {
			p.Optimizer().Observe(intent, payload.Selected, out)
		}
	}
}

// Status returns the tracked state of a submitted payment.
func (c *Core) Status(reference string) (*Snapshot, bool) {
	return c.runs.snapshot(reference)
}

// Cancel aborts an in-flight payment run. Idempotent for finished runs.
func (c *Core) Cancel(reference string) error {
	return c.runs.abort(reference)
}

// WorkerStates returns the supervisor's health snapshot.
func (c *Core) WorkerStates() map[contracts.WorkerID]contracts.WorkerState {
	return c.sup.States()
}

// Prune drops finished run records older than the retention window.
func (c *Core) Prune(retention time.Duration) int {
	return c.runs.prune(retention)
}

// Drain stops accepting new workflows and waits up to timeout for
// in-flight runs to finish, cancelling stragglers. Returns the number
// of runs still live after the deadline.
func (c *Core) Drain(timeout time.Duration) int {
	select {
	case <-c.draining:
	default:
		close(c.draining)
	}

	remaining := c.runs.waitAll(timeout)
	if remaining > 0 {
		c.log.Warn("drain deadline reached, cancelling in-flight runs",
			zap.Int("remaining", remaining))
		c.runs.cancelAll()
		remaining = c.runs.waitAll(time.Second)
	}
	return remaining
}
