package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// Config bounds worker invocation.
type Config struct {
	RetryAttempts    int
	RetryDelay       time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
	SlotWaitTimeout  time.Duration
	HealthAlpha      float64
}

// supervised is the runtime envelope around one worker: concurrency
// slots, breaker, and health EMAs. State is mutated only under mu.
type supervised struct {
	worker  contracts.Worker
	slots   chan struct{}
	breaker *breaker

	mu                  sync.Mutex
	inFlight            int
	successRate         float64
	avgProcessing       time.Duration
	consecutiveFailures int
	seeded              bool
}

// Supervisor implements contracts.Supervisor.
type Supervisor struct {
	cfg  Config
	reg  contracts.Registry
	sink contracts.Sink
	log  *zap.Logger
	sel  *selector

	mu         sync.RWMutex
	supervised map[contracts.WorkerID]*supervised
}

// New creates a Supervisor over the registry's workers.
func New(cfg Config, reg contracts.Registry, sink contracts.Sink, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Supervisor{
		cfg:        cfg,
		reg:        reg,
		sink:       sink,
		log:        log,
		supervised: make(map[contracts.WorkerID]*supervised),
	}
	s.sel = newSelector(s.healthOf)
	return s
}

// adopt returns the supervision envelope for a worker, creating it on
// first contact.
func (s *Supervisor) adopt(w contracts.Worker) *supervised {
	s.mu.RLock()
	sup, ok := s.supervised[w.ID()]
	s.mu.RUnlock()
	if ok {
		return sup
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sup, ok = s.supervised[w.ID()]; ok {
		return sup
	}

	capSlots := w.MaxConcurrent()
	if capSlots < 1 {
		capSlots = 1
	}
	sup = &supervised{
		worker:      w,
		slots:       make(chan struct{}, capSlots),
		breaker:     newBreaker(s.cfg.BreakerThreshold, s.cfg.BreakerTimeout),
		successRate: 1.0,
	}
	s.supervised[w.ID()] = sup
	return sup
}

func (s *Supervisor) healthOf(id contracts.WorkerID) (float64, time.Duration) {
	s.mu.RLock()
	sup, ok := s.supervised[id]
	s.mu.RUnlock()
	if !ok {
		return 1.0, 0
	}
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return sup.successRate, sup.avgProcessing
}

func (s *Supervisor) inFlightOf(id contracts.WorkerID) int {
	s.mu.RLock()
	sup, ok := s.supervised[id]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return sup.inFlight
}

// pool returns the capability's workers sorted by ID for deterministic
// rotation.
func (s *Supervisor) pool(cap contracts.Capability) []contracts.Worker {
	ws := s.reg.ByCapability(cap)
	sort.Slice(ws, func(i, j int) bool { return ws[i].ID() < ws[j].ID() })
	return ws
}

// Select returns a worker of the capability under the policy without
// invoking it.
func (s *Supervisor) Select(cap contracts.Capability, policy contracts.SelectionPolicy) (contracts.Worker, error) {
	return s.sel.pick(cap, s.pool(cap), policy, s.inFlightOf)
}

// Invoke selects a worker and runs the transaction through the retry
// envelope.
func (s *Supervisor) Invoke(ctx context.Context, cap contracts.Capability, policy contracts.SelectionPolicy, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	w, err := s.Select(cap, policy)
	if err != nil {
		return nil, err
	}
	return s.InvokeWorker(ctx, w, tx)
}

// InvokeWorker runs the transaction on a specific worker with up to
// RetryAttempts+1 tries. The delay before retry k is RetryDelay*2^(k-1).
// Retries stop immediately on non-retryable kinds and on cancellation.
func (s *Supervisor) InvokeWorker(ctx context.Context, w contracts.Worker, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	sup := s.adopt(w)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.cfg.RetryDelay
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxInterval = s.cfg.RetryDelay * 1 << 16
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(s.cfg.RetryAttempts)), ctx)

	attempts := 0
	var result *contracts.StageResult
	op := func() error {
		attempts++
		res, err := s.attempt(ctx, sup, tx)
		if err != nil {
			if contracts.KindOf(err).Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if ctx.Err() != nil && contracts.KindOf(err) != contracts.KindCancelled {
			err = fmt.Errorf("worker %s: %w", w.ID(), contracts.ErrCancelled)
		}
		return nil, err
	}

	result.Attempts = attempts
	result.WorkerID = w.ID()
	return result, nil
}

// attempt performs one supervised call: breaker gate, slot acquisition,
// invocation, health update, event emission.
func (s *Supervisor) attempt(ctx context.Context, sup *supervised, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	id := sup.worker.ID()
	cap := sup.worker.Capability()

	if !sup.breaker.allow() {
		s.emit(id, cap, "circuit_open", 0)
		return nil, fmt.Errorf("worker %s: %w", id, contracts.ErrCircuitOpen)
	}

	// Slot acquisition suspends until capacity, cancellation or the
	// slot wait timeout.
	slotTimer := time.NewTimer(s.cfg.SlotWaitTimeout)
	defer slotTimer.Stop()
	select {
	case sup.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("worker %s: %w", id, contracts.ErrCancelled)
	case <-slotTimer.C:
		s.emit(id, cap, "busy", s.cfg.SlotWaitTimeout)
		return nil, fmt.Errorf("worker %s: %w", id, contracts.ErrBusy)
	}
	defer func() { <-sup.slots }()

	sup.mu.Lock()
	sup.inFlight++
	sup.mu.Unlock()

	start := time.Now()
	res, err := sup.worker.Process(ctx, tx)
	elapsed := time.Since(start)

	sup.mu.Lock()
	sup.inFlight--
	sup.mu.Unlock()

	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("worker %s: %w", id, contracts.ErrCancelled)
	}

	success := err == nil
	s.updateHealth(sup, success, elapsed)
	// Cancellation is not a worker fault: it neither trips nor resets
	// the breaker.
	if contracts.KindOf(err) != contracts.KindCancelled {
		sup.breaker.record(success)
	}

	outcome := "ok"
	if err != nil {
		outcome = string(contracts.KindOf(err))
	}
	s.emit(id, cap, outcome, elapsed)

	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("worker %s returned nil result: %w", id, contracts.ErrInternal)
	}
	if res.Elapsed == 0 {
		res.Elapsed = elapsed
	}
	return res, nil
}

func (s *Supervisor) updateHealth(sup *supervised, success bool, elapsed time.Duration) {
	alpha := s.cfg.HealthAlpha
	sup.mu.Lock()
	defer sup.mu.Unlock()

	outcome := 0.0
	if success {
		outcome = 1.0
		sup.consecutiveFailures = 0
	} else {
		sup.consecutiveFailures++
	}

	if !sup.seeded {
		sup.successRate = outcome
		sup.avgProcessing = elapsed
		sup.seeded = true
		return
	}
	sup.successRate = alpha*outcome + (1-alpha)*sup.successRate
	sup.avgProcessing = time.Duration(alpha*float64(elapsed) + (1-alpha)*float64(sup.avgProcessing))
}

func (s *Supervisor) emit(id contracts.WorkerID, cap contracts.Capability, outcome string, elapsed time.Duration) {
	s.log.Debug("worker invocation",
		zap.String("worker_id", string(id)),
		zap.String("capability", string(cap)),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed))
	if s.sink != nil {
		s.sink.RecordWorker(id, cap, outcome, elapsed)
	}
}

// States returns a health snapshot for every supervised worker.
func (s *Supervisor) States() map[contracts.WorkerID]contracts.WorkerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[contracts.WorkerID]contracts.WorkerState, len(s.supervised))
	for id, sup := range s.supervised {
		open, openedAt, _ := sup.breaker.snapshot()

		sup.mu.Lock()
		st := contracts.WorkerState{
			ID:                  id,
			Capability:          sup.worker.Capability(),
			InFlight:            sup.inFlight,
			SuccessRate:         sup.successRate,
			AvgProcessing:       sup.avgProcessing,
			ConsecutiveFailures: sup.consecutiveFailures,
			Breaker:             contracts.BreakerState{Open: open, OpenedAt: openedAt},
		}
		switch {
		case open:
			st.Status = contracts.WorkerError
		case sup.inFlight > 0:
			st.Status = contracts.WorkerBusy
		default:
			st.Status = contracts.WorkerIdle
		}
		sup.mu.Unlock()

		out[id] = st
	}
	return out
}
