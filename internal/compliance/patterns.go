// Package compliance runs the risk check battery, aggregates a risk
// score and tracks per-corridor risk patterns across runs.
package compliance

import (
	"sync"

	"github.com/remitstream/remitcore/contracts"
)

// patternAlpha smooths the per-corridor risk and compliance EMAs.
const patternAlpha = 0.2

// Pattern is the learned risk profile of one currency corridor.
type Pattern struct {
	RiskScore      float64 // EMA in [0,1]
	ComplianceRate float64 // EMA of pass rate in [0,1]
	Observed       int
}

// patternStore keeps per-corridor risk patterns, bounded to the last K
// corridors observed; pruning is FIFO on first observation order.
type patternStore struct {
	mu    sync.Mutex
	limit int
	byKey map[contracts.Corridor]*Pattern
	order []contracts.Corridor
}

func newPatternStore(limit int) *patternStore {
	if limit < 1 {
		limit = 1
	}
	return &patternStore{
		limit: limit,
		byKey: make(map[contracts.Corridor]*Pattern),
	}
}

// lookup returns the pattern for a corridor, if observed before.
func (s *patternStore) lookup(c contracts.Corridor) (Pattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byKey[c]
	if !ok {
		return Pattern{}, false
	}
	return *p, true
}

// observe folds one finished run into the corridor's pattern.
// Created on first observation; updated on each subsequent one.
func (s *patternStore) observe(c contracts.Corridor, riskScore float64, compliant bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	passed := 0.0
	if compliant {
		passed = 1.0
	}

	p, ok := s.byKey[c]
	if !ok {
		if len(s.order) >= s.limit {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.byKey, oldest)
		}
		s.byKey[c] = &Pattern{RiskScore: riskScore, ComplianceRate: passed, Observed: 1}
		s.order = append(s.order, c)
		return
	}

	p.RiskScore = patternAlpha*riskScore + (1-patternAlpha)*p.RiskScore
	p.ComplianceRate = patternAlpha*passed + (1-patternAlpha)*p.ComplianceRate
	p.Observed++
}

// size returns the number of tracked corridors.
func (s *patternStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}
