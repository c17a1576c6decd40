package workflow

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
)

// arbiter combines parallel worker verdicts under a configured rule.
type arbiter struct {
	cfg config.ConsensusConfig
}

// NewArbiter creates a consensus arbiter.
func NewArbiter(cfg config.ConsensusConfig) contracts.Arbiter {
	return &arbiter{cfg: cfg}
}

// Combine folds the verdicts. When consensus is not reached the outcome
// carries the first successful result if any, else the first result,
// with Reached=false. The unanimous rule is stricter: a split vote
// surfaces the dissenting verdict so the stage cannot pass.
func (a *arbiter) Combine(results []*contracts.StageResult) (*contracts.ConsensusOutcome, error) {
	if len(results) < a.cfg.MinAgents {
		return nil, fmt.Errorf("consensus needs %d results, got %d: %w",
			a.cfg.MinAgents, len(results), contracts.ErrNoConsensus)
	}

	outcome := &contracts.ConsensusOutcome{Rule: a.cfg.Rule, Votes: len(results)}

	switch a.cfg.Rule {
	case contracts.RuleMajority:
		a.majority(results, outcome, func(*contracts.StageResult) float64 { return 1 })
	case contracts.RuleWeighted:
		a.majority(results, outcome, a.voteWeight)
	case contracts.RuleUnanimous:
		a.unanimous(results, outcome)
	case contracts.RuleThreshold:
		a.threshold(results, outcome)
	case contracts.RuleMedian:
		a.pivot(results, outcome, medianElapsed(results))
	case contracts.RuleAverage:
		a.pivot(results, outcome, meanElapsed(results))
	default:
		return nil, fmt.Errorf("unknown consensus rule %q: %w", a.cfg.Rule, contracts.ErrInternal)
	}

	if outcome.Result == nil {
		outcome.Result = fallback(results)
	}
	return outcome, nil
}

// voteWeight is the configured worker weight scaled by the vote's own
// confidence. Unconfigured workers weigh 1; zero confidence counts full.
func (a *arbiter) voteWeight(r *contracts.StageResult) float64 {
	w := 1.0
	if cw, ok := a.cfg.Weights[r.WorkerID]; ok {
		w = cw
	}
	if r.Confidence > 0 {
		w *= r.Confidence
	}
	return w
}

// majority picks the side with the strictly greater vote mass.
func (a *arbiter) majority(results []*contracts.StageResult, out *contracts.ConsensusOutcome, weight func(*contracts.StageResult) float64) {
	var okMass, failMass float64
	for _, r := range results {
		if r.OK {
			okMass += weight(r)
		} else {
			failMass += weight(r)
		}
	}
	total := okMass + failMass
	if total == 0 || okMass == failMass {
		return
	}

	wantOK := okMass > failMass
	out.AgreementRatio = math.Max(okMass, failMass) / total
	if out.AgreementRatio < a.cfg.Threshold {
		return
	}
	out.Reached = true
	out.Result = firstWith(results, wantOK)
}

// unanimous requires every vote on one side. Any dissent breaks
// agreement and surfaces the failing verdict as the outcome.
func (a *arbiter) unanimous(results []*contracts.StageResult, out *contracts.ConsensusOutcome) {
	okCount := 0
	for _, r := range results {
		if r.OK {
			okCount++
		}
	}
	out.AgreementRatio = math.Max(float64(okCount), float64(len(results)-okCount)) / float64(len(results))
	if okCount != 0 && okCount != len(results) {
		out.Result = firstWith(results, false)
		return
	}
	out.Reached = true
	out.Result = results[0]
}

func (a *arbiter) threshold(results []*contracts.StageResult, out *contracts.ConsensusOutcome) {
	okCount := 0
	for _, r := range results {
		if r.OK {
			okCount++
		}
	}
	okRatio := float64(okCount) / float64(len(results))
	failRatio := 1 - okRatio

	switch {
	case okRatio >= a.cfg.Threshold:
		out.Reached = true
		out.AgreementRatio = okRatio
		out.Result = firstWith(results, true)
	case failRatio >= a.cfg.Threshold:
		out.Reached = true
		out.AgreementRatio = failRatio
		out.Result = firstWith(results, false)
	default:
		out.AgreementRatio = math.Max(okRatio, failRatio)
	}
}

// pivot selects the result whose elapsed time sits closest to the pivot
// and measures agreement as the fraction of votes within 10% of it.
func (a *arbiter) pivot(results []*contracts.StageResult, out *contracts.ConsensusOutcome, p time.Duration) {
	best := results[0]
	bestDelta := absDelta(best.Elapsed, p)
	for _, r := range results[1:] {
		if d := absDelta(r.Elapsed, p); d < bestDelta {
			best, bestDelta = r, d
		}
	}

	within := 0
	band := float64(p) * 0.1
	for _, r := range results {
		if float64(absDelta(r.Elapsed, p)) <= band {
			within++
		}
	}
	out.AgreementRatio = float64(within) / float64(len(results))
	if out.AgreementRatio < a.cfg.Threshold {
		return
	}
	out.Reached = true
	out.Result = best
}

func medianElapsed(results []*contracts.StageResult) time.Duration {
	elapsed := make([]time.Duration, len(results))
	for i, r := range results {
		elapsed[i] = r.Elapsed
	}
	sort.Slice(elapsed, func(i, j int) bool { return elapsed[i] < elapsed[j] })
	mid := len(elapsed) / 2
	if len(elapsed)%2 == 0 {
		return (elapsed[mid-1] + elapsed[mid]) / 2
	}
	return elapsed[mid]
}

func meanElapsed(results []*contracts.StageResult) time.Duration {
	var sum time.Duration
	for _, r := range results {
		sum += r.Elapsed
	}
	return sum / time.Duration(len(results))
}

func absDelta(a, b time.Duration) time.Duration {
	if a > b {
		return a - b
	}
	return b - a
}

func firstWith(results []*contracts.StageResult, ok bool) *contracts.StageResult {
	for _, r := range results {
		if r.OK == ok {
			return r
		}
	}
	return nil
}

func fallback(results []*contracts.StageResult) *contracts.StageResult {
	if r := firstWith(results, true); r != nil {
		return r
	}
	return results[0]
}
