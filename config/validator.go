package config

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/remitstream/remitcore/contracts"
)

// Validator validates core configurations.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of a CoreConfig. All
// component violations are collected into one combined error so a bad
// config reports everything wrong with it at once.
func (v *Validator) Validate(cfg *CoreConfig) error {
	if cfg == nil {
		return ErrConfigEmpty
	}
	var err error
	if e := v.validateOrchestrator(&cfg.Orchestrator); e != nil {
		err = multierr.Append(err, fmt.Errorf("orchestrator: %w", e))
	}
	if e := v.validateSupervisor(&cfg.Supervisor); e != nil {
		err = multierr.Append(err, fmt.Errorf("supervisor: %w", e))
	}
	if e := v.validateOptimizer(&cfg.Optimizer); e != nil {
		err = multierr.Append(err, fmt.Errorf("optimizer: %w", e))
	}
	if e := v.validateCompliance(&cfg.Compliance); e != nil {
		err = multierr.Append(err, fmt.Errorf("compliance: %w", e))
	}
	if e := v.validateFactory(&cfg.Factory); e != nil {
		err = multierr.Append(err, fmt.Errorf("factory: %w", e))
	}
	return err
}

// ValidateConsensus checks a preset-level consensus configuration.
func (v *Validator) ValidateConsensus(cc *ConsensusConfig) error {
	if !cc.Enabled {
		return nil
	}
	if cc.MinAgents < 2 {
		return ErrMinAgentsInvalid
	}
	if cc.MaxAgents > 0 && cc.MaxAgents < cc.MinAgents {
		return fmt.Errorf("max_agents=%d < min_agents=%d: %w",
			cc.MaxAgents, cc.MinAgents, ErrMinAgentsInvalid)
	}
	if cc.Threshold < 0 || cc.Threshold > 1 {
		return fmt.Errorf("consensus_threshold=%v: %w", cc.Threshold, ErrRatioInvalid)
	}
	switch cc.Rule {
	case contracts.RuleMajority, contracts.RuleWeighted, contracts.RuleUnanimous,
		contracts.RuleThreshold, contracts.RuleMedian, contracts.RuleAverage:
		return nil
	default:
		return fmt.Errorf("rule=%q: %w", cc.Rule, ErrConfigEmpty)
	}
}

func (v *Validator) validateOrchestrator(c *OrchestratorConfig) error {
	if c.StageTimeout <= 0 || c.WorkflowTimeout <= 0 {
		return ErrTimeoutInvalid
	}
	if c.StageTimeout > c.WorkflowTimeout {
		return ErrStageExceedsWorkflow
	}
	if c.MaxParallelSteps < 1 || c.MaxConcurrentWorkflows < 1 {
		return ErrParallelismInvalid
	}
	if c.BreakerThreshold < 1 || c.BreakerTimeout <= 0 {
		return ErrBreakerInvalid
	}
	return nil
}

func (v *Validator) validateSupervisor(c *SupervisorConfig) error {
	if c.RetryAttempts < 0 || c.RetryDelay <= 0 {
		return ErrRetryInvalid
	}
	if c.BreakerThreshold < 1 || c.BreakerTimeout <= 0 {
		return ErrBreakerInvalid
	}
	if c.SlotWaitTimeout <= 0 {
		return ErrTimeoutInvalid
	}
	if c.HealthAlpha <= 0 || c.HealthAlpha > 1 {
		return fmt.Errorf("health_alpha=%v: %w", c.HealthAlpha, ErrRatioInvalid)
	}
	return nil
}

func (v *Validator) validateOptimizer(c *OptimizerConfig) error {
	if c.MinSuccessRate < 0 || c.MinSuccessRate > 1 {
		return fmt.Errorf("min_success_rate=%v: %w", c.MinSuccessRate, ErrRatioInvalid)
	}
	if c.MaxCostPct < 0 || c.MaxCostPct > 1 {
		return fmt.Errorf("max_cost_pct=%v: %w", c.MaxCostPct, ErrRatioInvalid)
	}
	if c.MaxDelivery <= 0 {
		return ErrTimeoutInvalid
	}
	if c.Strategy == StrategyCustom {
		w := c.CustomWeights
		if w.Cost < 0 || w.Speed < 0 || w.Reliability < 0 || w.Compliance < 0 {
			return ErrWeightsInvalid
		}
		sum := w.Cost + w.Speed + w.Reliability + w.Compliance
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("weights sum to %v: %w", sum, ErrWeightsInvalid)
		}
	}
	for _, k := range c.EnabledRouteKinds {
		switch k {
		case contracts.RouteDirect, contracts.RouteHub, contracts.RouteMultiHop:
		default:
			return fmt.Errorf("route kind %q: %w", k, ErrRouteKindUnknown)
		}
	}
	if c.EnableLearning {
		if c.LearningRate <= 0 || c.LearningRate > 1 {
			return fmt.Errorf("learning_rate=%v: %w", c.LearningRate, ErrRatioInvalid)
		}
		if c.HistoryLimit < 1 {
			return fmt.Errorf("history_limit=%d: %w", c.HistoryLimit, ErrThresholdInvalid)
		}
	}
	if c.HighValueThreshold.IsNegative() {
		return ErrThresholdInvalid
	}
	return nil
}

func (v *Validator) validateCompliance(c *ComplianceConfig) error {
	if c.KYCThreshold.IsNegative() || c.AMLThreshold.IsNegative() {
		return ErrThresholdInvalid
	}
	if c.HighRiskThreshold < 0 || c.HighRiskThreshold > 1 {
		return fmt.Errorf("high_risk_threshold=%v: %w", c.HighRiskThreshold, ErrRatioInvalid)
	}
	if c.MediumRiskThreshold < 0 || c.MediumRiskThreshold > 1 {
		return fmt.Errorf("medium_risk_threshold=%v: %w", c.MediumRiskThreshold, ErrRatioInvalid)
	}
	if c.MediumRiskThreshold > c.HighRiskThreshold {
		return fmt.Errorf("medium band above high band: %w", ErrThresholdInvalid)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("history_limit=%d: %w", c.HistoryLimit, ErrThresholdInvalid)
	}
	return nil
}

func (v *Validator) validateFactory(c *FactoryConfig) error {
	if c.HighValueThreshold.IsNegative() || c.LowValueThreshold.IsNegative() {
		return ErrThresholdInvalid
	}
	if c.LowValueThreshold.GreaterThan(c.HighValueThreshold) {
		return fmt.Errorf("low_threshold above high_value_threshold: %w", ErrThresholdInvalid)
	}
	return nil
}
