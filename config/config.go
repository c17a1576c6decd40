// Package config provides static core configuration loading and validation.
// One flat struct per component, composed into CoreConfig; validation
// happens once, at startup.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/contracts"
)

// Duration wraps time.Duration with JSON support for "30s"-style strings.
type Duration time.Duration

// UnmarshalJSON accepts either a duration string ("250ms") or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*d = Duration(time.Duration(t))
		return nil
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", t, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CoreConfig is the root configuration for the orchestration core.
type CoreConfig struct {
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Supervisor   SupervisorConfig   `json:"supervisor"`
	Optimizer    OptimizerConfig    `json:"optimizer"`
	Compliance   ComplianceConfig   `json:"compliance"`
	Factory      FactoryConfig      `json:"factory"`
	Cache        CacheConfig        `json:"cache"`
}

// OrchestratorConfig bounds a single workflow run.
type OrchestratorConfig struct {
	StageTimeout           Duration `json:"stage_timeout"`
	WorkflowTimeout        Duration `json:"workflow_timeout"`
	MaxParallelSteps       int      `json:"max_parallel_steps"`
	MaxConcurrentWorkflows int      `json:"max_concurrent_workflows"`
	BreakerThreshold       int      `json:"breaker_threshold"`
	BreakerTimeout         Duration `json:"breaker_timeout"`
}

// ConsensusConfig gates cross-worker consensus for a preset.
type ConsensusConfig struct {
	Enabled   bool                            `json:"enabled"`
	Rule      contracts.ConsensusRule         `json:"rule"`
	Threshold float64                         `json:"consensus_threshold"`
	MinAgents int                             `json:"min_agents"`
	MaxAgents int                             `json:"max_agents"`
	Weights   map[contracts.WorkerID]float64  `json:"weights,omitempty"`
}

// SupervisorConfig bounds worker invocation.
type SupervisorConfig struct {
	RetryAttempts    int      `json:"retry_attempts"`
	RetryDelay       Duration `json:"retry_delay"`
	BreakerThreshold int      `json:"breaker_threshold"`
	BreakerTimeout   Duration `json:"breaker_timeout"`
	SlotWaitTimeout  Duration `json:"slot_wait_timeout"`
	HealthAlpha      float64  `json:"health_alpha"` // EMA smoothing for worker health
}

// OptimizationStrategy selects the scoring weight profile.
type OptimizationStrategy string

const (
	StrategyCostFirst        OptimizationStrategy = "cost_first"
	StrategySpeedFirst       OptimizationStrategy = "speed_first"
	StrategyReliabilityFirst OptimizationStrategy = "reliability_first"
	StrategyBalanced         OptimizationStrategy = "balanced"
	StrategyCustom           OptimizationStrategy = "custom"
)

// ScoreWeights is the convex combination applied to the four axes.
type ScoreWeights struct {
	Cost        float64 `json:"cost"`
	Speed       float64 `json:"speed"`
	Reliability float64 `json:"reliability"`
	Compliance  float64 `json:"compliance"`
}

// Weights returns the canonical weight profile for the strategy.
// Custom strategies use the weights configured on the optimizer.
func (s OptimizationStrategy) Weights(custom ScoreWeights) ScoreWeights {
	switch s {
	case StrategyCostFirst:
		return ScoreWeights{Cost: 0.6, Speed: 0.2, Reliability: 0.1, Compliance: 0.1}
	case StrategySpeedFirst:
		return ScoreWeights{Cost: 0.2, Speed: 0.6, Reliability: 0.1, Compliance: 0.1}
	case StrategyReliabilityFirst:
		return ScoreWeights{Cost: 0.1, Speed: 0.1, Reliability: 0.6, Compliance: 0.2}
	case StrategyCustom:
		return custom
	default:
		return ScoreWeights{Cost: 0.4, Speed: 0.3, Reliability: 0.2, Compliance: 0.1}
	}
}

// OptimizerConfig drives route discovery, filtering, scoring and learning.
type OptimizerConfig struct {
	Strategy           OptimizationStrategy     `json:"optimization_strategy"`
	CustomWeights      ScoreWeights             `json:"weights"`
	MinSuccessRate     float64                  `json:"min_success_rate"`
	MaxDelivery        Duration                 `json:"max_delivery"`
	MaxCostPct         float64                  `json:"max_cost_pct"`
	EnabledRouteKinds  []contracts.RouteKind    `json:"enabled_route_kinds"`
	HubCurrencies      []contracts.CurrencyCode `json:"hub_currencies"`
	MaxHops            int                      `json:"max_hops"`
	ExcludedProviders  []string                 `json:"excluded_providers"`
	PreferredProviders []string                 `json:"preferred_providers"`
	EnableLearning     bool                     `json:"enable_learning"`
	LearningRate       float64                  `json:"learning_rate"`
	HistoryLimit       int                      `json:"history_limit"`
	HighValueThreshold decimal.Decimal          `json:"high_value_threshold"`
	CacheTTL           Duration                 `json:"cache_ttl"`
}

// ComplianceConfig drives the risk check battery.
type ComplianceConfig struct {
	KYCThreshold        decimal.Decimal `json:"kyc_threshold"`
	AMLThreshold        decimal.Decimal `json:"aml_threshold"`
	HighRiskThreshold   float64         `json:"high_risk_threshold"`
	MediumRiskThreshold float64         `json:"medium_risk_threshold"`
	EnableSanctions     bool            `json:"enable_sanctions"`
	EnablePEP           bool            `json:"enable_pep"`
	EnableAdverseMedia  bool            `json:"enable_adverse_media"`
	EnableRegulatory    bool            `json:"enable_regulatory"`
	AlertsEnabled       bool            `json:"alerts_enabled"`
	HistoryLimit        int             `json:"history_limit"`
}

// CorridorPair is the JSON shape of a currency corridor.
type CorridorPair struct {
	From contracts.CurrencyCode `json:"from"`
	To   contracts.CurrencyCode `json:"to"`
}

// FactoryConfig drives intent-to-preset routing.
type FactoryConfig struct {
	HighValueThreshold decimal.Decimal `json:"high_value_threshold"`
	LowValueThreshold  decimal.Decimal `json:"low_threshold"`
	TrustedCorridors   []CorridorPair  `json:"trusted_corridors"`
	RegulatedCorridors []CorridorPair  `json:"regulated_corridors"`
}

// CacheConfig attaches an optional Redis-backed candidate cache.
type CacheConfig struct {
	Enabled bool     `json:"enabled"`
	Addr    string   `json:"addr"`
	TTL     Duration `json:"ttl"`
}

// Default returns the default core configuration.
func Default() CoreConfig {
	return CoreConfig{
		Orchestrator: OrchestratorConfig{
			StageTimeout:           Duration(30 * time.Second),
			WorkflowTimeout:        Duration(5 * time.Minute),
			MaxParallelSteps:       4,
			MaxConcurrentWorkflows: 64,
			BreakerThreshold:       5,
			BreakerTimeout:         Duration(60 * time.Second),
		},
		Supervisor: SupervisorConfig{
			RetryAttempts:    3,
			RetryDelay:       Duration(100 * time.Millisecond),
			BreakerThreshold: 5,
			BreakerTimeout:   Duration(60 * time.Second),
			SlotWaitTimeout:  Duration(5 * time.Second),
			HealthAlpha:      0.2,
		},
		Optimizer: OptimizerConfig{
			Strategy:           StrategyBalanced,
			MinSuccessRate:     0.5,
			MaxDelivery:        Duration(24 * time.Hour),
			MaxCostPct:         0.1,
			EnabledRouteKinds:  []contracts.RouteKind{contracts.RouteDirect, contracts.RouteHub},
			HubCurrencies:      []contracts.CurrencyCode{"USD", "EUR"},
			MaxHops:            0, // multi-hop disabled by default
			EnableLearning:     true,
			LearningRate:       0.3,
			HistoryLimit:       1000,
			HighValueThreshold: decimal.NewFromInt(10000),
			CacheTTL:           Duration(5 * time.Minute),
		},
		Compliance: ComplianceConfig{
			KYCThreshold:        decimal.NewFromInt(1000),
			AMLThreshold:        decimal.NewFromInt(3000),
			HighRiskThreshold:   0.7,
			MediumRiskThreshold: 0.4,
			EnableSanctions:     true,
			EnablePEP:           true,
			EnableAdverseMedia:  false,
			EnableRegulatory:    true,
			AlertsEnabled:       true,
			HistoryLimit:        1000,
		},
		Factory: FactoryConfig{
			HighValueThreshold: decimal.NewFromInt(10000),
			LowValueThreshold:  decimal.NewFromInt(500),
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     Duration(5 * time.Minute),
		},
	}
}
