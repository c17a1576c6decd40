package workflow

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
	"github.com/remitstream/remitcore/internal/stages"
)

// Preset is one workflow template: the stages it runs, which of those
// may fail without aborting, and the knobs that differ from the shared
// defaults.
type Preset struct {
	Name      contracts.PresetName
	Stages    []contracts.StageID
	Optional  []contracts.StageID
	Policy    contracts.SelectionPolicy
	Consensus config.ConsensusConfig

	// Zero values inherit the shared orchestrator config.
	StageTimeout    time.Duration
	WorkflowTimeout time.Duration
}

// FactoryDeps carries the collaborators every built orchestrator shares.
type FactoryDeps struct {
	Registry   contracts.Registry
	Supervisor contracts.Supervisor
	Sink       contracts.Sink
	Logger     *zap.Logger
}

// Factory holds the preset catalog and builds configured orchestrators.
type Factory struct {
	cfg     config.CoreConfig
	deps    FactoryDeps
	presets map[contracts.PresetName]Preset
	log     *zap.Logger
}

// NewFactory creates a factory with the built-in preset catalog.
func NewFactory(cfg config.CoreConfig, deps FactoryDeps) *Factory {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	f := &Factory{
		cfg:     cfg,
		deps:    deps,
		presets: make(map[contracts.PresetName]Preset),
		log:     log,
	}
	for _, p := range builtinPresets() {
		f.presets[p.Name] = p
	}
	return f
}

// builtinPresets is the canonical catalog.
func builtinPresets() []Preset {
	all := stages.CanonicalOrder

	return []Preset{
		{
			Name:   contracts.PresetStandard,
			Stages: all,
			Policy: contracts.SelectWeighted,
		},
		{
			// Trusted low-value corridors skip the compliance battery
			// and run on a tight stage budget.
			Name:         contracts.PresetFastTrack,
			Stages:       skip(all, contracts.StageValidateCompliance),
			Policy:       contracts.SelectPerformance,
			StageTimeout: 10 * time.Second,
		},
		{
			Name:   contracts.PresetHighValue,
			Stages: all,
			Policy: contracts.SelectWeighted,
			Consensus: config.ConsensusConfig{
				Enabled:   true,
				Rule:      contracts.RuleUnanimous,
				Threshold: 1.0,
				MinAgents: 2,
				MaxAgents: 3,
			},
			StageTimeout:    60 * time.Second,
			WorkflowTimeout: 10 * time.Minute,
		},
		{
			Name:   contracts.PresetComplianceHeavy,
			Stages: all,
			Policy: contracts.SelectWeighted,
			Consensus: config.ConsensusConfig{
				Enabled:   true,
				Rule:      contracts.RuleMajority,
				Threshold: 0.5,
				MinAgents: 2,
				MaxAgents: 5,
			},
		},
		{
			Name:   contracts.PresetLiquidityOptimized,
			Stages: all,
			Policy: contracts.SelectLeastInFlight,
		},
	}
}

func skip(ids []contracts.StageID, drop ...contracts.StageID) []contracts.StageID {
	dropped := make(map[contracts.StageID]bool, len(drop))
	for _, id := range drop {
		dropped[id] = true
	}
	var out []contracts.StageID
	for _, id := range ids {
		if !dropped[id] {
			out = append(out, id)
		}
	}
	return out
}

// Register adds or replaces a preset in the catalog.
func (f *Factory) Register(p Preset) {
	f.presets[p.Name] = p
}

// Presets lists the catalog names, sorted.
func (f *Factory) Presets() []contracts.PresetName {
	out := make([]contracts.PresetName, 0, len(f.presets))
	for name := range f.presets {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build validates that every capability the preset's stages consume has
// at least one registered worker, then returns a configured orchestrator.
func (f *Factory) Build(name contracts.PresetName) (contracts.Orchestrator, error) {
	preset, ok := f.presets[name]
	if !ok {
		return nil, fmt.Errorf("preset %q: %w", name, contracts.ErrUnknownPreset)
	}
	return f.build(preset)
}

// BuildCustom builds a one-off orchestrator outside the catalog.
func (f *Factory) BuildCustom(name string, preset Preset) (contracts.Orchestrator, error) {
	preset.Name = contracts.PresetName(name)
	return f.build(preset)
}

func (f *Factory) build(preset Preset) (contracts.Orchestrator, error) {
	if err := f.checkCapabilities(preset); err != nil {
		return nil, err
	}

	cfg := f.cfg.Orchestrator
	if preset.StageTimeout > 0 {
		cfg.StageTimeout = config.Duration(preset.StageTimeout)
	}
	if preset.WorkflowTimeout > 0 {
		cfg.WorkflowTimeout = config.Duration(preset.WorkflowTimeout)
	}

	policy := preset.Policy
	if policy == "" {
		policy = contracts.SelectWeighted
	}

	optional := make(map[contracts.StageID]bool, len(preset.Optional))
	for _, id := range preset.Optional {
		optional[id] = true
	}

	var arb contracts.Arbiter
	if preset.Consensus.Enabled {
		arb = NewArbiter(preset.Consensus)
	}

	executors, err := stages.Build(stages.Deps{
		Supervisor: f.deps.Supervisor,
		Registry:   f.deps.Registry,
		Arbiter:    arb,
		Consensus:  preset.Consensus,
		Policy:     policy,
		Timeout:    cfg.StageTimeout.Std(),
		Logger:     f.log,
		Optional:   optional,
	}, preset.Stages)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", preset.Name, err)
	}

	return New(Options{
		Name:      preset.Name,
		Config:    cfg,
		Executors: executors,
		Optional:  optional,
		Sink:      f.deps.Sink,
		Logger:    f.log,
	})
}

// checkCapabilities verifies each consumed capability has a worker.
func (f *Factory) checkCapabilities(preset Preset) error {
	seen := make(map[contracts.Capability]bool)
	for _, id := range preset.Stages {
		capability, ok := stages.CapabilityOf(id)
		if !ok {
			return fmt.Errorf("preset %s: unknown stage %s: %w", preset.Name, id, contracts.ErrInternal)
		}
		if seen[capability] {
			continue
		}
		seen[capability] = true
		if len(f.deps.Registry.ByCapability(capability)) == 0 {
			return fmt.Errorf("preset %s needs capability %s: %w",
				preset.Name, capability, contracts.ErrMissingDependency)
		}
	}
	return nil
}

// Route picks the preset for an intent: amount above the high-value
// threshold wins, then trusted low-value corridors, then regulated
// corridors, then standard.
func (f *Factory) Route(intent *contracts.PaymentIntent) contracts.PresetName {
	fc := f.cfg.Factory
	corridor := contracts.Corridor{
		From: intent.FromCurrency,
		To:   intent.ToCurrency,
	}

	switch {
	case fc.HighValueThreshold.IsPositive() && intent.Amount.GreaterThan(fc.HighValueThreshold):
		return contracts.PresetHighValue
	case fc.LowValueThreshold.IsPositive() &&
		intent.Amount.LessThan(fc.LowValueThreshold) &&
		corridorListed(fc.TrustedCorridors, corridor):
		return contracts.PresetFastTrack
	case corridorListed(fc.RegulatedCorridors, corridor):
		return contracts.PresetComplianceHeavy
	default:
		return contracts.PresetStandard
	}
}

// BuildFor routes the intent to its preset and builds the orchestrator.
func (f *Factory) BuildFor(intent *contracts.PaymentIntent) (contracts.Orchestrator, contracts.PresetName, error) {
	name := f.Route(intent)
	orch, err := f.Build(name)
	return orch, name, err
}

func corridorListed(pairs []config.CorridorPair, c contracts.Corridor) bool {
	for _, p := range pairs {
		if p.From == c.From && p.To == c.To {
			return true
		}
	}
	return false
}
