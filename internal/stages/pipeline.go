package stages

import (
	"fmt"

	"github.com/remitstream/remitcore/contracts"
)

// stageSpec fixes the capability and prerequisites of one canonical
// pipeline stage.
type stageSpec struct {
	capability contracts.Capability
	requires   []contracts.StageID
}

var canonical = map[contracts.StageID]stageSpec{
	contracts.StageCreatePayment: {
		capability: contracts.CapPaymentService,
	},
	contracts.StageValidatePayment: {
		capability: contracts.CapPaymentService,
		requires:   []contracts.StageID{contracts.StageCreatePayment},
	},
	contracts.StageOptimizeRoute: {
		capability: contracts.CapRouteOptimization,
		requires:   []contracts.StageID{contracts.StageValidatePayment},
	},
	contracts.StageValidateCompliance: {
		capability: contracts.CapCompliance,
		requires:   []contracts.StageID{contracts.StageOptimizeRoute},
	},
	contracts.StageCheckLiquidity: {
		capability: contracts.CapLiquidity,
		requires:   []contracts.StageID{contracts.StageValidateCompliance},
	},
	contracts.StageLockExchangeRate: {
		capability: contracts.CapExchangeRate,
		requires:   []contracts.StageID{contracts.StageCheckLiquidity},
	},
	contracts.StageExecuteMMO: {
		capability: contracts.CapMMOService,
		requires:   []contracts.StageID{contracts.StageLockExchangeRate},
	},
	contracts.StageSettlePayment: {
		capability: contracts.CapSettlement,
		requires:   []contracts.StageID{contracts.StageExecuteMMO},
	},
	contracts.StageConfirmPayment: {
		capability: contracts.CapPaymentService,
		requires:   []contracts.StageID{contracts.StageSettlePayment},
	},
}

// CanonicalOrder lists the pipeline stages in dependency order.
var CanonicalOrder = []contracts.StageID{
	contracts.StageCreatePayment,
	contracts.StageValidatePayment,
	contracts.StageOptimizeRoute,
	contracts.StageValidateCompliance,
	contracts.StageCheckLiquidity,
	contracts.StageLockExchangeRate,
	contracts.StageExecuteMMO,
	contracts.StageSettlePayment,
	contracts.StageConfirmPayment,
}

// CapabilityOf returns the capability a canonical stage consumes.
func CapabilityOf(id contracts.StageID) (contracts.Capability, bool) {
	spec, ok := canonical[id]
	return spec.capability, ok
}

// Build returns executors for the given stages. When a preset skips a
// stage, its dependents are rewired to the nearest included ancestors
// so the dependency chain stays intact. Unknown stage ids fail with an
// internal error; preset construction validates earlier.
func Build(deps Deps, ids []contracts.StageID) ([]contracts.StageExecutor, error) {
	included := make(map[contracts.StageID]bool, len(ids))
	for _, id := range ids {
		if _, ok := canonical[id]; !ok {
			return nil, fmt.Errorf("unknown pipeline stage %s: %w", id, contracts.ErrInternal)
		}
		included[id] = true
	}

	out := make([]contracts.StageExecutor, 0, len(ids))
	for _, id := range ids {
		spec := canonical[id]
		out = append(out, newExecutor(id, effectiveRequires(spec.requires, included), spec.capability, deps))
	}
	return out, nil
}

// effectiveRequires substitutes skipped prerequisites with their own
// prerequisites, transitively, keeping only included stages.
func effectiveRequires(requires []contracts.StageID, included map[contracts.StageID]bool) []contracts.StageID {
	var out []contracts.StageID
	seen := make(map[contracts.StageID]bool)
	var walk func(reqs []contracts.StageID)
	walk = func(reqs []contracts.StageID) {
		for _, req := range reqs {
			if seen[req] {
				continue
			}
			seen[req] = true
			if included[req] {
				out = append(out, req)
				continue
			}
			walk(canonical[req].requires)
		}
	}
	walk(requires)
	return out
}
