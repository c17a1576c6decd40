package compliance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
)

// Screener runs the compliance check battery and aggregates a verdict.
type Screener struct {
	cfg      config.ComplianceConfig
	lists    Watchlists
	patterns *patternStore
	sink     contracts.Sink
	log      *zap.Logger
}

// NewScreener creates a Screener with the given watchlist fixtures.
func NewScreener(cfg config.ComplianceConfig, lists Watchlists, sink contracts.Sink, log *zap.Logger) *Screener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Screener{
		cfg:      cfg,
		lists:    lists,
		patterns: newPatternStore(cfg.HistoryLimit),
		sink:     sink,
		log:      log,
	}
}

// orderedKinds fixes the battery execution order.
var orderedKinds = []contracts.CheckKind{
	contracts.CheckKYC,
	contracts.CheckAML,
	contracts.CheckSanctions,
	contracts.CheckPEP,
	contracts.CheckAdverseMedia,
	contracts.CheckRegulatory,
}

// Check runs all applicable checks and aggregates the verdict.
// OK holds iff no check failed and the aggregate risk is at or below
// the high-risk threshold.
func (s *Screener) Check(ctx context.Context, intent *contracts.PaymentIntent) (*contracts.ComplianceResult, error) {
	result := &contracts.ComplianceResult{}

	for _, kind := range orderedKinds {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("compliance battery: %w", contracts.ErrCancelled)
		}
		if !s.applies(kind, intent.Amount) {
			continue
		}

		out := s.run(kind, intent)
		result.Checks = append(result.Checks, out)
		if out.Status == contracts.CheckFailed {
			result.Violations = append(result.Violations, violationFor(out))
		}
	}

	result.RiskScore = s.aggregate(result.Checks)
	result.RiskLevel = s.band(result.RiskScore)
	result.OK = !anyFailed(result.Checks) && result.RiskScore <= s.cfg.HighRiskThreshold
	result.RequiredActions = s.actions(result)

	s.patterns.observe(intent.Corridor(), result.RiskScore, result.OK)
	s.alert(intent, result)

	s.log.Info("compliance verdict",
		zap.String("reference_id", intent.ReferenceID),
		zap.Bool("ok", result.OK),
		zap.Float64("risk_score", result.RiskScore),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Strings("violations", result.Violations))
	return result, nil
}

// Patterns returns the learned pattern for a corridor, if any.
func (s *Screener) Patterns(c contracts.Corridor) (Pattern, bool) {
	return s.patterns.lookup(c)
}

func (s *Screener) run(kind contracts.CheckKind, intent *contracts.PaymentIntent) contracts.CheckOutcome {
	switch kind {
	case contracts.CheckKYC:
		return s.checkKYC(intent)
	case contracts.CheckAML:
		return s.checkAML(intent)
	case contracts.CheckSanctions:
		return s.checkSanctions(intent)
	case contracts.CheckPEP:
		return s.checkPEP(intent)
	case contracts.CheckAdverseMedia:
		return s.checkAdverseMedia(intent)
	default:
		return s.checkRegulatory(intent)
	}
}

// aggregate is the weighted mean of axis risks, normalized by the
// weights of the checks that actually participated.
func (s *Screener) aggregate(checks []contracts.CheckOutcome) float64 {
	var weighted, total float64
	for _, out := range checks {
		if out.Status == contracts.CheckError {
			continue
		}
		w := checkWeights[out.Kind]
		weighted += w * out.Risk
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// band maps an aggregate risk score to its risk level. Bands are
// configurable; defaults put critical at 0.7 and high at 0.4.
func (s *Screener) band(risk float64) contracts.RiskLevel {
	switch {
	case risk >= s.cfg.HighRiskThreshold:
		return contracts.RiskCritical
	case risk >= s.cfg.MediumRiskThreshold:
		return contracts.RiskHigh
	case risk >= 0.2:
		return contracts.RiskMedium
	default:
		return contracts.RiskLow
	}
}

func anyFailed(checks []contracts.CheckOutcome) bool {
	for _, out := range checks {
		if out.Status == contracts.CheckFailed {
			return true
		}
	}
	return false
}

// actions derives the manual follow-ups a rejected payment requires.
func (s *Screener) actions(r *contracts.ComplianceResult) []string {
	var actions []string
	for _, v := range r.Violations {
		switch v {
		case contracts.ViolationSanctionsMatch:
			actions = append(actions, "escalate to sanctions desk")
		case contracts.ViolationPEPMatch:
			actions = append(actions, "obtain enhanced due diligence file")
		case contracts.ViolationAMLThreshold:
			actions = append(actions, "file suspicious activity report")
		case contracts.ViolationKYCIncomplete:
			actions = append(actions, "collect missing identity documents")
		case contracts.ViolationRegulatoryBlock, contracts.ViolationHighRiskCorridor:
			actions = append(actions, "review corridor licensing")
		}
	}
	if r.RiskLevel == contracts.RiskCritical && len(actions) == 0 {
		actions = append(actions, "manual review required")
	}
	return actions
}

// alert emits one alert per triggered category.
func (s *Screener) alert(intent *contracts.PaymentIntent, r *contracts.ComplianceResult) {
	if !s.cfg.AlertsEnabled || s.sink == nil {
		return
	}
	if r.RiskLevel == contracts.RiskHigh || r.RiskLevel == contracts.RiskCritical {
		s.sink.Alert("high_risk", fmt.Sprintf("payment %s risk %.2f (%s)",
			intent.ReferenceID, r.RiskScore, r.RiskLevel))
	}
	for _, v := range r.Violations {
		switch v {
		case contracts.ViolationSanctionsMatch:
			s.sink.Alert("sanctions", fmt.Sprintf("payment %s matched sanctions list", intent.ReferenceID))
		case contracts.ViolationRegulatoryBlock, contracts.ViolationHighRiskCorridor:
			s.sink.Alert("regulatory", fmt.Sprintf("payment %s violates corridor rules", intent.ReferenceID))
		}
	}
}

// Worker exposes the screener as a compliance worker.
type Worker struct {
	id            contracts.WorkerID
	screener      *Screener
	maxConcurrent int
}

// NewWorker wraps a Screener as a supervised worker.
func NewWorker(id string, screener *Screener, maxConcurrent int) *Worker {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &Worker{id: contracts.WorkerID(id), screener: screener, maxConcurrent: maxConcurrent}
}

func (w *Worker) ID() contracts.WorkerID           { return w.id }
func (w *Worker) Capability() contracts.Capability { return contracts.CapCompliance }
func (w *Worker) MaxConcurrent() int               { return w.maxConcurrent }

// Process runs the battery. A rejection is a domain verdict carried in
// a failed stage result, not a worker fault.
func (w *Worker) Process(ctx context.Context, tx *contracts.StageTransaction) (*contracts.StageResult, error) {
	result, err := w.screener.Check(ctx, tx.Intent)
	if err != nil {
		return nil, err
	}

	res := &contracts.StageResult{
		StageID:    tx.StageID,
		OK:         result.OK,
		Payload:    &contracts.CompliancePayload{Result: result},
		Confidence: 1 - result.RiskScore,
	}
	if !result.OK {
		res.Kind = contracts.KindComplianceRejected
		res.Message = fmt.Sprintf("risk %.2f (%s), violations: %v",
			result.RiskScore, result.RiskLevel, result.Violations)
	}
	return res, nil
}
