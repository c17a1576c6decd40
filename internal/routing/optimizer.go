package routing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
)

// minutesPerDay normalizes delivery time in the speed score.
const minutesPerDay = 1440.0

// highValuePenalty is applied to the compliance axis above the
// high-value threshold.
const highValuePenalty = 0.95

// Optimizer discovers, filters, scores and selects payment routes.
// Deterministic given identical candidate input and learned state.
type Optimizer struct {
	cfg   config.OptimizerConfig
	book  *CorridorBook
	cache CandidateCache
	learn *learner
	log   *zap.Logger
}

// NewOptimizer creates an Optimizer over the corridor book. A nil
// cache disables candidate caching.
func NewOptimizer(cfg config.OptimizerConfig, book *CorridorBook, cache CandidateCache, log *zap.Logger) *Optimizer {
	if log == nil {
		log = zap.NewNop()
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &Optimizer{
		cfg:   cfg,
		book:  book,
		cache: cache,
		learn: newLearner(cfg.LearningRate, cfg.HistoryLimit),
		log:   log,
	}
}

// Optimize runs the full discover -> filter -> score -> select pass.
// Returns ErrNoViableRoute when no candidate survives filtering.
func (o *Optimizer) Optimize(ctx context.Context, intent *contracts.PaymentIntent) (*contracts.OptimizationResult, error) {
	start := time.Now()

	candidates := o.candidates(ctx, intent)
	evaluated := len(candidates)

	survivors := o.filter(intent, candidates)
	if len(survivors) == 0 {
		o.log.Info("no viable route",
			zap.String("reference_id", intent.ReferenceID),
			zap.String("corridor", string(intent.FromCurrency)+"-"+string(intent.ToCurrency)),
			zap.Int("evaluated", evaluated))
		return nil, fmt.Errorf("corridor %s-%s (%d candidates evaluated): %w",
			intent.FromCurrency, intent.ToCurrency, evaluated, contracts.ErrNoViableRoute)
	}

	scores := o.score(intent, survivors)
	rank(scores)

	selected, reason := o.selectRoute(scores)

	result := &contracts.OptimizationResult{
		Selected:        selected.Route,
		Scores:          scores,
		RoutesEvaluated: evaluated,
		Elapsed:         time.Since(start),
		Confidence:      confidence(scores, selected),
		CostSavingsPct:  costSavings(scores, selected),
		Reason:          reason,
	}
	for _, sc := range scores {
		if sc.Route.ID != selected.Route.ID {
			result.Alternatives = append(result.Alternatives, sc.Route)
		}
	}

	o.log.Info("route selected",
		zap.String("reference_id", intent.ReferenceID),
		zap.String("route_id", selected.Route.ID),
		zap.String("kind", string(selected.Route.Kind)),
		zap.Float64("total_score", selected.TotalScore),
		zap.Int("evaluated", evaluated))
	return result, nil
}

// Observe feeds a realized outcome back into the learned state.
func (o *Optimizer) Observe(intent *contracts.PaymentIntent, route *contracts.Route, out contracts.RouteOutcome) {
	if !o.cfg.EnableLearning {
		return
	}
	computed := o.computedAxes(intent, route)
	if !out.RealizedFee.IsZero() && out.Amount.IsPositive() {
		ratio, _ := out.RealizedFee.Div(out.Amount).Float64()
		computed.cost = math.Max(0, 1-10*ratio)
	}
	if out.RealizedDelivery > 0 {
		computed.speed = math.Max(0, 1-out.RealizedDelivery.Minutes()/minutesPerDay)
	}
	o.learn.observe(out, computed)
}

// candidates returns discovered routes, consulting the cache first.
// A cache miss is always safe; discovery is re-run on any cache fault.
func (o *Optimizer) candidates(ctx context.Context, intent *contracts.PaymentIntent) []*contracts.Route {
	key := cacheKey(intent)
	if routes, ok := o.cache.Get(ctx, key); ok {
		return routes
	}
	routes := o.discover(intent)
	o.cache.Put(ctx, key, routes)
	return routes
}

// filter rejects candidates violating configured or intent constraints.
func (o *Optimizer) filter(intent *contracts.PaymentIntent, candidates []*contracts.Route) []*contracts.Route {
	maxDelivery := o.cfg.MaxDelivery.Std()
	if p := intent.Preferences; p != nil && p.MaxDeliveryMinutes > 0 {
		if d := time.Duration(p.MaxDeliveryMinutes) * time.Minute; d < maxDelivery {
			maxDelivery = d
		}
	}

	return lo.Filter(candidates, func(r *contracts.Route, _ int) bool {
		if r.SuccessRate < o.cfg.MinSuccessRate {
			return false
		}
		if r.EstimatedDelivery > maxDelivery {
			return false
		}
		if intent.Amount.IsPositive() {
			ratio, _ := r.EstimatedFee.Div(intent.Amount).Float64()
			if ratio > o.cfg.MaxCostPct {
				return false
			}
		}
		if p := intent.Preferences; p != nil && !p.MaxFee.IsZero() && r.EstimatedFee.GreaterThan(p.MaxFee) {
			return false
		}
		for _, excluded := range o.cfg.ExcludedProviders {
			if r.HasProvider(excluded) {
				return false
			}
		}
		return true
	})
}

// computedAxes derives the four axis scores from candidate attributes.
func (o *Optimizer) computedAxes(intent *contracts.PaymentIntent, r *contracts.Route) axisScores {
	feeRatio := 0.0
	if intent.Amount.IsPositive() {
		feeRatio, _ = r.EstimatedFee.Div(intent.Amount).Float64()
	}

	compliance := r.ComplianceScore
	if intent.Amount.GreaterThan(o.cfg.HighValueThreshold) {
		compliance *= highValuePenalty
	}

	return axisScores{
		cost:        math.Max(0, 1-10*feeRatio),
		speed:       math.Max(0, 1-r.EstimatedDelivery.Minutes()/minutesPerDay),
		reliability: r.SuccessRate,
		compliance:  compliance,
	}
}

// score computes per-axis and combined scores for every survivor.
// With learning enabled each axis is blended half-and-half with the
// learned per-route EMA.
func (o *Optimizer) score(intent *contracts.PaymentIntent, survivors []*contracts.Route) []*contracts.RouteScore {
	weights := o.cfg.Strategy.Weights(o.cfg.CustomWeights)

	scores := make([]*contracts.RouteScore, 0, len(survivors))
	for _, r := range survivors {
		axes := o.computedAxes(intent, r)
		conf := 0.5

		if o.cfg.EnableLearning {
			if learned, ok := o.learn.lookup(r.ID); ok {
				axes.cost = (axes.cost + learned.cost) / 2
				axes.speed = (axes.speed + learned.speed) / 2
				axes.reliability = (axes.reliability + learned.reliability) / 2
				axes.compliance = (axes.compliance + learned.compliance) / 2
				conf = 0.5 + 0.5*math.Min(1, float64(learned.observed)/10)
			}
		}

		scores = append(scores, &contracts.RouteScore{
			Route:            r,
			CostScore:        axes.cost,
			SpeedScore:       axes.speed,
			ReliabilityScore: axes.reliability,
			ComplianceScore:  axes.compliance,
			TotalScore: weights.Cost*axes.cost +
				weights.Speed*axes.speed +
				weights.Reliability*axes.reliability +
				weights.Compliance*axes.compliance,
			Confidence: conf,
		})
	}
	return scores
}

// rank sorts scores descending and assigns ranks 1..N. Ties break by
// lower fee, then lower delivery, then lexicographic route id.
func rank(scores []*contracts.RouteScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if math.Abs(a.TotalScore-b.TotalScore) > 1e-9 {
			return a.TotalScore > b.TotalScore
		}
		if cmp := a.Route.EstimatedFee.Cmp(b.Route.EstimatedFee); cmp != 0 {
			return cmp < 0
		}
		if a.Route.EstimatedDelivery != b.Route.EstimatedDelivery {
			return a.Route.EstimatedDelivery < b.Route.EstimatedDelivery
		}
		return a.Route.ID < b.Route.ID
	})
	for i, s := range scores {
		s.Rank = i + 1
	}
}

// selectRoute picks the top-ranked score, promoting the best route
// containing a preferred provider when one exists.
func (o *Optimizer) selectRoute(scores []*contracts.RouteScore) (*contracts.RouteScore, string) {
	top := scores[0]
	if len(o.cfg.PreferredProviders) == 0 {
		return top, fmt.Sprintf("top score %.4f under %s strategy", top.TotalScore, o.cfg.Strategy)
	}

	for _, sc := range scores {
		for _, pref := range o.cfg.PreferredProviders {
			if sc.Route.HasProvider(pref) {
				if sc.Rank == 1 {
					return sc, fmt.Sprintf("top score %.4f, preferred provider %s", sc.TotalScore, pref)
				}
				return sc, fmt.Sprintf("promoted rank %d for preferred provider %s", sc.Rank, pref)
			}
		}
	}
	return top, fmt.Sprintf("top score %.4f under %s strategy", top.TotalScore, o.cfg.Strategy)
}

// confidence reflects the margin between the selected route and the
// best alternative.
func confidence(scores []*contracts.RouteScore, selected *contracts.RouteScore) float64 {
	if len(scores) == 1 {
		return math.Min(1, math.Max(0, selected.TotalScore))
	}
	var best float64 = -1
	for _, sc := range scores {
		if sc.Route.ID != selected.Route.ID && sc.TotalScore > best {
			best = sc.TotalScore
		}
	}
	margin := selected.TotalScore - best
	return math.Min(1, math.Max(0, 0.5+margin))
}

// costSavings is the fee saved versus the most expensive scored
// candidate, as a percentage of that fee.
func costSavings(scores []*contracts.RouteScore, selected *contracts.RouteScore) float64 {
	maxFee := selected.Route.EstimatedFee
	for _, sc := range scores {
		if sc.Route.EstimatedFee.GreaterThan(maxFee) {
			maxFee = sc.Route.EstimatedFee
		}
	}
	if maxFee.IsZero() {
		return 0
	}
	saved := maxFee.Sub(selected.Route.EstimatedFee)
	pct, _ := saved.Div(maxFee).Mul(decimalHundred).Float64()
	return pct
}
