package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// RouteKind classifies a candidate payment route.
type RouteKind string

const (
	RouteDirect   RouteKind = "direct"
	RouteHub      RouteKind = "hub"
	RouteMultiHop RouteKind = "multi_hop"
)

// Route is a candidate path a payment can take between two currencies.
type Route struct {
	ID                string
	Kind              RouteKind
	Providers         []string
	EstimatedFee      decimal.Decimal
	EstimatedDelivery time.Duration
	SuccessRate       float64
	ComplianceScore   float64
	Metadata          map[string]string
}

// HasProvider reports whether the route passes through the provider.
func (r *Route) HasProvider(provider string) bool {
	for _, p := range r.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// RouteScore holds the per-axis and combined scores for one candidate.
// All sub-scores are in [0,1]; Rank is 1-based within the scored set.
type RouteScore struct {
	Route            *Route
	CostScore        float64
	SpeedScore       float64
	ReliabilityScore float64
	ComplianceScore  float64
	TotalScore       float64
	Rank             int
	Confidence       float64
}

// OptimizationResult is the output of the route optimizer.
type OptimizationResult struct {
	Selected        *Route
	Alternatives    []*Route
	Scores          []*RouteScore
	RoutesEvaluated int
	Elapsed         time.Duration
	Confidence      float64
	CostSavingsPct  float64
	Reason          string
}

// RouteOutcome is fed back to the optimizer after a run finishes so
// learned per-route scores can adapt.
type RouteOutcome struct {
	RouteID          string
	Success          bool
	RealizedFee      decimal.Decimal
	RealizedDelivery time.Duration
	Amount           decimal.Decimal
}
