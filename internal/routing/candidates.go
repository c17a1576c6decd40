// Package routing implements the route optimizer: discover, filter,
// score and select candidate payment routes, and adapt scores from
// observed outcomes.
package routing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/contracts"
)

// decimalHundred converts fee ratios to percentages.
var decimalHundred = decimal.NewFromInt(100)

// ProviderEdge describes one provider's service on a currency corridor.
type ProviderEdge struct {
	Provider        string
	From            contracts.CurrencyCode
	To              contracts.CurrencyCode
	FlatFee         decimal.Decimal
	FeePct          decimal.Decimal // fraction of amount, e.g. 0.004
	Delivery        time.Duration
	SuccessRate     float64
	ComplianceScore float64
}

func (e ProviderEdge) fee(amount decimal.Decimal) decimal.Decimal {
	return e.FlatFee.Add(amount.Mul(e.FeePct))
}

// CorridorBook is the static table of provider corridors candidates
// are enumerated from. It is read-only after construction.
type CorridorBook struct {
	edges map[contracts.Corridor][]ProviderEdge
}

// NewCorridorBook builds a book from provider edges.
func NewCorridorBook(edges []ProviderEdge) *CorridorBook {
	b := &CorridorBook{edges: make(map[contracts.Corridor][]ProviderEdge)}
	for _, e := range edges {
		c := contracts.Corridor{From: e.From, To: e.To}
		b.edges[c] = append(b.edges[c], e)
	}
	// Stable provider order per corridor for deterministic discovery.
	for _, es := range b.edges {
		sort.Slice(es, func(i, j int) bool { return es[i].Provider < es[j].Provider })
	}
	return b
}

// Edges returns the provider edges serving a corridor.
func (b *CorridorBook) Edges(from, to contracts.CurrencyCode) []ProviderEdge {
	return b.edges[contracts.Corridor{From: from, To: to}]
}

// Reachable returns the currencies directly reachable from the given one.
func (b *CorridorBook) Reachable(from contracts.CurrencyCode) []contracts.CurrencyCode {
	var out []contracts.CurrencyCode
	for c := range b.edges {
		if c.From == from {
			out = append(out, c.To)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return lo.Uniq(out)
}

// discover enumerates candidates for every enabled route kind.
// Deterministic given the same book and config.
func (o *Optimizer) discover(intent *contracts.PaymentIntent) []*contracts.Route {
	var routes []*contracts.Route
	for _, kind := range o.cfg.EnabledRouteKinds {
		switch kind {
		case contracts.RouteDirect:
			routes = append(routes, o.discoverDirect(intent)...)
		case contracts.RouteHub:
			routes = append(routes, o.discoverHub(intent)...)
		case contracts.RouteMultiHop:
			routes = append(routes, o.discoverMultiHop(intent)...)
		}
	}
	return routes
}

// discoverDirect yields one candidate per provider edge on the corridor.
func (o *Optimizer) discoverDirect(intent *contracts.PaymentIntent) []*contracts.Route {
	edges := o.book.Edges(intent.FromCurrency, intent.ToCurrency)
	routes := make([]*contracts.Route, 0, len(edges))
	for _, e := range edges {
		routes = append(routes, &contracts.Route{
			ID:                fmt.Sprintf("direct:%s-%s:%s", e.From, e.To, e.Provider),
			Kind:              contracts.RouteDirect,
			Providers:         []string{e.Provider},
			EstimatedFee:      e.fee(intent.Amount),
			EstimatedDelivery: e.Delivery,
			SuccessRate:       e.SuccessRate,
			ComplianceScore:   e.ComplianceScore,
			Metadata:          map[string]string{"corridor": string(e.From) + "-" + string(e.To)},
		})
	}
	return routes
}

// discoverHub yields one candidate per configured hub currency that is
// distinct from both endpoints and reachable on both legs. The best
// (lowest-fee) edge is taken per leg.
func (o *Optimizer) discoverHub(intent *contracts.PaymentIntent) []*contracts.Route {
	var routes []*contracts.Route
	for _, hub := range o.cfg.HubCurrencies {
		if hub == intent.FromCurrency || hub == intent.ToCurrency {
			continue
		}
		first := o.cheapestEdge(intent.FromCurrency, hub, intent.Amount)
		second := o.cheapestEdge(hub, intent.ToCurrency, intent.Amount)
		if first == nil || second == nil {
			continue
		}
		routes = append(routes, composeRoute(contracts.RouteHub, intent.Amount,
			[]ProviderEdge{*first, *second},
			fmt.Sprintf("hub:%s-%s-%s:%s+%s", intent.FromCurrency, hub, intent.ToCurrency,
				first.Provider, second.Provider)))
	}
	return routes
}

// discoverMultiHop composes corridors breadth-first up to MaxHops
// intermediate currencies. Disabled when MaxHops is zero.
func (o *Optimizer) discoverMultiHop(intent *contracts.PaymentIntent) []*contracts.Route {
	if o.cfg.MaxHops == 0 {
		return nil
	}

	type path struct {
		at    contracts.CurrencyCode
		edges []ProviderEdge
	}
	frontier := []path{{at: intent.FromCurrency}}
	var routes []*contracts.Route

	for hops := 0; hops <= o.cfg.MaxHops && len(frontier) > 0; hops++ {
		var next []path
		for _, p := range frontier {
			for _, to := range o.book.Reachable(p.at) {
				if to == intent.FromCurrency || visited(p.edges, to) {
					continue
				}
				e := o.cheapestEdge(p.at, to, intent.Amount)
				if e == nil {
					continue
				}
				grown := path{at: to, edges: append(append([]ProviderEdge{}, p.edges...), *e)}
				if to == intent.ToCurrency {
					// Two or more intermediate legs; single-leg and
					// hub shapes are covered by the other kinds.
					if len(grown.edges) > 2 {
						routes = append(routes, composeRoute(contracts.RouteMultiHop,
							intent.Amount, grown.edges, multiHopID(intent, grown.edges)))
					}
					continue
				}
				next = append(next, grown)
			}
		}
		frontier = next
	}
	return routes
}

func visited(edges []ProviderEdge, c contracts.CurrencyCode) bool {
	for _, e := range edges {
		if e.To == c || e.From == c {
			return true
		}
	}
	return false
}

func multiHopID(intent *contracts.PaymentIntent, edges []ProviderEdge) string {
	currencies := make([]string, 0, len(edges)+1)
	providers := make([]string, 0, len(edges))
	currencies = append(currencies, string(intent.FromCurrency))
	for _, e := range edges {
		currencies = append(currencies, string(e.To))
		providers = append(providers, e.Provider)
	}
	return fmt.Sprintf("multi:%s:%s", strings.Join(currencies, "-"), strings.Join(providers, "+"))
}

func (o *Optimizer) cheapestEdge(from, to contracts.CurrencyCode, amount decimal.Decimal) *ProviderEdge {
	edges := o.book.Edges(from, to)
	var best *ProviderEdge
	for i := range edges {
		e := &edges[i]
		if best == nil || e.fee(amount).LessThan(best.fee(amount)) {
			best = e
		}
	}
	return best
}

// composeRoute folds a leg sequence into one candidate: fees add,
// delivery adds, success rates multiply, compliance takes the minimum.
func composeRoute(kind contracts.RouteKind, amount decimal.Decimal, edges []ProviderEdge, id string) *contracts.Route {
	fee := decimal.Zero
	var delivery time.Duration
	success := 1.0
	compliance := 1.0
	providers := make([]string, 0, len(edges))
	for _, e := range edges {
		fee = fee.Add(e.fee(amount))
		delivery += e.Delivery
		success *= e.SuccessRate
		if e.ComplianceScore < compliance {
			compliance = e.ComplianceScore
		}
		providers = append(providers, e.Provider)
	}
	return &contracts.Route{
		ID:                id,
		Kind:              kind,
		Providers:         providers,
		EstimatedFee:      fee,
		EstimatedDelivery: delivery,
		SuccessRate:       success,
		ComplianceScore:   compliance,
	}
}
