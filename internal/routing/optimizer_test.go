package routing

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
)

func kesBook() *CorridorBook {
	return NewCorridorBook([]ProviderEdge{
		{
			Provider: "mpesa", From: "USD", To: "KES",
			FlatFee: decimal.NewFromInt(2), FeePct: decimal.NewFromFloat(0.004),
			Delivery: 5 * time.Minute, SuccessRate: 0.98, ComplianceScore: 0.95,
		},
		{
			Provider: "airtel", From: "USD", To: "KES",
			FlatFee: decimal.NewFromFloat(1.5), FeePct: decimal.NewFromFloat(0.01),
			Delivery: 15 * time.Minute, SuccessRate: 0.92, ComplianceScore: 0.90,
		},
		{
			Provider: "slowpay", From: "USD", To: "KES",
			FlatFee: decimal.NewFromFloat(0.5), FeePct: decimal.NewFromFloat(0.001),
			Delivery: 48 * time.Hour, SuccessRate: 0.99, ComplianceScore: 0.99,
		},
		{
			Provider: "shady", From: "USD", To: "KES",
			FlatFee: decimal.NewFromInt(1), FeePct: decimal.NewFromFloat(0.002),
			Delivery: 10 * time.Minute, SuccessRate: 0.30, ComplianceScore: 0.50,
		},
	})
}

func optimizerConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		Strategy:           config.StrategyCostFirst,
		MinSuccessRate:     0.5,
		MaxDelivery:        config.Duration(24 * time.Hour),
		MaxCostPct:         0.1,
		EnabledRouteKinds:  []contracts.RouteKind{contracts.RouteDirect},
		HighValueThreshold: decimal.NewFromInt(10000),
		LearningRate:       0.5,
		HistoryLimit:       100,
	}
}

func usdToKES(amount int64) *contracts.PaymentIntent {
	return &contracts.PaymentIntent{
		ReferenceID:  "ref-1",
		Amount:       decimal.NewFromInt(amount),
		FromCurrency: "USD",
		ToCurrency:   "KES",
	}
}

func TestOptimizeSelectsCheapestDirect(t *testing.T) {
	o := NewOptimizer(optimizerConfig(), kesBook(), nil, nil)

	res, err := o.Optimize(context.Background(), usdToKES(1000))
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Selected.ID != "direct:USD-KES:mpesa" {
		t.Errorf("selected %s, want mpesa direct", res.Selected.ID)
	}
	// All four edges are discovered; slowpay and shady fall to filtering.
	if res.RoutesEvaluated != 4 {
		t.Errorf("evaluated = %d, want 4", res.RoutesEvaluated)
	}
	if len(res.Scores) != 2 {
		t.Fatalf("scored = %d, want 2 survivors", len(res.Scores))
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0].ID != "direct:USD-KES:airtel" {
		t.Errorf("alternatives = %+v, want the airtel route", res.Alternatives)
	}
	if res.Scores[0].Rank != 1 || res.Scores[1].Rank != 2 {
		t.Errorf("ranks = %d,%d, want 1,2", res.Scores[0].Rank, res.Scores[1].Rank)
	}
	// mpesa (fee 6.00) against airtel (fee 11.50).
	if res.CostSavingsPct <= 0 {
		t.Errorf("cost savings = %v, want positive", res.CostSavingsPct)
	}
	if res.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want above the 0.5 base", res.Confidence)
	}
}

func TestOptimizeNoViableRoute(t *testing.T) {
	o := NewOptimizer(optimizerConfig(), kesBook(), nil, nil)

	intent := usdToKES(1000)
	intent.ToCurrency = "JPY"
	_, err := o.Optimize(context.Background(), intent)
	if !errors.Is(err, contracts.ErrNoViableRoute) {
		t.Fatalf("got %v, want ErrNoViableRoute", err)
	}
	if !strings.Contains(err.Error(), "USD-JPY") {
		t.Errorf("error %q must name the corridor", err)
	}
}

func TestFilterRejections(t *testing.T) {
	edge := func(mutate func(*ProviderEdge)) *CorridorBook {
		e := ProviderEdge{
			Provider: "solo", From: "USD", To: "KES",
			FlatFee: decimal.NewFromInt(2), FeePct: decimal.NewFromFloat(0.004),
			Delivery: 5 * time.Minute, SuccessRate: 0.98, ComplianceScore: 0.95,
		}
		mutate(&e)
		return NewCorridorBook([]ProviderEdge{e})
	}

	tests := []struct {
		name   string
		book   *CorridorBook
		cfg    func(*config.OptimizerConfig)
		intent func(*contracts.PaymentIntent)
	}{
		{
			name: "success rate below floor",
			book: edge(func(e *ProviderEdge) { e.SuccessRate = 0.4 }),
			cfg:  func(*config.OptimizerConfig) {}, intent: func(*contracts.PaymentIntent) {},
		},
		{
			name: "delivery above ceiling",
			book: edge(func(e *ProviderEdge) { e.Delivery = 25 * time.Hour }),
			cfg:  func(*config.OptimizerConfig) {}, intent: func(*contracts.PaymentIntent) {},
		},
		{
			name: "fee ratio above max cost",
			book: edge(func(e *ProviderEdge) { e.FeePct = decimal.NewFromFloat(0.2) }),
			cfg:  func(*config.OptimizerConfig) {}, intent: func(*contracts.PaymentIntent) {},
		},
		{
			name: "excluded provider",
			book: edge(func(*ProviderEdge) {}),
			cfg: func(c *config.OptimizerConfig) {
				c.ExcludedProviders = []string{"solo"}
			},
			intent: func(*contracts.PaymentIntent) {},
		},
		{
			name: "intent fee cap",
			book: edge(func(*ProviderEdge) {}),
			cfg:  func(*config.OptimizerConfig) {},
			intent: func(p *contracts.PaymentIntent) {
				p.Preferences = &contracts.Preferences{MaxFee: decimal.NewFromInt(1)}
			},
		},
		{
			name: "intent delivery cap",
			book: edge(func(*ProviderEdge) {}),
			cfg:  func(*config.OptimizerConfig) {},
			intent: func(p *contracts.PaymentIntent) {
				p.Preferences = &contracts.Preferences{MaxDeliveryMinutes: 2}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := optimizerConfig()
			tt.cfg(&cfg)
			intent := usdToKES(1000)
			tt.intent(intent)

			o := NewOptimizer(cfg, tt.book, nil, nil)
			if _, err := o.Optimize(context.Background(), intent); !errors.Is(err, contracts.ErrNoViableRoute) {
				t.Errorf("got %v, want ErrNoViableRoute", err)
			}
		})
	}
}

func TestHubDiscovery(t *testing.T) {
	book := NewCorridorBook([]ProviderEdge{
		{
			Provider: "wise", From: "GBP", To: "EUR",
			FlatFee: decimal.NewFromInt(1), FeePct: decimal.NewFromFloat(0.002),
			Delivery: 30 * time.Minute, SuccessRate: 0.97, ComplianceScore: 0.95,
		},
		{
			Provider: "equity", From: "EUR", To: "KES",
			FlatFee: decimal.NewFromInt(2), FeePct: decimal.NewFromFloat(0.003),
			Delivery: time.Hour, SuccessRate: 0.95, ComplianceScore: 0.92,
		},
	})

	cfg := optimizerConfig()
	cfg.EnabledRouteKinds = []contracts.RouteKind{contracts.RouteDirect, contracts.RouteHub}
	cfg.HubCurrencies = []contracts.CurrencyCode{"EUR"}
	o := NewOptimizer(cfg, book, nil, nil)

	intent := usdToKES(1000)
	intent.FromCurrency = "GBP"
	res, err := o.Optimize(context.Background(), intent)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Selected.Kind != contracts.RouteHub {
		t.Fatalf("kind = %s, want hub", res.Selected.Kind)
	}
	if len(res.Selected.Providers) != 2 || res.Selected.Providers[0] != "wise" || res.Selected.Providers[1] != "equity" {
		t.Errorf("providers = %v, want [wise equity]", res.Selected.Providers)
	}
	// Legs fold: fees add, delivery adds, success multiplies.
	wantFee := decimal.NewFromInt(8) // (1 + 2) + (2 + 3)
	if !res.Selected.EstimatedFee.Equal(wantFee) {
		t.Errorf("fee = %s, want %s", res.Selected.EstimatedFee, wantFee)
	}
	if res.Selected.EstimatedDelivery != 90*time.Minute {
		t.Errorf("delivery = %v, want 90m", res.Selected.EstimatedDelivery)
	}
	if math.Abs(res.Selected.SuccessRate-0.97*0.95) > 1e-9 {
		t.Errorf("success rate = %v, want %v", res.Selected.SuccessRate, 0.97*0.95)
	}
}

func TestMultiHopDiscovery(t *testing.T) {
	book := NewCorridorBook([]ProviderEdge{
		{Provider: "a", From: "NGN", To: "USD", FlatFee: decimal.NewFromInt(1),
			Delivery: 10 * time.Minute, SuccessRate: 0.95, ComplianceScore: 0.9},
		{Provider: "b", From: "USD", To: "EUR", FlatFee: decimal.NewFromInt(1),
			Delivery: 10 * time.Minute, SuccessRate: 0.95, ComplianceScore: 0.9},
		{Provider: "c", From: "EUR", To: "KES", FlatFee: decimal.NewFromInt(1),
			Delivery: 10 * time.Minute, SuccessRate: 0.95, ComplianceScore: 0.9},
	})

	cfg := optimizerConfig()
	cfg.EnabledRouteKinds = []contracts.RouteKind{contracts.RouteMultiHop}
	cfg.MaxHops = 3
	o := NewOptimizer(cfg, book, nil, nil)

	intent := usdToKES(1000)
	intent.FromCurrency = "NGN"
	res, err := o.Optimize(context.Background(), intent)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Selected.Kind != contracts.RouteMultiHop {
		t.Fatalf("kind = %s, want multi_hop", res.Selected.Kind)
	}
	if want := "multi:NGN-USD-EUR-KES:a+b+c"; res.Selected.ID != want {
		t.Errorf("id = %s, want %s", res.Selected.ID, want)
	}
}

func TestPreferredProviderPromotion(t *testing.T) {
	cfg := optimizerConfig()
	cfg.PreferredProviders = []string{"airtel"}
	o := NewOptimizer(cfg, kesBook(), nil, nil)

	res, err := o.Optimize(context.Background(), usdToKES(1000))
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Selected.ID != "direct:USD-KES:airtel" {
		t.Errorf("selected %s, want the promoted airtel route", res.Selected.ID)
	}
	if !strings.Contains(res.Reason, "promoted") {
		t.Errorf("reason %q must state the promotion", res.Reason)
	}
}

func TestTieBreakDeterminism(t *testing.T) {
	same := func(provider string) ProviderEdge {
		return ProviderEdge{
			Provider: provider, From: "USD", To: "KES",
			FlatFee: decimal.NewFromInt(2), FeePct: decimal.NewFromFloat(0.004),
			Delivery: 5 * time.Minute, SuccessRate: 0.98, ComplianceScore: 0.95,
		}
	}
	o := NewOptimizer(optimizerConfig(), NewCorridorBook([]ProviderEdge{same("beta"), same("alpha")}), nil, nil)

	for i := 0; i < 5; i++ {
		res, err := o.Optimize(context.Background(), usdToKES(1000))
		if err != nil {
			t.Fatalf("optimize: %v", err)
		}
		// Identical scores, fees and deliveries fall through to the id.
		if res.Selected.ID != "direct:USD-KES:alpha" {
			t.Fatalf("selected %s on pass %d, want alpha", res.Selected.ID, i)
		}
	}
}

func TestHighValueCompliancePenalty(t *testing.T) {
	o := NewOptimizer(optimizerConfig(), kesBook(), nil, nil)

	low := o.computedAxes(usdToKES(1000), &contracts.Route{
		EstimatedFee: decimal.NewFromInt(6), SuccessRate: 0.98, ComplianceScore: 0.95,
	})
	high := o.computedAxes(usdToKES(50000), &contracts.Route{
		EstimatedFee: decimal.NewFromInt(6), SuccessRate: 0.98, ComplianceScore: 0.95,
	})
	if math.Abs(low.compliance-0.95) > 1e-9 {
		t.Errorf("low-value compliance = %v, want 0.95", low.compliance)
	}
	if math.Abs(high.compliance-0.95*0.95) > 1e-9 {
		t.Errorf("high-value compliance = %v, want %v", high.compliance, 0.95*0.95)
	}
}

func TestLearningDemotesFailingRoute(t *testing.T) {
	cfg := optimizerConfig()
	cfg.Strategy = config.StrategyReliabilityFirst
	cfg.EnableLearning = true
	o := NewOptimizer(cfg, kesBook(), nil, nil)

	intent := usdToKES(1000)
	res, err := o.Optimize(context.Background(), intent)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Selected.ID != "direct:USD-KES:mpesa" {
		t.Fatalf("initial selection = %s, want mpesa", res.Selected.ID)
	}

	// Repeated failures drag the learned reliability EMA down.
	for i := 0; i < 4; i++ {
		o.Observe(intent, res.Selected, contracts.RouteOutcome{
			RouteID: res.Selected.ID,
			Success: false,
		})
	}

	res, err = o.Optimize(context.Background(), intent)
	if err != nil {
		t.Fatalf("optimize after observations: %v", err)
	}
	if res.Selected.ID != "direct:USD-KES:airtel" {
		t.Errorf("selected %s, want airtel after mpesa failures", res.Selected.ID)
	}

	for _, sc := range res.Scores {
		if sc.Route.ID == "direct:USD-KES:mpesa" {
			// 4 observations lift confidence to 0.5 + 0.5*(4/10).
			if math.Abs(sc.Confidence-0.7) > 1e-9 {
				t.Errorf("mpesa confidence = %v, want 0.7", sc.Confidence)
			}
		}
	}
}

func TestObserveDisabledWithoutLearning(t *testing.T) {
	o := NewOptimizer(optimizerConfig(), kesBook(), nil, nil)

	o.Observe(usdToKES(1000), &contracts.Route{ID: "direct:USD-KES:mpesa"},
		contracts.RouteOutcome{RouteID: "direct:USD-KES:mpesa", Success: false})
	if o.learn.size() != 0 {
		t.Error("learning disabled must record nothing")
	}
}

func TestLearnerPrunesOldestRoute(t *testing.T) {
	l := newLearner(0.5, 2)
	seed := axisScores{cost: 0.9, speed: 0.9, reliability: 0.9, compliance: 0.9}

	l.observe(contracts.RouteOutcome{RouteID: "r-1", Success: true}, seed)
	l.observe(contracts.RouteOutcome{RouteID: "r-2", Success: true}, seed)
	l.observe(contracts.RouteOutcome{RouteID: "r-3", Success: true}, seed)

	if l.size() != 2 {
		t.Fatalf("size = %d, want 2", l.size())
	}
	if _, ok := l.lookup("r-1"); ok {
		t.Error("oldest route must be pruned")
	}
	if _, ok := l.lookup("r-3"); !ok {
		t.Error("newest route must remain")
	}
}
