package routing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/contracts"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCacheKeyBucketsByMagnitude(t *testing.T) {
	intent := func(amount int64) *contracts.PaymentIntent {
		return &contracts.PaymentIntent{
			Amount: decimal.NewFromInt(amount), FromCurrency: "USD", ToCurrency: "KES",
		}
	}

	if cacheKey(intent(500)) != cacheKey(intent(900)) {
		t.Error("amounts in the same decade must share a key")
	}
	if cacheKey(intent(500)) == cacheKey(intent(5000)) {
		t.Error("amounts a decade apart must not share a key")
	}

	other := intent(500)
	other.ToCurrency = "GHS"
	if cacheKey(intent(500)) == cacheKey(other) {
		t.Error("distinct corridors must not share a key")
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := NewRedisCache(testRedis(t), time.Minute, nil)
	ctx := context.Background()

	routes := []*contracts.Route{
		{
			ID:                "direct:USD-KES:mpesa",
			Kind:              contracts.RouteDirect,
			Providers:         []string{"mpesa"},
			EstimatedFee:      decimal.NewFromFloat(6.5),
			EstimatedDelivery: 5 * time.Minute,
			SuccessRate:       0.98,
			ComplianceScore:   0.95,
			Metadata:          map[string]string{"corridor": "USD-KES"},
		},
		{
			ID:        "hub:USD-EUR-KES:wise+equity",
			Kind:      contracts.RouteHub,
			Providers: []string{"wise", "equity"},
		},
	}
	c.Put(ctx, "routes:USD:KES:3", routes)

	got, ok := c.Get(ctx, "routes:USD:KES:3")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 {
		t.Fatalf("got %d routes, want 2", len(got))
	}
	if got[0].ID != routes[0].ID || got[0].Kind != routes[0].Kind {
		t.Errorf("first route = %+v, want %+v", got[0], routes[0])
	}
	if !got[0].EstimatedFee.Equal(routes[0].EstimatedFee) {
		t.Errorf("fee = %s, want %s", got[0].EstimatedFee, routes[0].EstimatedFee)
	}
	if got[0].EstimatedDelivery != 5*time.Minute {
		t.Errorf("delivery = %v, want 5m", got[0].EstimatedDelivery)
	}
	if got[0].Metadata["corridor"] != "USD-KES" {
		t.Error("metadata must survive the round trip")
	}
}

func TestRedisCacheMissAndCorruption(t *testing.T) {
	client := testRedis(t)
	c := NewRedisCache(client, time.Minute, nil)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "routes:absent"); ok {
		t.Error("missing key must miss")
	}

	// An undecodable entry degrades to a miss.
	if err := client.Set(ctx, "routes:bad", "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := c.Get(ctx, "routes:bad"); ok {
		t.Error("corrupt entry must miss")
	}
}

// recordingCache counts lookups to show the optimizer consults the
// cache before re-running discovery.
type recordingCache struct {
	store map[string][]*contracts.Route
	gets  int
	puts  int
}

func (c *recordingCache) Get(_ context.Context, key string) ([]*contracts.Route, bool) {
	c.gets++
	routes, ok := c.store[key]
	return routes, ok
}

func (c *recordingCache) Put(_ context.Context, key string, routes []*contracts.Route) {
	c.puts++
	c.store[key] = routes
}

func TestOptimizerReusesCachedCandidates(t *testing.T) {
	cache := &recordingCache{store: make(map[string][]*contracts.Route)}
	o := NewOptimizer(optimizerConfig(), kesBook(), cache, nil)

	if _, err := o.Optimize(context.Background(), usdToKES(1000)); err != nil {
		t.Fatalf("first optimize: %v", err)
	}
	if cache.puts != 1 {
		t.Fatalf("puts = %d, want 1 after a miss", cache.puts)
	}

	if _, err := o.Optimize(context.Background(), usdToKES(1000)); err != nil {
		t.Fatalf("second optimize: %v", err)
	}
	if cache.gets != 2 || cache.puts != 1 {
		t.Errorf("gets = %d, puts = %d, want a second hit without a second put", cache.gets, cache.puts)
	}
}
