package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/contracts"
)

// CandidateCache caches discovered candidate sets keyed by corridor
// and amount bucket. Best-effort: a miss is always safe, and a stale
// candidate set cannot cause incorrect settlement because idempotency
// at the adapter layer is the authority.
type CandidateCache interface {
	Get(ctx context.Context, key string) ([]*contracts.Route, bool)
	Put(ctx context.Context, key string, routes []*contracts.Route)
}

// NopCache disables candidate caching.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]*contracts.Route, bool) { return nil, false }
func (NopCache) Put(context.Context, string, []*contracts.Route)       {}

// cacheKey buckets the amount by order of magnitude so nearby amounts
// share a candidate set.
func cacheKey(intent *contracts.PaymentIntent) string {
	bucket := 0
	for amt := intent.Amount; amt.GreaterThanOrEqual(decimal.NewFromInt(10)); amt = amt.Div(decimal.NewFromInt(10)) {
		bucket++
	}
	return fmt.Sprintf("routes:%s:%s:%d", intent.FromCurrency, intent.ToCurrency, bucket)
}

// RedisCache is a Redis-backed candidate cache with TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisCache creates a Redis-backed candidate cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// cachedRoute is the wire shape of a cached candidate.
type cachedRoute struct {
	ID                string                 `json:"id"`
	Kind              contracts.RouteKind    `json:"kind"`
	Providers         []string               `json:"providers"`
	EstimatedFee      decimal.Decimal        `json:"estimated_fee"`
	EstimatedDelivery time.Duration          `json:"estimated_delivery"`
	SuccessRate       float64                `json:"success_rate"`
	ComplianceScore   float64                `json:"compliance_score"`
	Metadata          map[string]string      `json:"metadata,omitempty"`
}

// Get returns the cached candidate set, if present and decodable.
func (c *RedisCache) Get(ctx context.Context, key string) ([]*contracts.Route, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("candidate cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var cached []cachedRoute
	if err := json.Unmarshal(data, &cached); err != nil {
		c.log.Warn("candidate cache decode failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	routes := make([]*contracts.Route, 0, len(cached))
	for _, cr := range cached {
		routes = append(routes, &contracts.Route{
			ID:                cr.ID,
			Kind:              cr.Kind,
			Providers:         cr.Providers,
			EstimatedFee:      cr.EstimatedFee,
			EstimatedDelivery: cr.EstimatedDelivery,
			SuccessRate:       cr.SuccessRate,
			ComplianceScore:   cr.ComplianceScore,
			Metadata:          cr.Metadata,
		})
	}
	return routes, true
}

// Put stores the candidate set with the configured TTL. Failures are
// logged and swallowed.
func (c *RedisCache) Put(ctx context.Context, key string, routes []*contracts.Route) {
	cached := make([]cachedRoute, 0, len(routes))
	for _, r := range routes {
		cached = append(cached, cachedRoute{
			ID:                r.ID,
			Kind:              r.Kind,
			Providers:         r.Providers,
			EstimatedFee:      r.EstimatedFee,
			EstimatedDelivery: r.EstimatedDelivery,
			SuccessRate:       r.SuccessRate,
			ComplianceScore:   r.ComplianceScore,
			Metadata:          r.Metadata,
		})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		c.log.Warn("candidate cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("candidate cache write failed", zap.String("key", key), zap.Error(err))
	}
}
