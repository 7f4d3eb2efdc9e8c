package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payboard/internal/application"
	"payboard/internal/domain"
	"payboard/internal/infrastructure/telemetry"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	keyPrefix          = "payboard:"
	defaultTTL         = 10 * time.Second
	defaultReceiptTTL  = time.Hour
	handleVersionField = ":version"
)

// Observer receives one call per cache lookup with the lookup kind
// ("payments", "payment", "stats") and "hit" or "miss".
type Observer func(kind, result string)

type Config struct {
	TTL        time.Duration
	ReceiptTTL time.Duration
	Observer   Observer
}

// NewClient connects to Redis and verifies the connection. An empty address
// returns a nil client, which disables caching.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// CachedSource is a read-through cache in front of a PaymentSource. Keys for
// list and stats reads embed a per-handle version; bumping the version makes
// every cached read for that handle unreachable.
type CachedSource struct {
	base       application.PaymentSource
	cache      *redis.Client
	ttl        time.Duration
	receiptTTL time.Duration
	observe    Observer
}

func NewCachedSource(base application.PaymentSource, cache *redis.Client, cfg Config) (*CachedSource, error) {
	if base == nil {
		return nil, errors.New("base payment source is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.ReceiptTTL <= 0 {
		cfg.ReceiptTTL = defaultReceiptTTL
	}
	observe := cfg.Observer
	if observe == nil {
		observe = func(string, string) {}
	}
	return &CachedSource{
		base:       base,
		cache:      cache,
		ttl:        cfg.TTL,
		receiptTTL: cfg.ReceiptTTL,
		observe:    observe,
	}, nil
}

func (s *CachedSource) ListPayments(ctx context.Context, query application.PaymentQuery) (domain.PaymentPage, error) {
	if s.cache == nil {
		return s.base.ListPayments(ctx, query)
	}
	version, ok := s.handleVersion(ctx, query.Receiver)
	if !ok {
		return s.base.ListPayments(ctx, query)
	}
	key := paymentsKey(version, query)
	return readThrough(ctx, s, "payments", key, s.ttl, func() (domain.PaymentPage, error) {
		return s.base.ListPayments(ctx, query)
	})
}

func (s *CachedSource) SenderStats(ctx context.Context, receiver string) ([]domain.SenderAggregate, error) {
	if s.cache == nil {
		return s.base.SenderStats(ctx, receiver)
	}
	version, ok := s.handleVersion(ctx, receiver)
	if !ok {
		return s.base.SenderStats(ctx, receiver)
	}
	key := keyPrefix + "stats:" + keySegment(receiver) + ":v" + version
	return readThrough(ctx, s, "stats", key, s.ttl, func() ([]domain.SenderAggregate, error) {
		return s.base.SenderStats(ctx, receiver)
	})
}

// GetPayment caches receipts for the longer receipt TTL. Settled payments do
// not change, so receipt keys are not versioned.
func (s *CachedSource) GetPayment(ctx context.Context, txHash string) (domain.PaymentRecord, error) {
	if s.cache == nil {
		return s.base.GetPayment(ctx, txHash)
	}
	key := keyPrefix + "payment:" + txHash
	return readThrough(ctx, s, "payment", key, s.receiptTTL, func() (domain.PaymentRecord, error) {
		return s.base.GetPayment(ctx, txHash)
	})
}

// InvalidateHandle bumps the handle's cache version.
func (s *CachedSource) InvalidateHandle(ctx context.Context, handle string) error {
	if s.cache == nil {
		return nil
	}
	return bumpVersion(ctx, s.cache, handle)
}

// Invalidator bumps handle versions for processes that never read through
// the cache, such as the refresher.
type Invalidator struct {
	cache *redis.Client
}

func NewInvalidator(cache *redis.Client) (*Invalidator, error) {
	if cache == nil {
		return nil, errors.New("redis client is required")
	}
	return &Invalidator{cache: cache}, nil
}

func (i *Invalidator) InvalidateHandle(ctx context.Context, handle string) error {
	return bumpVersion(ctx, i.cache, handle)
}

func bumpVersion(ctx context.Context, cache *redis.Client, handle string) error {
	ctx, span := telemetry.StartSpan(ctx, "cache.invalidate", attribute.String("receiver.handle", handle))
	err := cache.Incr(ctx, versionKey(handle)).Err()
	telemetry.EndSpan(span, err)
	return err
}

func (s *CachedSource) handleVersion(ctx context.Context, handle string) (string, bool) {
	version, err := s.cache.Get(ctx, versionKey(handle)).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

// readThrough serves key from Redis or loads, stores and returns it. Redis
// failures fall through to load; load errors are never cached.
func readThrough[T any](ctx context.Context, s *CachedSource, kind, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, "cache."+kind, attribute.String("cache.key", key))
	defer span.End()

	if cached, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		var value T
		if err := json.Unmarshal(cached, &value); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			s.observe(kind, "hit")
			return value, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))
	s.observe(kind, "miss")

	value, err := load()
	if err != nil {
		return value, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	_ = s.cache.Set(ctx, key, payload, ttl).Err()
	return value, nil
}

func versionKey(handle string) string {
	return keyPrefix + "handle:" + keySegment(handle) + handleVersionField
}

// keySegment escapes ':' and '=' so a handle cannot mimic the key layout.
func keySegment(handle string) string {
	return url.QueryEscape(handle)
}

func paymentsKey(version string, query application.PaymentQuery) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(keyPrefix)
	b.WriteString("payments:")
	b.WriteString(keySegment(query.Receiver))
	b.WriteString(":v")
	b.WriteString(version)
	b.WriteString(":page=")
	b.WriteString(strconv.Itoa(query.Page))
	b.WriteString(":per=")
	b.WriteString(strconv.Itoa(query.PerPage))
	b.WriteString(":sort=")
	if query.SortBy != "" {
		b.WriteString(query.SortBy)
	} else {
		b.WriteString("default")
	}
	b.WriteString(":tokens=")
	if len(query.TokenSymbols) > 0 {
		b.WriteString(strings.Join(query.TokenSymbols, ","))
	} else {
		b.WriteString("any")
	}
	return b.String()
}
