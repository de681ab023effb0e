package pricefeed

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"papertrader/internal/errors"
)

// DefaultPricePrefix is prepended to tickers to form price keys.
const DefaultPricePrefix = "price:"

// RedisSource reads prices stored as plain or JSON-encoded numbers under
// prefix+ticker.
type RedisSource struct {
	client *redis.Client
	prefix string
}

// NewRedisSource connects to the Redis server at url.
func NewRedisSource(url, prefix string) (*RedisSource, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConnectionFailed, "parsing redis url %q: %v", url, err)
	}
	return NewRedisSourceWithClient(redis.NewClient(opts), prefix), nil
}

// NewRedisSourceWithClient uses an existing client.
func NewRedisSourceWithClient(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultPricePrefix
	}
	return &RedisSource{client: client, prefix: prefix}
}

// Key returns the Redis key holding ticker's price.
func (s *RedisSource) Key(ticker string) string {
	return s.prefix + strings.ToUpper(strings.TrimSpace(ticker))
}

// Ping checks the connection.
func (s *RedisSource) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(errors.ErrConnectionFailed, "redis ping: %v", err)
	}
	return nil
}

// Lookup implements Source.
func (s *RedisSource) Lookup(ctx context.Context, ticker string) (float64, error) {
	data, err := s.client.Get(ctx, s.Key(ticker)).Result()
	if err == redis.Nil {
		return 0, errors.Wrapf(errors.ErrNoPrice, "no price for %s", ticker)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", ticker, err)
	}
	price, err := parsePrice(data)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrNoPrice, "bad price for %s: %v", ticker, err)
	}
	return price, nil
}

// StorePrices writes prices in one pipeline. A zero ttl keeps them forever.
func (s *RedisSource) StorePrices(ctx context.Context, prices map[string]float64, ttl time.Duration) error {
	if len(prices) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for ticker, price := range prices {
		pipe.Set(ctx, s.Key(ticker), strconv.FormatFloat(price, 'f', -1, 64), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save prices: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

// parsePrice accepts "123.45", "\"123.45\"" and surrounding whitespace.
func parsePrice(data string) (float64, error) {
	v := strings.TrimSpace(data)
	if unquoted, err := strconv.Unquote(v); err == nil {
		v = strings.TrimSpace(unquoted)
	}
	price, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("price must be positive, got %v", price)
	}
	return price, nil
}
