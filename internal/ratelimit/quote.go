package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/medrate/internal/config"
	"go.uber.org/zap"
)

const keyQuoteClient = "medrate:quote:client:%s"

// QuoteLimiter throttles premium quote requests per client. A nil or
// disabled limiter allows everything.
type QuoteLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewQuoteLimiter returns nil when redis or a positive rate is missing.
func NewQuoteLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *QuoteLimiter {
	if client == nil || cfg.QuoteRateLimit <= 0 {
		return nil
	}
	burst := cfg.QuoteRateBurst
	if burst <= 0 {
		burst = 1
	}
	return &QuoteLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.QuoteRateLimit,
		burst:  burst,
		log:    log.Named("ratelimit.quote"),
	}
}

func (l *QuoteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open when redis errors so a cache outage never blocks quoting.
func (l *QuoteLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "anonymous"
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyQuoteClient, clientKey), l.rate, l.burst)
	if err != nil {
		l.log.Warn("quote rate limit check failed", zap.Error(err))
		return &RateLimitResult{Allowed: true}, nil
	}
	return res, nil
}
