package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creatorpay/internal/config"
)

const keyClaimIP = "claims:ip:%s"

// ClaimLimiter throttles the public claim endpoints per client IP. Claim
// tokens are unguessable, but the endpoint is unauthenticated, so the bucket
// caps how fast anyone can probe it. Limits come from the hot-reloaded payout
// config, read on every call.
type ClaimLimiter struct {
	bucket *TokenBucket
	holder *config.PayoutConfigHolder
}

func NewClaimLimiter(client *redis.Client, holder *config.PayoutConfigHolder) *ClaimLimiter {
	if client == nil || holder == nil {
		return nil
	}
	return &ClaimLimiter{
		bucket: NewTokenBucket(client),
		holder: holder,
	}
}

func (l *ClaimLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.holder != nil
}

func (l *ClaimLimiter) Allow(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}

	claims := l.holder.Get().Claims
	rate := float64(claims.RatePerMinute) / 60.0
	return l.bucket.Allow(ctx, fmt.Sprintf(keyClaimIP, clientIP), rate, claims.Burst)
}
