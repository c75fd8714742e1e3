package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/receiptpoints/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keySubmitClient = "receipts:submit:client:%s"

// SubmissionLimiter throttles receipt submissions per client with a token
// bucket shared through redis. The policy is read on every call so reloads
// of the policy file apply without a restart.
type SubmissionLimiter struct {
	enabled bool
	bucket  *TokenBucket
	policy  *config.RateLimitPolicyHolder
	log     *zap.Logger
}

type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config config.Config
	Policy *config.RateLimitPolicyHolder
	Log    *zap.Logger
}

// NewSubmissionLimiter returns a disabled limiter unless RATE_LIMIT_ENABLED is set.
func NewSubmissionLimiter(p Params) (*SubmissionLimiter, error) {
	log := p.Log.Named("ratelimit")
	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled {
		return &SubmissionLimiter{log: log}, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if p.Policy == nil {
		return nil, errors.New("rate limit policy is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	if p.Lc != nil {
		p.Lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				if err := client.Ping(pingCtx).Err(); err != nil {
					log.Warn("rate limit redis unreachable, submissions will fail open", zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	return NewSubmissionLimiterWithBucket(NewTokenBucket(client), p.Policy, log), nil
}

// NewSubmissionLimiterWithBucket builds an enabled limiter around bucket.
func NewSubmissionLimiterWithBucket(bucket *TokenBucket, policy *config.RateLimitPolicyHolder, log *zap.Logger) *SubmissionLimiter {
	return &SubmissionLimiter{
		enabled: true,
		bucket:  bucket,
		policy:  policy,
		log:     log,
	}
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow spends one submission token for clientKey.
func (l *SubmissionLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}

	policy := l.policy.Get()
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keySubmitClient, clientKey), policy.Rate, policy.Burst)
	if err != nil {
		return nil, fmt.Errorf("submission rate limit: %w", err)
	}
	return res, nil
}
