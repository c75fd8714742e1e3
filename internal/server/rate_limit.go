package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/receiptpoints/internal/observability/logger"
	"github.com/smallbiznis/receiptpoints/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonSubmitRate = "submit-rate"

type submissionLimiter interface {
	Enabled() bool
	Allow(ctx context.Context, clientKey string) (*ratelimit.RateLimitResult, error)
}

// SubmissionRateLimit throttles receipt submissions per client address.
// A limiter backend failure lets the request through.
func (s *Server) SubmissionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("submission rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			s.denySubmission(c, res)
			return
		}
		c.Next()
	}
}

func (s *Server) denySubmission(c *gin.Context, res *ratelimit.RateLimitResult) {
	ctx := c.Request.Context()
	endpoint := normalizeRateLimitEndpoint(c)
	logger.FromContext(ctx).Warn("submission rate limit exceeded",
		zap.String("reason", rateLimitReasonSubmitRate),
		zap.String("endpoint", endpoint),
	)
	s.metrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonSubmitRate)

	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonSubmitRate)
	AbortWithError(c, ErrRateLimited)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
