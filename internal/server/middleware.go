package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/medrate/internal/observability/context"
	"github.com/smallbiznis/medrate/internal/ratelimit"
)

const headerActorID = "X-Actor-Id"

// QuoteRateLimit throttles quote traffic per actor, falling back to the
// client IP for anonymous callers.
func QuoteRateLimit(limiter *ratelimit.QuoteLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(headerActorID))
		if key == "" {
			key = c.ClientIP()
		}

		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// actorFrom prefers an explicit actor in the body over the request header.
func actorFrom(c *gin.Context, explicit string) string {
	if actor := strings.TrimSpace(explicit); actor != "" {
		return actor
	}
	_, actorID := obscontext.ActorFromContext(c.Request.Context())
	if actorID != "" {
		return actorID
	}
	return strings.TrimSpace(c.GetHeader(headerActorID))
}
