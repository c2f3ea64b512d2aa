package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/labnode/lims-api/internal/handler"
)

// Defaults sized for a single analyzer interface feeding results through
// one API instance.
const (
	defaultSubmissionRate  = rate.Limit(100)
	defaultSubmissionBurst = 200
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// RateLimiter throttles the whole API with one shared token bucket. Result
// submissions arrive in analyzer-driven bursts, so the burst allowance is
// deliberately generous relative to the sustained rate.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = defaultSubmissionRate
	}
	if config.Burst <= 0 {
		config.Burst = defaultSubmissionBurst
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(config.Rate, config.Burst),
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				handler.NewErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
