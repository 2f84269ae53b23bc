// Package middleware holds the echo middleware shared by the HTTP API.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RestaurantHeader carries the caller's restaurant id on requests whose body holds it.
const RestaurantHeader = "X-Restaurant-ID"

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	mu     sync.Mutex
	limit  rate.Limit
	burst  int
	limits map[string]*rate.Limiter
}

// NewRateLimiter creates a rate limiter allowing rps requests per second per key with the given burst.
// Non-positive values fall back to 10 requests per second with a burst of 20.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Every(time.Second / 10)
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		limit:  limit,
		burst:  burst,
		limits: make(map[string]*rate.Limiter),
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limits[key] = limiter
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Wait waits for a request to be allowed.
// Returns error if the context is cancelled or rate limit exceeded.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.getLimiter(key).Wait(ctx)
}

// Keys returns the number of tracked keys.
func (rl *RateLimiter) Keys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

// RateLimitKey picks the bucket of a request: the :id path parameter, then the
// restaurant header, then the client IP.
func RateLimitKey(c echo.Context) string {
	if id := c.Param("id"); id != "" {
		return "restaurant:" + id
	}
	if id := c.Request().Header.Get(RestaurantHeader); id != "" {
		return "restaurant:" + id
	}
	return "ip:" + c.RealIP()
}

// Middleware rejects requests over the limit. onReject builds the error returned to echo.
func (rl *RateLimiter) Middleware(onReject func(c echo.Context) error) echo.MiddlewareFunc {
	if onReject == nil {
		onReject = func(echo.Context) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(RateLimitKey(c)) {
				return onReject(c)
			}
			return next(c)
		}
	}
}
