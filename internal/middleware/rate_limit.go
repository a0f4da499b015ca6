package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// ThrottleConfig holds the per-IP request throttle settings. This coarse
// throttle sits in front of the ledger-backed lockout policy and only
// blunts request floods; the lockout policy owns the security decision.
type ThrottleConfig struct {
	RequestsPerMinute int
}

// DefaultLoginThrottle returns the throttle applied to login endpoints.
func DefaultLoginThrottle() ThrottleConfig {
	return ThrottleConfig{
		RequestsPerMinute: 10,
	}
}

// ThrottleByIP creates a middleware that rate limits requests by client IP
func ThrottleByIP(config ThrottleConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"error":"rate_limit_exceeded","message":"Rate limit exceeded"}`))
		}),
	)
}
