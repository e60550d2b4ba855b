package httpserver

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/preflight/governor/internal/apperr"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/ratelimit"
	"github.com/preflight/governor/internal/telemetry"
)

// seqCounter disambiguates same-millisecond requests within the
// sliding-window sorted set; it only needs to be unique per process.
var seqCounter uint64

// RateLimit enforces a sliding window and always sets X-RateLimit-*
// headers, plus Retry-After when the request is denied. It runs before
// RequireAPIKey so an invalid or unauthenticated X-API-Key guess is
// throttled before it ever reaches the auth lookup, keyed on
// r.RemoteAddr and defaultLimit since no identity is attached to the
// context yet.
func RateLimit(limiter *ratelimit.Limiter, defaultLimit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			limit := defaultLimit
			if id := auth.FromContext(r.Context()); id != nil {
				if id.APIKeyID != nil {
					key = id.APIKeyID.String()
				}
				if id.RateLimit > 0 {
					limit = id.RateLimit
				}
			}

			seq := strconv.FormatUint(atomic.AddUint64(&seqCounter, 1), 10)
			result, err := limiter.Allow(r.Context(), key, limit, seq)
			if err != nil {
				telemetry.RateLimitHitsTotal.WithLabelValues("degraded").Inc()
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(result.ResetAfterSeconds))

			if !result.Allowed {
				telemetry.RateLimitHitsTotal.WithLabelValues("denied").Inc()
				w.Header().Set("Retry-After", strconv.Itoa(result.ResetAfterSeconds))
				RespondAppErr(w, apperr.RateLimited(apperr.CodeRateLimitExceeded, "rate limit exceeded"))
				return
			}
			telemetry.RateLimitHitsTotal.WithLabelValues("allowed").Inc()

			next.ServeHTTP(w, r)
		})
	}
}
