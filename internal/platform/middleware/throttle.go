package middleware

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/janisto/hello-bench/internal/platform/respond"
)

// Throttle returns middleware enforcing a process-wide token bucket of rps
// requests per second with the given burst. Requests over budget get a 429
// problem response instead of queueing. A non-positive rps disables it.
func Throttle(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = max(1, int(rps))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				respond.WriteTooManyRequests(w, r, max(delay, time.Second))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
