package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/listenupapp/listenup-sync/internal/http/response"
	"github.com/listenupapp/listenup-sync/internal/ratelimit"
)

// RateLimitMiddleware throttles requests per client IP and answers 429 with Retry-After
// once a client's bucket is empty.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			if ok, retryAfter := limiter.Reserve(key); !ok {
				logger.Warn("rate limit exceeded", "ip", key, "path", r.URL.Path, "retry_after", retryAfter)
				response.TooManyRequests(w, retryAfter, logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the request's remote host. middleware.RealIP has already applied
// X-Forwarded-For and X-Real-IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
