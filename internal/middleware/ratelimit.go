package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// EdgeRateLimit creates the outer, per-IP rate limiting middleware. It sits
// in front of authentication and sheds abusive traffic before it reaches
// the pipeline's admission gate, which does the per-tenant accounting.
func EdgeRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests(windowLength)),
	)
}

// TenantRateLimit creates per-tenant rate limiting middleware for the
// read-side endpoints that bypass the pipeline.
func TenantRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if tenantID := GetTenantID(r.Context()); tenantID != "" {
				return "tenant:" + tenantID, nil
			}
			return "ip:" + r.RemoteAddr, nil
		}),
		httprate.WithLimitHandler(tooManyRequests(windowLength)),
	)
}

func tooManyRequests(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(max(int(window.Seconds()), 1))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", retryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + retryAfter + `}`))
	}
}
