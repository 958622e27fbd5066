package httpadapter

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitMiddleware applies a global token-bucket limit. Per-client
// limiting belongs to the gateway in front of this service.
func rateLimitMiddleware(next http.Handler, rps float64, burst int, onThrottled func(reason string)) http.Handler {
	if burst <= 0 {
		burst = int(rps)
		if burst <= 0 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			if onThrottled != nil {
				onThrottled("rate_limit")
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware caps concurrent requests with a semaphore. A
// request waits briefly for a slot before it is shed, so short bursts
// queue instead of failing.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration, onThrottled func(reason string)) http.Handler {
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			if onThrottled != nil {
				onThrottled("backpressure")
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server overloaded"})
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request canceled"})
		}
	})
}
