package middleware

import (
	"net/http"
	"time"

	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/storage"
)

const (
	apiRateWindow  = time.Minute
	apiRateMaxIP   = 200
	apiRateMaxUser = 100
)

// RateLimitAPI caps requests per IP and, when authenticated, per user. The
// counters live in the same store the abuse pipeline uses, so limits hold
// across restarts when Redis backs it. Store errors let the request through.
func RateLimitAPI(store storage.RateLimitStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if x := r.Header.Get("X-Real-Ip"); x != "" {
				ip = x
			} else if x := r.Header.Get("X-Forwarded-For"); x != "" {
				ip = x
			}
			allowed, err := store.Hit(r.Context(), "api:ip:"+ip, apiRateWindow, apiRateMaxIP)
			if err != nil {
				logger.Errorf("api rate limit (ip): %v", err)
			} else if !allowed {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			if userID := GetUserID(r.Context()); userID != "" {
				allowed, err := store.Hit(r.Context(), "api:user:"+userID, apiRateWindow, apiRateMaxUser)
				if err != nil {
					logger.Errorf("api rate limit (user): %v", err)
				} else if !allowed {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
