package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

const (
	defaultCallerLimit  = 120
	defaultCallerWindow = time.Minute
)

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps authenticated callers at a fixed number of requests per
// window, falling back to the client IP when no principal is present.
// Limiter outages fail open.
func RateLimit(limiter windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scope := "caller:" + UserIDFromContext(ctx)
			if scope == "caller:" {
				scope = "ip:" + clientIP(r)
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, defaultCallerLimit, defaultCallerWindow)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "scope", scope), "rate_limit.unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"scope": scope, "attempts": count}), "rate_limit.blocked")
				}
				writeRateLimited(ctx, w, defaultCallerWindow)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
