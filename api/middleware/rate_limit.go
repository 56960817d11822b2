package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hopround/hopround-backend/api/responses"
	"github.com/hopround/hopround-backend/pkg/config"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
)

// RateLimiterStore is the counter backend, normally Redis.
type RateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// JoinRateLimit throttles route joins per client IP and per route. The join
// endpoint is the only unauthenticated write, so it carries the brunt of
// abuse traffic.
func JoinRateLimit(cfg config.JoinRateLimitConfig, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || cfg.Window <= 0 || (cfg.IPLimit <= 0 && cfg.PerRoute <= 0) {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cfg.IPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					key := fmt.Sprintf("rl:ip:join:%s", ip)
					if blocked(ctx, logg, w, store, key, cfg.Window, int64(cfg.IPLimit), "ip") {
						return
					}
				}
			}
			if cfg.PerRoute > 0 {
				if routeID := chi.URLParam(r, "routeID"); routeID != "" {
					key := fmt.Sprintf("rl:route:join:%s", routeID)
					if blocked(ctx, logg, w, store, key, cfg.Window, int64(cfg.PerRoute), "route") {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func blocked(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store RateLimiterStore, key string, window time.Duration, limit int64, scope string) bool {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return true
	}
	if count <= limit {
		return false
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(window.Seconds()),
		})
		logg.Warn(logCtx, "join.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
	return true
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
