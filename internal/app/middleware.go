package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/parkwind-erp/parkwind-erp/internal/observability"
	"github.com/parkwind-erp/parkwind-erp/internal/shared"
)

const defaultRateWindow = time.Minute

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Parkwind middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	requests := 120
	if cfg.Config != nil && cfg.Config.RateLimitRequests > 0 {
		requests = cfg.Config.RateLimitRequests
	}
	rateWindow := defaultRateWindow
	if cfg.Config != nil && cfg.Config.RateLimitWindow > 0 {
		rateWindow = cfg.Config.RateLimitWindow
	}

	return []func(http.Handler) http.Handler{
		secureMiddleware.Handler,
		httprate.LimitByIP(requests, rateWindow),
		cfg.Metrics.Middleware,
		TenantMiddleware,
	}
}

// TenantMiddleware resolves the caller's tenant from the X-Tenant-ID header
// into context. Authentication itself lives in the surrounding gateway; this
// service only scopes its queries by the tenant it is handed.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Tenant-ID"); raw != "" {
			if tenantID, err := strconv.ParseInt(raw, 10, 64); err == nil && tenantID > 0 {
				r = r.WithContext(shared.ContextWithTenant(r.Context(), tenantID))
			}
		}
		next.ServeHTTP(w, r)
	})
}
