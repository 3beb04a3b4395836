package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
)

// HeaderXTenantID carries the caller's tenant identity, resolved upstream by
// the platform's auth gateway.
const HeaderXTenantID = "X-Tenant-ID"

// contextKey is unexported so other packages cannot collide with our keys.
type contextKey string

const tenantKey contextKey = "tenant_id"

// RequireTenant rejects requests without a tenant header and stores the
// tenant id in the request context for handlers.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(HeaderXTenantID)
		if tenantID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "tenant_required",
				"message": HeaderXTenantID + " header is required",
			})
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantFromContext returns the tenant id stored by RequireTenant, or "".
func TenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantKey).(string)
	return id
}
