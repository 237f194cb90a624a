package api

import (
	"net/http"
	"strings"

	"github.com/warp/attendance/attendance"
	"github.com/warp/attendance/auth"
)

// Authenticate resolves the bearer token into a Principal and stores it in
// the request context. Store principals must still exist and be active.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}

		p, err := h.Tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication required", err)
			return
		}

		if p.IsStore() {
			tenant, err := h.Store.GetTenant(r.Context(), p.TenantID)
			switch {
			case attendance.IsNotFound(err):
				writeError(w, http.StatusUnauthorized, "Authentication required", auth.ErrInvalidToken)
				return
			case err != nil:
				writeDomainError(w, err)
				return
			case !tenant.Active:
				writeCodedError(w, http.StatusForbidden, CodeStoreDisabled, "Store is disabled", nil)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// RequireStore rejects callers that are not a store.
func RequireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principal(r).IsStore() {
			writeError(w, http.StatusForbidden, "Store login required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects callers that are not the admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principal(r).IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin login required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal returns the caller set by Authenticate, or the zero Principal.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
