package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/open-audit/open-audit/internal/observability"
	"github.com/open-audit/open-audit/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. The session
// identifies the user; every check resolves the user's current role and
// permissions from the store, so revocations take effect immediately.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Require ensures the current user has the given permission.
func (m Middleware) Require(permission string) func(http.Handler) http.Handler {
	return m.RequireAny(permission)
}

// RequireAny ensures the current user has at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				m.deny(w)
				return
			}
			for _, perm := range normalized {
				granted, err := m.Service.HasPermission(r.Context(), userID, perm)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("rbac require any", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if granted {
					m.Metrics.ObservePermissionCheck("granted")
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w)
		})
	}
}

// RequireAll ensures the current user has all of the permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				m.deny(w)
				return
			}
			for _, perm := range normalized {
				granted, err := m.Service.HasPermission(r.Context(), userID, perm)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("rbac require all", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if !granted {
					m.deny(w)
					return
				}
			}
			m.Metrics.ObservePermissionCheck("granted")
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter) {
	m.Metrics.ObservePermissionCheck("denied")
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
