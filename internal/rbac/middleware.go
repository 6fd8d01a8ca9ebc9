package rbac

import (
	"log/slog"
	"net/http"

	"github.com/fieldgate/fieldgate/internal/roles"
)

// PrincipalFunc resolves the authenticated actor from a request.
type PrincipalFunc func(r *http.Request) (roles.Actor, bool)

// Middleware wires permission-matrix authorization for HTTP handlers.
type Middleware struct {
	Service   *Service
	Principal PrincipalFunc
	Logger    *slog.Logger
}

// RequireTableMethod ensures the current actor's role holds the
// {table}.{method} permission before the wrapped handler runs.
func (m Middleware) RequireTableMethod(table, method string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := m.Principal(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := m.Service.HasPermission(r.Context(), actor.RoleID, table, method)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.String("table", table), slog.String("method", method), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
