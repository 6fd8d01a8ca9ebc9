package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fieldgate/fieldgate/internal/platform/httpx"
	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

type actorContextKey struct{}

// Middleware resolves the session into an authenticated principal and
// provides the route guards the domain handlers mount.
type Middleware struct {
	logger   *slog.Logger
	sessions *shared.SessionManager
	users    UserStore
}

// NewMiddleware builds a Middleware instance.
func NewMiddleware(logger *slog.Logger, sessions *shared.SessionManager, userStore UserStore) *Middleware {
	return &Middleware{logger: logger, sessions: sessions, users: userStore}
}

// WithSession loads the request's session, makes it available in context and
// commits it after the handler runs.
func (m *Middleware) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.sessions.Load(r.Context(), r)
		if err != nil {
			m.logger.Error("load session", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		ctx := shared.ContextWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
		if err := m.sessions.Commit(ctx, w, sess); err != nil {
			m.logger.Error("commit session", slog.Any("error", err))
		}
	})
}

// RequireUser admits only authenticated requests and stores the resolved
// actor in context.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.resolve(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireElevated admits only Super User and Admin principals.
func (m *Middleware) RequireElevated(next http.Handler) http.Handler {
	return m.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := m.Principal(r)
		if !ok || !actor.Tier().Elevated() {
			httpx.RespondError(w, shared.Fail(shared.ErrForbidden, "elevated role required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// Principal returns the actor resolved by RequireUser.
func (m *Middleware) Principal(r *http.Request) (roles.Actor, bool) {
	actor, ok := r.Context().Value(actorContextKey{}).(roles.Actor)
	return actor, ok
}

// resolve turns the session's user reference into an Actor, re-reading the
// account so role changes and deactivation take effect immediately.
func (m *Middleware) resolve(r *http.Request) (roles.Actor, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return roles.Actor{}, shared.Fail(shared.ErrInvalidCredentials, "not authenticated")
	}
	userID, err := uuid.Parse(sess.User())
	if err != nil {
		return roles.Actor{}, shared.Fail(shared.ErrInvalidCredentials, "not authenticated")
	}
	user, err := m.users.GetWithRole(r.Context(), userID)
	if err != nil {
		return roles.Actor{}, shared.Fail(shared.ErrInvalidCredentials, "not authenticated")
	}
	if !user.IsActive {
		return roles.Actor{}, shared.Fail(shared.ErrForbidden, "account is deactivated")
	}
	return roles.Actor{UserID: user.ID, RoleID: user.RoleID, RoleName: user.RoleName}, nil
}

var _ roles.GuardMiddleware = (*Middleware)(nil)
