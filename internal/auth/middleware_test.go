package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

func testMiddleware(t *testing.T) (*Middleware, *shared.SessionManager, *memoryUserStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "fieldgate_session", time.Hour, false)
	store := newMemoryUserStore()
	mw := NewMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)), sessions, store)
	return mw, sessions, store
}

func loginCookie(t *testing.T, sessions *shared.SessionManager, userID string) *http.Cookie {
	t.Helper()
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(userID)
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(context.Background(), rec, sess))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func TestRequireUserResolvesActor(t *testing.T) {
	mw, sessions, store := testMiddleware(t)
	user := store.add("ada@example.com", "Passw0rd!", true)

	var got roles.Actor
	handler := mw.WithSession(mw.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mw.Principal(r)
		require.True(t, ok)
		got = actor
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(loginCookie(t, sessions, user.ID.String()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, user.ID, got.UserID)
	require.Equal(t, int64(4), got.RoleID)
	require.Equal(t, "Student", got.RoleName)
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	mw, _, _ := testMiddleware(t)

	handler := mw.WithSession(mw.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireUserRejectsDeactivated(t *testing.T) {
	mw, sessions, store := testMiddleware(t)
	user := store.add("gone@example.com", "Passw0rd!", false)

	handler := mw.WithSession(mw.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(loginCookie(t, sessions, user.ID.String()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireElevatedRejectsNormalRole(t *testing.T) {
	mw, sessions, store := testMiddleware(t)
	user := store.add("ada@example.com", "Passw0rd!", true)

	handler := mw.WithSession(mw.RequireElevated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(loginCookie(t, sessions, user.ID.String()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
