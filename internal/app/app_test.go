package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/auth"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	_ "github.com/ZMukhammadRizo/lms-alfa-sub003/internal/testing/guard"
)

const tokenSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfig(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("TOKEN_SECRET", tokenSecret)
	t.Setenv("PERMISSION_CACHE", " Redis ")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, CacheRedis, cfg.PermissionCache)
	assert.Equal(t, 5*time.Second, cfg.PermissionCheckTimeout)
	assert.Equal(t, 1024, cfg.PermissionCacheSize)
	assert.False(t, cfg.IsProduction())

	t.Setenv("PERMISSION_CACHE", "disk")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("PERMISSION_CACHE", "memory")
	t.Setenv("TOKEN_SECRET", "short")
	_, err = LoadConfig()
	assert.Error(t, err)
}

type noSource struct{}

func (noSource) DirectPermissionNames(context.Context, int64) ([]string, error) {
	return []string{"view_classes"}, nil
}

func (noSource) RoleParent(context.Context, int64) (*int64, error) { return nil, nil }

func TestNewPermissionStoreSelectsCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, broadcaster := NewPermissionStore(PermissionStoreParams{Config: &Config{PermissionCache: CacheRedis, PermissionCacheTTL: time.Minute}, Source: noSource{}, Redis: client})
	assert.Nil(t, broadcaster, "redis caches are shared and need no broadcast")

	store, broadcaster := NewPermissionStore(PermissionStoreParams{Config: &Config{PermissionCache: CacheLRU, PermissionCacheSize: 8}, Source: noSource{}, Redis: client})
	assert.NotNil(t, broadcaster)
	perms, err := store.DirectPermissions(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"view_classes"}, perms)

	_, broadcaster = NewPermissionStore(PermissionStoreParams{Config: &Config{PermissionCache: CacheMemory}, Source: noSource{}})
	assert.Nil(t, broadcaster)
}

func TestRedisPermissionStoreIsShared(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg := &Config{PermissionCache: CacheRedis, PermissionCacheTTL: time.Minute}

	warm, _ := NewPermissionStore(PermissionStoreParams{Config: cfg, Source: noSource{}, Redis: client})
	_, err := warm.DirectPermissions(context.Background(), 3, true)
	require.NoError(t, err)

	keys := mr.Keys()
	assert.Contains(t, keys, "rbac:perm:"+rbac.KindDirect+":3:v1")
}

type stack struct {
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	tokens   *auth.TokenManager
	handler  http.Handler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := &stack{
		sessions: shared.NewSessionManager(client, "lms_session", "secret", time.Hour, false),
		csrf:     shared.NewCSRFManager("csrf"),
		tokens:   auth.NewTokenManager(tokenSecret, time.Hour),
	}
	cfg := MiddlewareConfig{SessionManager: s.sessions, CSRFManager: s.csrf, Tokens: s.tokens, CSRFExempt: []string{"/auth/login"}}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		sess.Set("seen", r.URL.Path)
		w.Header().Set("X-Session", sess.ID)
		if shared.IsBearer(r.Context()) {
			w.Header().Set("X-Bearer", "1")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	s.handler = SessionMiddleware(cfg)(CSRFMiddleware(cfg)(inner))
	return s
}

func TestBearerTokenLocatesSession(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	sess, err := s.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser("42")
	require.NoError(t, s.sessions.Save(ctx, sess))

	token, _, err := s.tokens.Issue(42, sess.ID)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/permissions/sync", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code, "bearer requests skip csrf")
	assert.Equal(t, sess.ID, rec.Header().Get("X-Session"))
	assert.Equal(t, "1", rec.Header().Get("X-Bearer"))
	assert.Empty(t, rec.Result().Cookies(), "bearer sessions set no cookie")

	reloaded, err := s.sessions.LoadByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "/api/permissions/sync", reloaded.Get("seen"))
}

func TestBearerTokenRejected(t *testing.T) {
	s := newStack(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	token, _, err := s.tokens.Issue(42, "gone")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFForCookieSessions(t *testing.T) {
	s := newStack(t)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	sess, err := s.sessions.LoadByID(context.Background(), cookies[0].Value)
	require.NoError(t, err)
	token, err := s.csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.NoError(t, s.sessions.Save(context.Background(), sess))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(shared.CSRFHeader, token)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareStackServesRequests(t *testing.T) {
	require.True(t, InTestMode())
	s := newStack(t)
	cfg := MiddlewareConfig{SessionManager: s.sessions, CSRFManager: s.csrf, Tokens: s.tokens}

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	stack := MiddlewareStack(cfg)
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	for i := 0; i < 150; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		if i == 0 {
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.NotEmpty(t, rec.Result().Cookies())
		}
	}
}
