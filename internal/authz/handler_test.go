package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

func newRouter(t *testing.T, f *fixture, sess *shared.Session) http.Handler {
	t.Helper()
	directory := profileDirectory{42: {ID: 42, RoleName: roles.Teacher, IsActive: true}}
	sync := users.NewSync(directory, f.resolver, storeSync{f.store}, quietLogger)
	h := NewHandler(quietLogger, f.authz, sync)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess != nil {
				r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/api", h.MountRoutes)
	h.MountDashboards(r)
	return r
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestCheckEndpointModes(t *testing.T) {
	f := newFixture(t)
	sm := newSessions(t)
	sess := newSession(t, sm)
	storeRecord(t, sess, hierarchical(roles.ModuleLeader, roles.Teacher), ptr(moduleLeaderID), nil)
	router := newRouter(t, f, sess)

	cases := []struct {
		query   string
		allowed bool
	}{
		{"name=view_classes&mode=local", false},
		{"name=access_teacher_subjects&mode=stored", true},
		{"name=view_classes&mode=stored", false},
		{"name=view_classes&mode=inherited", true},
		{"name=view_classes", false},
	}
	for _, tc := range cases {
		rec := get(t, router, http.MethodGet, "/api/permissions/check?"+tc.query)
		require.Equal(t, http.StatusOK, rec.Code, tc.query)
		var body checkResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.allowed, body.Allowed, tc.query)
	}

	assert.Equal(t, http.StatusBadRequest, get(t, router, http.MethodGet, "/api/permissions/check?name=x&mode=bogus").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, http.MethodGet, "/api/permissions/check").Code)
}

func TestSyncEndpoint(t *testing.T) {
	f := newFixture(t)
	sm := newSessions(t)
	sess := newSession(t, sm)
	storeRecord(t, sess, roles.Simple(roles.Teacher), nil, nil)
	router := newRouter(t, f, sess)

	rec := get(t, router, http.MethodPost, "/api/permissions/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"permissions":["view_classes"]}`, rec.Body.String())
	assert.Equal(t, []string{shared.PermViewClasses}, loadRecord(t, sess).Permissions)

	users.ClearRecord(sess)
	rec = get(t, router, http.MethodPost, "/api/permissions/sync")
	assert.Contains(t, rec.Body.String(), `"ok":false`)
}

func TestMineEndpoint(t *testing.T) {
	f := newFixture(t)
	sm := newSessions(t)
	sess := newSession(t, sm)
	storeRecord(t, sess, hierarchical(roles.RoleManager, roles.Admin), ptr(roleManagerID), []string{shared.PermManageRoles})
	router := newRouter(t, f, sess)

	rec := get(t, router, http.MethodGet, "/api/permissions/mine")
	require.Equal(t, http.StatusOK, rec.Code)
	var body mineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, roles.Admin, body.Role)
	assert.Equal(t, []string{shared.PermManageRoles}, body.Direct)
	assert.ElementsMatch(t, []string{shared.PermManageRoles, shared.PermManageUsers, shared.PermViewUsers}, body.Inherited)
}

func TestDashboards(t *testing.T) {
	f := newFixture(t)
	sm := newSessions(t)
	sess := newSession(t, sm)
	storeRecord(t, sess, hierarchical(roles.ModuleLeader, roles.Teacher), ptr(moduleLeaderID), []string{shared.PermAccessTeacherSubjects})
	router := newRouter(t, f, sess)

	rec := get(t, router, http.MethodGet, "/teacher/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	var body dashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, roles.Teacher, body.Role)
	assert.Equal(t, "/teacher/dashboard", body.Dashboard)

	rec = get(t, router, http.MethodGet, "/admin/dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/teacher/dashboard", rec.Header().Get("Location"))

	rec = get(t, router, http.MethodGet, "/teacher/dashboard")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Flash)
	assert.Equal(t, AccessDeniedMessage, body.Flash.Message)

	rec = get(t, router, http.MethodGet, "/api/menu")
	assert.Contains(t, rec.Body.String(), "/teacher/subjects")
}
