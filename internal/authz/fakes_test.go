package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mapStorage map[string]string

func (m mapStorage) Get(key string) string { return m[key] }
func (m mapStorage) Set(key, value string) { m[key] = value }
func (m mapStorage) Delete(key string)     { delete(m, key) }

type panicStorage struct{}

func (panicStorage) Get(string) string { panic("storage unavailable") }
func (panicStorage) Set(string, string) {}
func (panicStorage) Delete(string)      {}

// graphSource is an in-memory role graph.
type graphSource struct {
	mu      sync.Mutex
	parents map[int64]*int64
	grants  map[int64][]string
	fail    map[int64]error
	calls   int
	block   chan struct{}
}

func (g *graphSource) DirectPermissionNames(_ context.Context, roleID int64) ([]string, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err := g.fail[roleID]; err != nil {
		return nil, err
	}
	return append([]string(nil), g.grants[roleID]...), nil
}

func (g *graphSource) RoleParent(_ context.Context, roleID int64) (*int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	parent, ok := g.parents[roleID]
	if !ok {
		return nil, rbac.ErrNotFound
	}
	return parent, nil
}

func (g *graphSource) setGrants(roleID int64, perms ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[roleID] = perms
}

func (g *graphSource) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func ptr(v int64) *int64 { return &v }

const (
	teacherID int64 = iota + 1
	moduleLeaderID
	adminID
	roleManagerID
	studentID
	superAdminID
)

func lmsGraph() *graphSource {
	return &graphSource{
		parents: map[int64]*int64{
			teacherID:      nil,
			moduleLeaderID: ptr(teacherID),
			adminID:        nil,
			roleManagerID:  ptr(adminID),
			studentID:      nil,
			superAdminID:   nil,
		},
		grants: map[int64][]string{
			teacherID:      {shared.PermViewClasses},
			moduleLeaderID: {shared.PermAccessTeacherSubjects},
			adminID:        {shared.PermManageUsers, shared.PermManageRoles, shared.PermViewUsers},
			roleManagerID:  {shared.PermManageRoles},
			studentID:      {shared.PermViewGrades},
		},
		fail: map[int64]error{},
	}
}

type stubResolver struct {
	mu    sync.Mutex
	ids   map[string]int64
	err   error
	calls int
}

func (s *stubResolver) ResolveRoleID(_ context.Context, _ int64, roleName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	id, ok := s.ids[roleName]
	if !ok {
		return 0, rbac.ErrNotFound
	}
	return id, nil
}

func lmsResolver() *stubResolver {
	return &stubResolver{ids: map[string]int64{
		roles.Teacher:      teacherID,
		roles.ModuleLeader: moduleLeaderID,
		roles.Admin:        adminID,
		roles.RoleManager:  roleManagerID,
		roles.Student:      studentID,
		roles.SuperAdmin:   superAdminID,
	}}
}

type decisionCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (d *decisionCounter) ObserveDecision(gate, result string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts == nil {
		d.counts = map[string]int{}
	}
	d.counts[gate+":"+result]++
}

func (d *decisionCounter) get(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[key]
}

type fixture struct {
	source   *graphSource
	store    *rbac.Store
	resolver *stubResolver
	authz    *Authorizer
	recorder *decisionCounter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{source: lmsGraph(), resolver: lmsResolver(), recorder: &decisionCounter{}}
	f.store = rbac.NewStore(f.source, rbac.WithLogger(quietLogger))
	opts = append([]Option{WithLogger(quietLogger), WithRecorder(f.recorder)}, opts...)
	f.authz = New(f.store, f.resolver, opts...)
	return f
}

// storeSync adapts the store to what users.Sync expects.
type storeSync struct{ store *rbac.Store }

func (s storeSync) DirectPermissions(ctx context.Context, roleID int64) ([]string, error) {
	return s.store.DirectPermissions(ctx, roleID, true)
}

func (s storeSync) ClearCache(ctx context.Context) { s.store.ClearCache(ctx) }

func hierarchical(name, parent string) roles.Ref {
	if parent == "" {
		return roles.Hierarchical(name, nil)
	}
	p := roles.Hierarchical(parent, nil)
	return roles.Hierarchical(name, &p)
}

func storeRecord(t *testing.T, st users.Storage, role roles.Ref, roleID *int64, perms []string) {
	t.Helper()
	require.NoError(t, users.SaveRecord(st, users.Record{ID: 42, Role: role, RoleID: roleID, Permissions: perms}))
}

func loadRecord(t *testing.T, st users.Storage) *users.Record {
	t.Helper()
	rec, err := users.LoadRecord(st)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func newSessions(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "lms_session", "test-secret", time.Hour, false)
}

func newSession(t *testing.T, sm *shared.SessionManager) *shared.Session {
	t.Helper()
	sess, err := sm.Load(context.Background(), httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	sess.SetUser("42")
	return sess
}

var errBoom = errors.New("boom")
