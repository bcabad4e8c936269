package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/ZMukhammadRizo/lms-alfa-sub003/internal/jobs"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
)

type staticRoles struct {
	roles []rbac.Role
	err   error
}

func (s staticRoles) ListRoles(context.Context) ([]rbac.Role, error) { return s.roles, s.err }

type recordingStore struct {
	mu        sync.Mutex
	direct    []int64
	inherited []int64
	fail      map[int64]error
}

func (r *recordingStore) DirectPermissions(_ context.Context, roleID int64, useCache bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !useCache {
		return nil, errors.New("warmup must go through the cache")
	}
	if err := r.fail[roleID]; err != nil {
		return nil, err
	}
	r.direct = append(r.direct, roleID)
	return []string{"view_classes"}, nil
}

func (r *recordingStore) InheritedPermissions(_ context.Context, roleID int64, _ bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inherited = append(r.inherited, roleID)
	return []string{"view_classes"}, nil
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewWarmPermissionsTask("test")
	require.NoError(t, err)
	return task
}

func TestWarmPermissionsVisitsEveryRole(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	store := &recordingStore{}
	job := NewWarmPermissionsJob(staticRoles{roles: []rbac.Role{{ID: 1, Name: "Teacher"}, {ID: 2, Name: "ModuleLeader"}}}, store, quietLogger, metrics)

	require.NoError(t, job.Handle(context.Background(), newTask(t)))
	assert.Equal(t, []int64{1, 2}, store.direct)
	assert.Equal(t, []int64{1, 2}, store.inherited)

	count, err := testutil.GatherAndCount(registry, "lms_permission_warmup_roles_total", "lms_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWarmPermissionsSkipsFailingRoles(t *testing.T) {
	store := &recordingStore{fail: map[int64]error{1: errors.New("db down")}}
	job := NewWarmPermissionsJob(staticRoles{roles: []rbac.Role{{ID: 1}, {ID: 2}}}, store, quietLogger, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), newTask(t)))
	assert.Equal(t, []int64{2}, store.direct)
}

func TestWarmPermissionsErrors(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())

	job := NewWarmPermissionsJob(staticRoles{err: errors.New("db down")}, &recordingStore{}, quietLogger, metrics)
	assert.Error(t, job.Handle(context.Background(), newTask(t)))

	store := &recordingStore{fail: map[int64]error{1: errors.New("db down")}}
	job = NewWarmPermissionsJob(staticRoles{roles: []rbac.Role{{ID: 1}}}, store, quietLogger, metrics)
	assert.Error(t, job.Handle(context.Background(), newTask(t)))

	job = NewWarmPermissionsJob(staticRoles{}, &recordingStore{}, quietLogger, metrics)
	err := job.Handle(context.Background(), asynq.NewTask(TaskWarmPermissions, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	var unset *WarmPermissionsJob
	assert.Error(t, unset.Handle(context.Background(), newTask(t)))
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, quietLogger)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
