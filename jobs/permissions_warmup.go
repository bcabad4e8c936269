package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ZMukhammadRizo/lms-alfa-sub003/internal/jobs"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RoleLister lists every role to warm.
type RoleLister interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
}

// PermissionWarmer fills the permission caches through normal reads.
type PermissionWarmer interface {
	DirectPermissions(ctx context.Context, roleID int64, useCache bool) ([]string, error)
	InheritedPermissions(ctx context.Context, roleID int64, useCache bool) ([]string, error)
}

// WarmPermissionsJob reads the direct and inherited permissions of every role
// so that the shared caches are populated before users ask.
type WarmPermissionsJob struct {
	Roles   RoleLister
	Store   PermissionWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewWarmPermissionsJob wires dependencies for the warmup handler.
func NewWarmPermissionsJob(roles RoleLister, store PermissionWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmPermissionsJob {
	return &WarmPermissionsJob{Roles: roles, Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks.
func (j *WarmPermissionsJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Roles == nil || j.Store == nil {
		return errors.New("permission warmup: handler not configured")
	}
	var payload WarmPermissionsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskWarmPermissions)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	start := time.Now()

	roles, err := j.Roles.ListRoles(ctx)
	if err != nil {
		logger.Error("list roles", slog.Any("error", err))
		return err
	}
	warmed, failed := 0, 0
	for _, role := range roles {
		roleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := j.warmRole(roleCtx, role.ID)
		cancel()
		if err != nil {
			failed++
			logger.Warn("warm role", slog.Int64("role_id", role.ID), slog.String("role", role.Name), slog.Any("error", err))
			continue
		}
		warmed++
	}
	j.metrics().AddWarmed(warmed)

	logger.Info("completed permission warmup", slog.Int("roles", warmed), slog.Int("failed", failed), slog.Duration("duration", time.Since(start)))
	if warmed == 0 && failed > 0 {
		return errors.New("permission warmup: every role failed")
	}
	return nil
}

func (j *WarmPermissionsJob) warmRole(ctx context.Context, roleID int64) error {
	if _, err := j.Store.DirectPermissions(ctx, roleID, true); err != nil {
		return err
	}
	_, err := j.Store.InheritedPermissions(ctx, roleID, true)
	return err
}

func (j *WarmPermissionsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskWarmPermissions))
	}
	return slog.Default().With(slog.String("job", TaskWarmPermissions))
}

func (j *WarmPermissionsJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
