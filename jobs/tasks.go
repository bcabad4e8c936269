package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWarmPermissions refills the permission caches for every role.
	TaskWarmPermissions = "rbac:warm_permissions"
)

// WarmPermissionsPayload describes a warmup request. Reason is only logged.
type WarmPermissionsPayload struct {
	Reason string `json:"reason"`
}

// NewWarmPermissionsTask constructs an Asynq task.
func NewWarmPermissionsTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(WarmPermissionsPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarmPermissions, data), nil
}
