package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/donorhub/donorhub/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditAppend persists one audit entry off the request path.
	TaskAuditAppend = "audit:append"
	// TaskOverrideScan reports per-user overrides equal to the role baseline.
	TaskOverrideScan = "permissions:override_scan"
)

// NewAuditAppendTask wraps entry in a task.
func NewAuditAppendTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode audit entry: %w", err)
	}
	return asynq.NewTask(TaskAuditAppend, data), nil
}

// NewOverrideScanTask constructs the override scan task.
func NewOverrideScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverrideScan, nil)
}
