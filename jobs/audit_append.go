package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/donorhub/donorhub/internal/audit"
	jobmetrics "github.com/donorhub/donorhub/internal/jobs"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditEnqueuer is an audit.Sink that hands entries to the worker. Tasks are
// never retried so an entry is attempted at most once.
type AuditEnqueuer struct {
	client Enqueuer
}

// NewAuditEnqueuer constructs an AuditEnqueuer.
func NewAuditEnqueuer(client Enqueuer) *AuditEnqueuer {
	return &AuditEnqueuer{client: client}
}

// Append enqueues entry.
func (e *AuditEnqueuer) Append(ctx context.Context, entry audit.Entry) error {
	if e == nil || e.client == nil {
		return errors.New("jobs: audit enqueuer not configured")
	}
	task, err := NewAuditAppendTask(entry)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("jobs: enqueue audit entry: %w", err)
	}
	return nil
}

// AuditAppendJob writes queued entries into the journal.
type AuditAppendJob struct {
	Sink    audit.Sink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditAppendJob constructs the handler.
func NewAuditAppendJob(sink audit.Sink, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditAppendJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditAppendJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAuditAppend tasks. Failures are logged and skipped.
func (j *AuditAppendJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sink == nil {
		return errors.New("audit append: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAuditAppend)
	defer func() { err = tracker.End(err) }()

	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		j.Logger.Debug("audit entry dropped", slog.String("reason", "decode"), slog.Any("error", err))
		return fmt.Errorf("audit append: decode: %v: %w", err, asynq.SkipRetry)
	}
	if err := j.Sink.Append(ctx, entry); err != nil {
		j.Logger.Debug("audit entry dropped", slog.String("action", entry.Action), slog.Any("error", err))
		return fmt.Errorf("audit append: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}
