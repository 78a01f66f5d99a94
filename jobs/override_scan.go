package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/donorhub/donorhub/internal/jobs"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/users"
)

// UserLister lists every user profile.
type UserLister interface {
	List(ctx context.Context) ([]users.User, error)
}

// PermissionSource supplies the current role configuration.
type PermissionSource interface {
	Load(ctx context.Context) permissions.AppPermissions
}

// OverrideFinding names one redundant override.
type OverrideFinding struct {
	UserID   string
	Override permissions.RedundantOverride
}

// OverrideScanReport summarises one scan.
type OverrideScanReport struct {
	UsersScanned int
	Findings     []OverrideFinding
}

// OverrideScanJob reports overrides that equal the role baseline. They are
// never rewritten.
type OverrideScanJob struct {
	Users   UserLister
	Config  PermissionSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverrideScanJob initialises the override scan handler.
func NewOverrideScanJob(users UserLister, config PermissionSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverrideScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverrideScanJob{Users: users, Config: config, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *OverrideScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil {
		return errors.New("override scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskOverrideScan)
	defer func() { err = tracker.End(err) }()

	report, err := j.Scan(ctx)
	if err != nil {
		j.Logger.Error("override scan failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("override scan finished",
		slog.Int("users", report.UsersScanned),
		slog.Int("redundant", len(report.Findings)),
	)
	return nil
}

// Scan inspects every user against the current configuration.
func (j *OverrideScanJob) Scan(ctx context.Context) (OverrideScanReport, error) {
	if j.Users == nil || j.Config == nil {
		return OverrideScanReport{}, errors.New("override scan: dependencies not configured")
	}
	list, err := j.Users.List(ctx)
	if err != nil {
		return OverrideScanReport{}, fmt.Errorf("override scan: list users: %w", err)
	}
	perms := j.Config.Load(ctx)

	report := OverrideScanReport{UsersScanned: len(list)}
	for _, u := range list {
		for _, r := range permissions.RedundantOverrides(perms, u.Subject()) {
			j.Logger.Warn("redundant override",
				slog.String("user_id", u.ID),
				slog.String("role", string(u.Role)),
				slog.String("kind", string(r.Kind)),
				slog.String("key", r.Key),
				slog.Bool("value", r.Value),
			)
			report.Findings = append(report.Findings, OverrideFinding{UserID: u.ID, Override: r})
		}
	}
	j.Metrics.SetOverrideScan(report.UsersScanned, len(report.Findings))
	return report, nil
}
