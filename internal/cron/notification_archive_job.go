package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultNotificationRetentionDays = 30

type notificationArchiver interface {
	ArchiveOlderThan(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type NotificationArchiveJobParams struct {
	Logger        *logger.Logger
	Repository    notificationArchiver
	RetentionDays int
}

// NewNotificationArchiveJob archives read and dismissed notifications older
// than the retention window. Nothing is deleted.
func NewNotificationArchiveJob(params NotificationArchiveJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultNotificationRetentionDays
	}
	return &notificationArchiveJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type notificationArchiveJob struct {
	logg      *logger.Logger
	repo      notificationArchiver
	retention int
	now       func() time.Time
}

func (j *notificationArchiveJob) Name() string { return "notification-archive" }

func (j *notificationArchiveJob) Run(ctx context.Context) (int64, error) {
	now := j.now().UTC()
	cutoff := now.Add(-time.Duration(j.retention) * 24 * time.Hour)
	archived, err := j.repo.ArchiveOlderThan(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("archive notifications: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_archived":  archived,
	}), "notification archive complete")
	return archived, nil
}
