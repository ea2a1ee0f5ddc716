package notification

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Unread notifications are kept at least this long
const unreadRetentionDays = 180

// CleanupJob handles notification retention cleanup
type CleanupJob struct {
	repo          Repository
	retentionDays int
	now           func() time.Time
}

// NewCleanupJob creates a cleanup job
func NewCleanupJob(repo Repository, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = 90 // Default 90 days
	}
	return &CleanupJob{
		repo:          repo,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Schedule registers the job on the cron scheduler
func (j *CleanupJob) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to cleanup old notifications")
		}
	})
	return err
}

// RunOnce deletes read notifications past retention and unread ones past
// the longer unread retention
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	now := j.now()

	read, err := j.repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -j.retentionDays), true)
	if err != nil {
		return 0, err
	}

	unreadDays := unreadRetentionDays
	if j.retentionDays > unreadDays {
		unreadDays = j.retentionDays
	}
	unread, err := j.repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -unreadDays), false)
	if err != nil {
		return read, err
	}

	if total := read + unread; total > 0 {
		log.Info().
			Int64("deleted_read", read).
			Int64("deleted_unread", unread).
			Int("retention_days", j.retentionDays).
			Msg("Cleaned up old notifications")
	}
	return read + unread, nil
}
