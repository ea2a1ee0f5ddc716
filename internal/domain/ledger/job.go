package ledger

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SweepJob runs SweepDue on a cron schedule
type SweepJob struct {
	service   *Service
	batchSize int
	timeout   time.Duration
}

// NewSweepJob creates a scheduled sweep over at most batchSize users per run
func NewSweepJob(service *Service, batchSize int) *SweepJob {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &SweepJob{service: service, batchSize: batchSize, timeout: 5 * time.Minute}
}

// Schedule registers the job on the cron scheduler
func (j *SweepJob) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		j.Run(ctx)
	})
	return err
}

// Run performs one scheduled sweep
func (j *SweepJob) Run(ctx context.Context) int {
	swept, err := j.service.SweepDue(ctx, j.batchSize)
	if err != nil {
		log.Error().Err(err).Int("swept", swept).Msg("Scheduled expiry sweep finished with errors")
		return swept
	}
	if swept > 0 {
		log.Info().Int("swept", swept).Msg("Scheduled expiry sweep finished")
	}
	return swept
}
