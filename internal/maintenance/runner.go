// Package maintenance runs the periodic housekeeping jobs of the service.
package maintenance

import (
	"context"
	"time"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

// Job is one housekeeping task. Errors are logged and the job runs again on the next tick.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Runner struct {
	logger   *logger.Logger
	interval time.Duration
	jobs     []Job
}

func NewRunner(log *logger.Logger, interval time.Duration, jobs ...Job) *Runner {
	if log == nil {
		log = logger.Production()
	}
	return &Runner{logger: log, interval: interval, jobs: jobs}
}

// Start runs every job once immediately and then on each interval until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Maintenance runner stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job in order.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			r.logger.Error("Maintenance job failed", "job", job.Name, "error", err)
			continue
		}
		r.logger.Debug("Maintenance job finished", "job", job.Name, "duration", time.Since(start))
	}
}
