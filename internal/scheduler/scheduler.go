package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named periodic task.
type Job struct {
	Name string
	Spec string
	Run  func()
}

// Run schedules every job on a single cron instance and blocks until ctx is
// cancelled, then waits for running jobs to finish. An invalid spec is
// reported before anything starts.
func Run(ctx context.Context, jobs ...Job) error {
	c := cron.New()

	for _, j := range jobs {
		job := j
		if _, err := c.AddFunc(job.Spec, func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("scheduler: job panicked", "job", job.Name, "panic", rec)
				}
			}()
			job.Run()
		}); err != nil {
			return fmt.Errorf("scheduler: invalid spec %q for job %s: %w", job.Spec, job.Name, err)
		}
		slog.Info("scheduler: added job", "job", job.Name, "spec", job.Spec)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
