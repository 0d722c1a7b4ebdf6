package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Runner executes the optimizer on a fixed schedule. Weight adaptation is
// deliberately slow; one pass per interval is plenty.
type Runner struct {
	scheduler *gocron.Scheduler
	optimizer *Optimizer
	interval  time.Duration
	log       *slog.Logger
}

// NewRunner creates a runner that invokes the optimizer every interval.
func NewRunner(optimizer *Optimizer, interval time.Duration, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		scheduler: gocron.NewScheduler(time.UTC),
		optimizer: optimizer,
		interval:  interval,
		log:       log.With("component", "optimizer-runner"),
	}
}

// Start begins periodic optimization in the background.
func (r *Runner) Start() error {
	_, err := r.scheduler.Every(r.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := r.optimizer.Run(ctx); err != nil {
			r.log.Error("optimization pass failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	r.scheduler.StartAsync()
	return nil
}

// Stop terminates the schedule.
func (r *Runner) Stop() {
	r.scheduler.Stop()
}
