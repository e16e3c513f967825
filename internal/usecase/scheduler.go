package usecase

import (
	"context"

	"viaductecho/internal/ports"
)

// Scheduler wires the window-driven trigger with the pipeline use case. The
// same entry point serves the manual admin trigger, guarded by the same
// run-lock.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline}
}

// Start registers the pipeline with the provided scheduler driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	// The pipeline logs its own per-source failures and run report; a
	// trigger colliding with the run-lock is simply skipped.
	job := func(runCtx context.Context) {
		_, _ = s.pipeline.Run(runCtx)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop() {
	if s.driver == nil {
		return
	}
	s.driver.Stop()
}

// TriggerNow runs the pipeline once on demand, subject to the run-lock.
func (s *Scheduler) TriggerNow(ctx context.Context) (Report, error) {
	if s.pipeline == nil {
		return Report{}, nil
	}
	return s.pipeline.Run(ctx)
}
