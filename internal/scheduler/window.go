package scheduler

import (
	"context"
	"log/slog"
	"time"

	"viaductecho/internal/config"
	"viaductecho/internal/ports"
)

// Window triggers the pipeline hourly inside an active daypart window.
// Whether scheduling runs at all is the explicit config flag, never a code
// edit.
type Window struct {
	enabled   bool
	startHour int
	endHour   int
	location  *time.Location
	interval  time.Duration
	logger    *slog.Logger
	stop      chan struct{}
}

var _ ports.Scheduler = (*Window)(nil)

// NewWindow builds the scheduler from config.
func NewWindow(cfg config.SchedulerConfig, logger *slog.Logger) *Window {
	return &Window{
		enabled:   cfg.Enabled,
		startHour: cfg.WindowStartHour,
		endHour:   cfg.WindowEndHour,
		location:  cfg.Location(),
		interval:  time.Hour,
		logger:    logger,
	}
}

// Start begins ticking. An immediate trigger fires if the current time is
// inside the window; outside the window the tick is skipped.
func (w *Window) Start(ctx context.Context, job func(context.Context)) error {
	if job == nil {
		return nil
	}
	if !w.enabled {
		if w.logger != nil {
			w.logger.Info("scheduler disabled by config")
		}
		return nil
	}
	if w.stop != nil {
		return nil
	}

	w.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.maybeRun(ctx, job, time.Now())
		for {
			select {
			case t := <-ticker.C:
				w.maybeRun(ctx, job, t)
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (w *Window) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	w.stop = nil
}

func (w *Window) maybeRun(ctx context.Context, job func(context.Context), t time.Time) {
	if !w.InWindow(t) {
		if w.logger != nil {
			w.logger.Debug("outside active window, skipping run", "hour", t.In(w.location).Hour())
		}
		return
	}
	job(ctx)
}

// InWindow reports whether t falls inside [startHour, endHour] in the
// configured timezone.
func (w *Window) InWindow(t time.Time) bool {
	hour := t.In(w.location).Hour()
	return hour >= w.startHour && hour <= w.endHour
}
