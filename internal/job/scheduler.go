// File: internal/job/scheduler.go
package job

import (
	"context"
	"time"

	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// Start launches the scheduler goroutine that fires the daily run at the
// configured local time. It returns immediately; use Stop to shut down.
func (r *Runner) Start(ctx context.Context) error {
	if !r.config.Enabled {
		r.logger.Info("Daily job scheduler disabled", nil)
		return nil
	}

	fireAt, err := time.Parse("15:04", r.config.DailyAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid daily_at time", err.Error())
	}

	r.logger.Info("Starting daily job scheduler", map[string]interface{}{
		"daily_at":      r.config.DailyAt,
		"window_policy": r.config.WindowPolicy,
	})

	r.wg.Add(1)
	go r.scheduleLoop(ctx, fireAt.Hour(), fireAt.Minute())

	return nil
}

// Stop shuts down the scheduler and waits for the loop to exit. An
// in-flight run is not interrupted.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
	r.logger.Info("Daily job scheduler stopped", nil)
}

// scheduleLoop sleeps until the next firing time, triggers a scheduled
// run, and repeats. A rejected trigger (manual run in flight) is logged
// and the loop moves on to the next day.
func (r *Runner) scheduleLoop(ctx context.Context, hour, minute int) {
	defer r.wg.Done()

	for {
		next := nextFireTime(time.Now(), hour, minute)
		timer := time.NewTimer(time.Until(next))

		r.logger.Debug("Next scheduled run", map[string]interface{}{
			"at": next.Format(time.RFC3339),
		})

		select {
		case <-r.stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := r.Trigger(ctx, nil, TriggerScheduled); err != nil {
				if utils.IsCode(err, utils.ErrCodeAlreadyRunning) {
					r.logger.Warn("Scheduled run skipped, another run in flight", nil)
				}
				// Run failures are already logged and notified by the
				// runner itself
			}
		}
	}
}

// nextFireTime returns the next wall-clock occurrence of hour:minute
// strictly after now
func nextFireTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
