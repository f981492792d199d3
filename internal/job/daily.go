// File: internal/job/daily.go
package job

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opsmith/alert-summarizer/internal/classify"
	"github.com/opsmith/alert-summarizer/internal/mailer"
	"github.com/opsmith/alert-summarizer/internal/mailpit"
	"github.com/opsmith/alert-summarizer/internal/metrics"
	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/internal/report"
	"github.com/opsmith/alert-summarizer/internal/storage"
	"github.com/opsmith/alert-summarizer/internal/summarize"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// TriggerScheduled and TriggerManual identify how a run was started
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// RunnerConfig holds daily job configuration
type RunnerConfig struct {
	Enabled      bool   `json:"enabled"`
	DailyAt      string `json:"daily_at"`      // HH:MM local time
	WindowPolicy string `json:"window_policy"` // today, yesterday
}

// RunResult is the outcome of one completed run
type RunResult struct {
	RunID           string            `json:"run_id"`
	ReportDate      time.Time         `json:"report_date"`
	AlertsProcessed int               `json:"alerts_processed"`
	ReportTier      models.ReportTier `json:"report_tier"`
	Duration        time.Duration     `json:"duration"`
}

// Runner coordinates one daily summary cycle: fetch window, classify,
// summarize, render, deliver. At most one run may be active at a time;
// colliding triggers are rejected, never queued. The running flag is the
// only mutable state and is owned by this instance.
type Runner struct {
	config     *RunnerConfig
	source     mailpit.Source
	summarizer *summarize.Summarizer
	renderer   *report.Renderer
	mailer     mailer.Mailer
	storage    storage.Storage
	metrics    *metrics.Manager
	logger     *logrus.Logger

	mu      sync.Mutex
	running bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a new daily job runner. storage and metricsManager
// may be nil; run records and metrics are then skipped.
func NewRunner(
	config *RunnerConfig,
	source mailpit.Source,
	summarizer *summarize.Summarizer,
	renderer *report.Renderer,
	sender mailer.Mailer,
	store storage.Storage,
	metricsManager *metrics.Manager,
) *Runner {
	return &Runner{
		config:     config,
		source:     source,
		summarizer: summarizer,
		renderer:   renderer,
		mailer:     sender,
		storage:    store,
		metrics:    metricsManager,
		logger:     utils.GetLogger(),
		stopChan:   make(chan struct{}),
	}
}

// IsRunning reports whether a run is currently active
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Trigger starts one daily summary run. targetDate selects that date's
// local midnight-to-midnight window; nil applies the configured window
// policy. A trigger that collides with an active run is rejected with
// ALREADY_RUNNING and is not queued.
func (r *Runner) Trigger(ctx context.Context, targetDate *time.Time, trigger string) (*RunResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.GetPrometheusMetrics().RecordRejectedRun()
		}
		r.logger.Warn("Daily summary already running, rejecting trigger", map[string]interface{}{
			"trigger": trigger,
		})
		return nil, utils.NewAppError(utils.ErrCodeAlreadyRunning, "Daily summary job is already running", "")
	}
	r.running = true
	r.mu.Unlock()

	// The guard is cleared whatever the outcome, so the next trigger is
	// always eligible
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	return r.run(ctx, targetDate, trigger)
}

// run executes the fetch-classify-summarize-render-deliver sequence
func (r *Runner) run(ctx context.Context, targetDate *time.Time, trigger string) (*RunResult, error) {
	startTime := time.Now()
	runID, _ := utils.GenerateID()

	reportDate, windowStart, windowEnd := r.computeWindow(targetDate)

	record := &models.RunRecord{
		ID:          runID,
		ReportDate:  reportDate,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Trigger:     trigger,
		Status:      "running",
		StartedAt:   startTime,
	}

	r.logger.Info("Starting daily alert summary", map[string]interface{}{
		"run_id":       runID,
		"trigger":      trigger,
		"report_date":  reportDate.Format("2006-01-02"),
		"window_start": windowStart.Format(time.RFC3339),
		"window_end":   windowEnd.Format(time.RFC3339),
	})

	result, err := r.execute(ctx, record)
	record.Duration = time.Since(startTime).Seconds()
	finished := time.Now()
	record.FinishedAt = &finished

	if err != nil {
		record.Status = "failed"
		errText := err.Error()
		record.Error = &errText

		r.logger.Error("Daily summary failed", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})

		// Best-effort secondary notification through the same mail
		// channel; its own failure is logged and swallowed
		r.notifyError(ctx, err)

		r.saveRecord(ctx, record)
		r.recordRunMetrics(trigger, "failed", startTime, record.AlertsProcessed)
		return nil, err
	}

	record.Status = "completed"
	r.saveRecord(ctx, record)
	r.recordRunMetrics(trigger, "completed", startTime, record.AlertsProcessed)

	r.logger.Info("Daily summary completed", map[string]interface{}{
		"run_id":           runID,
		"alerts_processed": record.AlertsProcessed,
		"report_tier":      record.ReportTier,
		"duration_seconds": record.Duration,
	})

	return result, nil
}

// execute runs the pipeline stages, filling the record as it goes
func (r *Runner) execute(ctx context.Context, record *models.RunRecord) (*RunResult, error) {
	// Stage 1: fetch the window
	messages, err := r.source.FetchMessages(ctx, record.WindowStart, record.WindowEnd)
	if err != nil {
		return nil, err
	}

	// Stage 2: classify, dropping unparsable messages
	alerts := make([]*models.Alert, 0, len(messages))
	for _, msg := range messages {
		alert := classify.Classify(msg)
		if alert == nil {
			continue
		}
		alerts = append(alerts, alert)
		if r.metrics != nil {
			r.metrics.GetPrometheusMetrics().RecordClassification(string(alert.Source), string(alert.Severity))
		}
	}
	record.AlertsProcessed = len(alerts)

	for _, alert := range alerts {
		r.logger.Debug("Alert classified", map[string]interface{}{
			"subject":  alert.Subject,
			"source":   alert.Source,
			"severity": alert.Severity,
			"date":     alert.Date.Format(time.RFC3339),
		})
	}

	// Stage 3: summarize; generative failures downgrade to the fallback
	// tier inside the summarizer, so this stage does not fail the run
	summaryStart := time.Now()
	rep := r.summarizer.Summarize(ctx, alerts)
	record.ReportTier = rep.Tier
	if r.metrics != nil {
		r.metrics.GetPrometheusMetrics().RecordSummary(string(rep.Tier), time.Since(summaryStart))
	}

	// Stage 4: render
	htmlReport := r.renderer.RenderHTML(rep, alerts, record.ReportDate)

	// Stage 5: deliver
	deliveryStart := time.Now()
	err = r.mailer.SendDailyReport(ctx, htmlReport, record.ReportDate, alerts)
	if r.metrics != nil {
		r.metrics.GetPrometheusMetrics().RecordDelivery(err == nil, time.Since(deliveryStart))
	}
	if err != nil {
		return nil, err
	}

	return &RunResult{
		RunID:           record.ID,
		ReportDate:      record.ReportDate,
		AlertsProcessed: len(alerts),
		ReportTier:      rep.Tier,
		Duration:        time.Since(record.StartedAt),
	}, nil
}

// computeWindow resolves the report date and its half-open window
// [start, end). targetDate wins; otherwise the configured window policy
// decides between today and yesterday.
func (r *Runner) computeWindow(targetDate *time.Time) (reportDate, start, end time.Time) {
	day := time.Now()
	if targetDate != nil {
		day = *targetDate
	} else if r.config.WindowPolicy == "yesterday" {
		day = day.AddDate(0, 0, -1)
	}

	start = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end = start.AddDate(0, 0, 1)
	return start, start, end
}

// notifyError sends the best-effort failure notification
func (r *Runner) notifyError(ctx context.Context, runErr error) {
	if r.metrics != nil {
		r.metrics.GetPrometheusMetrics().ErrorNoticesTotal.Inc()
	}
	if err := r.mailer.SendErrorNotification(ctx, runErr); err != nil {
		r.logger.Error("Failed to send error notification", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// saveRecord persists the run record when storage is configured
func (r *Runner) saveRecord(ctx context.Context, record *models.RunRecord) {
	if r.storage == nil {
		return
	}
	if err := r.storage.SaveRun(ctx, record); err != nil {
		r.logger.Warn("Failed to save run record", map[string]interface{}{
			"run_id": record.ID,
			"error":  err.Error(),
		})
	}
}

// recordRunMetrics records run outcome metrics
func (r *Runner) recordRunMetrics(trigger, status string, startTime time.Time, alerts int) {
	if r.metrics == nil {
		return
	}
	r.metrics.GetPrometheusMetrics().RecordRun(trigger, status, time.Since(startTime), alerts)
}
