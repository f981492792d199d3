// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opsmith/alert-summarizer/internal/classify"
	"github.com/opsmith/alert-summarizer/internal/job"
	"github.com/opsmith/alert-summarizer/internal/mailer"
	"github.com/opsmith/alert-summarizer/internal/mailpit"
	"github.com/opsmith/alert-summarizer/internal/metrics"
	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/internal/storage"
	"github.com/opsmith/alert-summarizer/internal/summarize"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	source         mailpit.Source
	summarizer     *summarize.Summarizer
	runner         *job.Runner
	mailer         mailer.Mailer
	storage        storage.Storage
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	source mailpit.Source,
	summarizer *summarize.Summarizer,
	runner *job.Runner,
	sender mailer.Mailer,
	store storage.Storage,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         config,
		source:         source,
		summarizer:     summarizer,
		runner:         runner,
		mailer:         sender,
		storage:        store,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	// Setup router
	server.setupRouter()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoints
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoints
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Alert endpoints
	api.HandleFunc("/alerts/today", s.todayAlertsHandler).Methods("GET")
	api.HandleFunc("/alerts/yesterday", s.yesterdayAlertsHandler).Methods("GET")
	api.HandleFunc("/alerts/recent", s.recentAlertsHandler).Methods("GET")
	api.HandleFunc("/alerts/range", s.rangeAlertsHandler).Methods("GET")
	api.HandleFunc("/alerts/stats", s.alertStatsHandler).Methods("GET")
	api.HandleFunc("/alerts/summarize", s.summarizeAlertsHandler).Methods("POST")

	// Report endpoints
	api.HandleFunc("/reports/run", s.runReportHandler).Methods("POST")
	api.HandleFunc("/reports/status", s.reportStatusHandler).Methods("GET")
	api.HandleFunc("/reports/history", s.reportHistoryHandler).Methods("GET")

	// Notification endpoints
	api.HandleFunc("/notifications/test", s.testNotificationHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	})

	// Update system and component metrics so they appear on first scrape
	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentHealth()
		go s.systemMetricsUpdater()
	}

	// Create a channel to receive startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", map[string]interface{}{"error": err})
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentHealth()
	}
}

// updateComponentHealth refreshes component health gauges
func (s *HTTPServer) updateComponentHealth() {
	pm := s.metricsManager.GetPrometheusMetrics()

	if s.storage != nil {
		pm.UpdateComponentHealth("storage", s.storage.IsHealthy())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pm.UpdateComponentHealth("mailpit", s.source.Ping(ctx) == nil)
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("HTTP request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		})
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         "1.0.0",
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns detailed health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"mailpit": s.source.Ping(r.Context()) == nil,
	}
	if s.storage != nil {
		components["storage"] = s.storage.GetHealth()
	}
	if s.mailer != nil {
		components["smtp"] = s.mailer.TestConnection(r.Context()) == nil
	}

	health := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now(),
		"version":     "1.0.0",
		"job_running": s.runner.IsRunning(),
		"components":  components,
	}

	s.writeJSON(w, http.StatusOK, health)
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":       time.Now(),
		"job_running":     s.runner.IsRunning(),
		"metrics_enabled": s.config.EnableMetrics,
	}

	if s.storage != nil {
		storageStats, err := s.storage.GetStats()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
			return
		}
		stats["storage"] = storageStats
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Alert Handlers

// todayAlertsHandler lists classified alerts for today's window
func (s *HTTPServer) todayAlertsHandler(w http.ResponseWriter, r *http.Request) {
	start, end := dayWindow(time.Now())
	s.serveAlertWindow(w, r, start, end)
}

// yesterdayAlertsHandler lists classified alerts for yesterday's window
func (s *HTTPServer) yesterdayAlertsHandler(w http.ResponseWriter, r *http.Request) {
	start, end := dayWindow(time.Now().AddDate(0, 0, -1))
	s.serveAlertWindow(w, r, start, end)
}

// recentAlertsHandler lists classified alerts from the last two hours
func (s *HTTPServer) recentAlertsHandler(w http.ResponseWriter, r *http.Request) {
	end := time.Now()
	s.serveAlertWindow(w, r, end.Add(-2*time.Hour), end)
}

// rangeAlertsHandler lists classified alerts for an arbitrary date range
func (s *HTTPServer) rangeAlertsHandler(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	s.serveAlertWindow(w, r, start, end)
}

// alertStatsHandler returns aggregate statistics for a window
func (s *HTTPServer) alertStatsHandler(w http.ResponseWriter, r *http.Request) {
	start, end := dayWindow(time.Now())
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		var err error
		start, end, err = parseRange(r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid date range", err)
			return
		}
	}

	alerts, err := s.fetchAlerts(r.Context(), start, end)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch alerts", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"window_start": start,
		"window_end":   end,
		"stats":        summarize.ComputeStats(alerts),
	})
}

// summarizeAlertsHandler generates a summary for a window without
// delivering it
func (s *HTTPServer) summarizeAlertsHandler(w http.ResponseWriter, r *http.Request) {
	start, end := dayWindow(time.Now())
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		var err error
		start, end, err = parseRange(r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid date range", err)
			return
		}
	}

	alerts, err := s.fetchAlerts(r.Context(), start, end)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch alerts", err)
		return
	}

	rep := s.summarizer.Summarize(r.Context(), alerts)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"window_start": start,
		"window_end":   end,
		"alert_count":  len(alerts),
		"report":       rep,
	})
}

// Report Handlers

// runReportHandler triggers a manual daily summary run
func (s *HTTPServer) runReportHandler(w http.ResponseWriter, r *http.Request) {
	var targetDate *time.Time
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
			return
		}
		targetDate = &parsed
	}

	result, err := s.runner.Trigger(r.Context(), targetDate, job.TriggerManual)
	if err != nil {
		if utils.IsCode(err, utils.ErrCodeAlreadyRunning) {
			s.writeError(w, http.StatusConflict, "Daily summary is already running", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Daily summary run failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Daily summary completed",
		"result":  result,
	})
}

// reportStatusHandler returns the runner state and the latest run record
func (s *HTTPServer) reportStatusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"running":   s.runner.IsRunning(),
		"timestamp": time.Now(),
	}

	if s.storage != nil {
		latest, err := s.storage.GetLatestRun(r.Context())
		if err != nil && !utils.IsCode(err, utils.ErrCodeNotFound) {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve latest run", err)
			return
		}
		if latest != nil {
			status["latest_run"] = latest
		}
	}

	s.writeJSON(w, http.StatusOK, status)
}

// reportHistoryHandler lists past run records
func (s *HTTPServer) reportHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.writeError(w, http.StatusNotFound, "Run history storage is not configured", nil)
		return
	}

	limit := 50
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil {
			offset = o
		}
	}

	filter := models.RunFilter{
		Limit:  limit,
		Offset: offset,
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = &status
	}

	runs, err := s.storage.GetRuns(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve run history", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
		"total":  len(runs),
	})
}

// Notification Handlers

// testNotificationHandler sends a test email through the report channel
func (s *HTTPServer) testNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.mailer.SendTestEmail(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to send test email", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Test email sent successfully",
	})
}

// Utility Methods

// fetchAlerts pulls a window from the source and classifies it
func (s *HTTPServer) fetchAlerts(ctx context.Context, start, end time.Time) ([]*models.Alert, error) {
	messages, err := s.source.FetchMessages(ctx, start, end)
	if err != nil {
		return nil, err
	}

	alerts := make([]*models.Alert, 0, len(messages))
	for _, msg := range messages {
		if alert := classify.Classify(msg); alert != nil {
			alerts = append(alerts, alert)
		}
	}
	return alerts, nil
}

// serveAlertWindow writes the classified alerts of a window
func (s *HTTPServer) serveAlertWindow(w http.ResponseWriter, r *http.Request, start, end time.Time) {
	alerts, err := s.fetchAlerts(r.Context(), start, end)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch alerts", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":       alerts,
		"total":        len(alerts),
		"window_start": start,
		"window_end":   end,
	})
}

// dayWindow returns the half-open local midnight window containing day
func dayWindow(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// parseRange reads from/to query parameters. Dates select whole days;
// the end of the range is exclusive.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("from and to are required")
	}

	from, err := time.ParseInLocation("2006-01-02", fromStr, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
	}
	to, err := time.ParseInLocation("2006-01-02", toStr, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
	}

	start, _ := dayWindow(from)
	_, end := dayWindow(to)

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must not precede from")
	}

	return start, end, nil
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", map[string]interface{}{"error": err})
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.Error("HTTP error", map[string]interface{}{
			"status":  status,
			"message": message,
			"error":   err,
		})
	}

	s.writeJSON(w, status, errorResponse)
}
