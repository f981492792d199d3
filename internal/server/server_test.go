// File: internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmith/alert-summarizer/internal/job"
	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/internal/report"
	"github.com/opsmith/alert-summarizer/internal/summarize"
)

// stubSource records the requested window and serves canned messages
type stubSource struct {
	messages   []*models.RawMessage
	start, end time.Time
}

func (s *stubSource) FetchMessages(ctx context.Context, start, end time.Time) ([]*models.RawMessage, error) {
	s.start, s.end = start, end
	return s.messages, nil
}

func (s *stubSource) Ping(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, source *stubSource) *HTTPServer {
	t.Helper()

	summarizer := summarize.NewSummarizer(nil, 500)
	runner := job.NewRunner(
		&job.RunnerConfig{Enabled: false, DailyAt: "23:59", WindowPolicy: "today"},
		source, summarizer, report.NewRenderer(), nil, nil, nil,
	)

	srv, err := NewHTTPServer(
		&ServerConfig{Port: 0, Host: "127.0.0.1", EnableHealth: true},
		source, summarizer, runner, nil, nil, nil,
	)
	require.NoError(t, err)
	return srv
}

func serveRequest(srv *HTTPServer, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRecentAlertsHandler(t *testing.T) {
	source := &stubSource{
		messages: []*models.RawMessage{
			{ID: "m1", Subject: "CPU critical on web-01", From: "grafana@example.com", Created: time.Now().Add(-time.Hour), Text: "x"},
		},
	}
	srv := newTestServer(t, source)

	rec := serveRequest(srv, http.MethodGet, "/api/v1/alerts/recent")
	require.Equal(t, http.StatusOK, rec.Code)

	// The requested window covers the last two hours
	assert.WithinDuration(t, time.Now().Add(-2*time.Hour), source.start, time.Minute)
	assert.WithinDuration(t, time.Now(), source.end, time.Minute)

	var body struct {
		Total  int             `json:"total"`
		Alerts []*models.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	assert.Equal(t, models.SourceGrafana, body.Alerts[0].Source)
	assert.Equal(t, models.SeverityP1, body.Alerts[0].Severity)
}

func TestAlertWindowHandlers(t *testing.T) {
	t.Run("Today", func(t *testing.T) {
		source := &stubSource{}
		srv := newTestServer(t, source)

		rec := serveRequest(srv, http.MethodGet, "/api/v1/alerts/today")
		require.Equal(t, http.StatusOK, rec.Code)

		wantStart, wantEnd := dayWindow(time.Now())
		assert.Equal(t, wantStart, source.start)
		assert.Equal(t, wantEnd, source.end)
	})

	t.Run("Range", func(t *testing.T) {
		source := &stubSource{}
		srv := newTestServer(t, source)

		rec := serveRequest(srv, http.MethodGet, "/api/v1/alerts/range?from=2026-08-10&to=2026-08-12")
		require.Equal(t, http.StatusOK, rec.Code)

		// Whole days, end exclusive
		assert.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.Local), source.start)
		assert.Equal(t, time.Date(2026, 8, 13, 0, 0, 0, 0, time.Local), source.end)
	})

	t.Run("Range Rejects Bad Dates", func(t *testing.T) {
		srv := newTestServer(t, &stubSource{})

		rec := serveRequest(srv, http.MethodGet, "/api/v1/alerts/range?from=2026-08-12&to=not-a-date")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
