// File: test/integration/pipeline_test.go
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmith/alert-summarizer/internal/job"
	"github.com/opsmith/alert-summarizer/internal/mailpit"
	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/internal/report"
	"github.com/opsmith/alert-summarizer/internal/storage"
	"github.com/opsmith/alert-summarizer/internal/summarize"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// capturingMailer records delivered reports in place of a real SMTP hop
type capturingMailer struct {
	mu      sync.Mutex
	reports []string
	errors  []error
}

func (c *capturingMailer) SendDailyReport(ctx context.Context, htmlBody string, reportDate time.Time, alerts []*models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, htmlBody)
	return nil
}

func (c *capturingMailer) SendErrorNotification(ctx context.Context, runErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, runErr)
	return nil
}

func (c *capturingMailer) SendTestEmail(ctx context.Context) error  { return nil }
func (c *capturingMailer) TestConnection(ctx context.Context) error { return nil }

// newMailboxServer serves a fixed day of alert mail on the Mailpit API
func newMailboxServer(t *testing.T, day time.Time) *httptest.Server {
	t.Helper()

	type entry struct {
		id, subject, from, text string
		created                 time.Time
	}

	entries := []entry{
		{"e1", "[Grafana Alert] CPU critical on web-01", "grafana@monitoring.example.com", "CPU above 95% for 10m", day.Add(2 * time.Hour)},
		{"e2", "[Grafana Alert] CPU critical on web-01", "grafana@monitoring.example.com", "CPU above 95% for 25m", day.Add(3 * time.Hour)},
		{"e3", "Jenkins build failed: deploy #42", "jenkins@ci.example.com", "Step 3 exited non-zero", day.Add(5 * time.Hour)},
		{"e4", "Certificate expiring: api.example.com", "ssl-monitor@example.com", "Expires in 14 days", day.Add(8 * time.Hour)},
		{"outside", "Yesterday's alert", "grafana@monitoring.example.com", "stale", day.Add(-time.Hour)},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		list := make([]map[string]interface{}, 0, len(entries))
		for _, e := range entries {
			list = append(list, map[string]interface{}{
				"ID":      e.id,
				"Subject": e.subject,
				"From":    map[string]string{"Address": e.from},
				"To":      []map[string]string{{"Address": "oncall@example.com"}},
				"Created": e.created.Format(time.RFC3339),
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"total": len(list), "messages": list})
	})
	mux.HandleFunc("/api/v1/message/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/v1/message/"):]
		for _, e := range entries {
			if e.id == id {
				json.NewEncoder(w).Encode(map[string]string{"ID": e.id, "Text": e.text})
				return
			}
		}
		http.NotFound(w, r)
	})

	return httptest.NewServer(mux)
}

// newGenerativeServer serves a canned narrative on the generateContent API
func newGenerativeServer(t *testing.T, narrative string, fail bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": narrative}},
				}},
			},
		})
	}))
}

func newPipelineRunner(t *testing.T, mailboxURL, aiURL string, store storage.Storage, sender *capturingMailer) *job.Runner {
	t.Helper()

	utils.InitLogger("info", "text", "stdout", "")

	source := mailpit.NewClient(&mailpit.ClientConfig{
		BaseURL:        mailboxURL,
		RequestTimeout: 5 * time.Second,
		PageLimit:      1000,
	}, nil)

	generator := summarize.NewGeminiClient(&summarize.GeminiConfig{
		BaseURL:        aiURL,
		APIKey:         "test-key",
		Model:          "gemini-2.0-flash",
		RequestTimeout: 5 * time.Second,
	})

	return job.NewRunner(
		&job.RunnerConfig{Enabled: true, DailyAt: "23:59", WindowPolicy: "today"},
		source,
		summarize.NewSummarizer(generator, 500),
		report.NewRenderer(),
		sender,
		store,
		nil,
	)
}

func TestDailySummaryPipeline(t *testing.T) {
	day := time.Date(2026, 8, 14, 0, 0, 0, 0, time.Local)

	mailbox := newMailboxServer(t, day)
	defer mailbox.Close()

	ai := newGenerativeServer(t, "# Daily Report\n\nOne critical CPU issue, one failed build.", false)
	defer ai.Close()

	store := newPipelineStore(t)
	sender := &capturingMailer{}
	runner := newPipelineRunner(t, mailbox.URL, ai.URL, store, sender)

	target := day.Add(12 * time.Hour)
	result, err := runner.Trigger(context.Background(), &target, job.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, result)

	// The stale message outside the window is excluded
	assert.Equal(t, 4, result.AlertsProcessed)
	assert.Equal(t, models.TierAI, result.ReportTier)

	// Delivered report carries the narrative and the stat tables
	require.Len(t, sender.reports, 1)
	assert.Contains(t, sender.reports[0], "One critical CPU issue, one failed build.")
	assert.Contains(t, sender.reports[0], "Daily Alert Summary - August 14, 2026")
	assert.Contains(t, sender.reports[0], "<td>Grafana</td><td>2</td>")
	assert.Contains(t, sender.reports[0], "<td>Jenkins</td><td>1</td>")

	// Run record persisted as completed
	record, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", record.Status)
	assert.Equal(t, 4, record.AlertsProcessed)
	assert.Equal(t, models.TierAI, record.ReportTier)
	assert.Nil(t, record.Error)

	t.Logf("✓ Pipeline completed: %d alerts summarized and delivered", result.AlertsProcessed)
}

func TestDailySummaryPipelineFallback(t *testing.T) {
	day := time.Date(2026, 8, 14, 0, 0, 0, 0, time.Local)

	mailbox := newMailboxServer(t, day)
	defer mailbox.Close()

	ai := newGenerativeServer(t, "", true)
	defer ai.Close()

	store := newPipelineStore(t)
	sender := &capturingMailer{}
	runner := newPipelineRunner(t, mailbox.URL, ai.URL, store, sender)

	target := day.Add(12 * time.Hour)
	result, err := runner.Trigger(context.Background(), &target, job.TriggerScheduled)
	require.NoError(t, err, "A generative failure must not fail the run")

	assert.Equal(t, models.TierFallback, result.ReportTier)
	require.Len(t, sender.reports, 1)
	assert.Contains(t, sender.reports[0], "Fallback Report")
	assert.Empty(t, sender.errors)

	record, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", record.Status)
	assert.Equal(t, models.TierFallback, record.ReportTier)

	t.Logf("✓ Pipeline degraded to the fallback tier and still delivered")
}

func TestDailySummaryPipelineSourceOutage(t *testing.T) {
	ai := newGenerativeServer(t, "unused", false)
	defer ai.Close()

	store := newPipelineStore(t)
	sender := &capturingMailer{}
	runner := newPipelineRunner(t, "http://127.0.0.1:1", ai.URL, store, sender)

	result, err := runner.Trigger(context.Background(), nil, job.TriggerScheduled)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, utils.IsCode(err, utils.ErrCodeSourceUnavailable))

	// The failure notification went out, no report did
	assert.Len(t, sender.errors, 1)
	assert.Empty(t, sender.reports)

	// Failed run recorded
	latest, err := store.GetLatestRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "failed", latest.Status)
	require.NotNil(t, latest.Error)

	t.Logf("✓ Source outage recorded and notified")
}

func newPipelineStore(t *testing.T) storage.Storage {
	t.Helper()

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "pipeline.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	return store
}
