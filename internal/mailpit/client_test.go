// File: internal/mailpit/client_test.go
package mailpit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmith/alert-summarizer/internal/metrics"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

type testMessage struct {
	id      string
	subject string
	created time.Time
	text    string
	html    string
}

// newMailpitServer serves a minimal Mailpit-compatible API over the given
// messages. IDs in failBodies return 500 on the per-id lookup.
func newMailpitServer(t *testing.T, messages []testMessage, failBodies map[string]bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		entries := make([]map[string]interface{}, 0, len(messages))
		for _, m := range messages {
			entries = append(entries, map[string]interface{}{
				"ID":      m.id,
				"Subject": m.subject,
				"From":    map[string]string{"Name": "Alert Bot", "Address": "alerts@example.com"},
				"To":      []map[string]string{{"Name": "", "Address": "oncall@example.com"}},
				"Created": m.created.Format(time.RFC3339),
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total":    len(entries),
			"messages": entries,
		})
	})

	mux.HandleFunc("/api/v1/message/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/v1/message/"):]
		if failBodies[id] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		for _, m := range messages {
			if m.id == id {
				json.NewEncoder(w).Encode(map[string]string{
					"ID":   m.id,
					"Text": m.text,
					"HTML": m.html,
				})
				return
			}
		}
		http.NotFound(w, r)
	})

	return httptest.NewServer(mux)
}

func newTestClient(baseURL string) *Client {
	return NewClient(&ClientConfig{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		PageLimit:      1000,
	}, nil)
}

func TestFetchMessages(t *testing.T) {
	dayStart := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	t.Run("Window Filtering", func(t *testing.T) {
		messages := []testMessage{
			{id: "before", subject: "too early", created: dayStart.Add(-time.Second), text: "x"},
			{id: "at-start", subject: "first of the day", created: dayStart, text: "x"},
			{id: "midday", subject: "lunch alert", created: dayStart.Add(12 * time.Hour), text: "x"},
			{id: "at-end", subject: "next day", created: dayEnd, text: "x"},
			{id: "after", subject: "way later", created: dayEnd.Add(time.Hour), text: "x"},
		}

		server := newMailpitServer(t, messages, nil)
		defer server.Close()

		client := newTestClient(server.URL)
		got, err := client.FetchMessages(context.Background(), dayStart, dayEnd)
		require.NoError(t, err)

		require.Len(t, got, 2, "Window start is inclusive, end exclusive")
		assert.Equal(t, "at-start", got[0].ID)
		assert.Equal(t, "midday", got[1].ID)
	})

	t.Run("Resolves Bodies And Addresses", func(t *testing.T) {
		messages := []testMessage{
			{id: "m1", subject: "disk alert", created: dayStart.Add(time.Hour), text: "disk is full", html: "<p>disk is full</p>"},
		}

		server := newMailpitServer(t, messages, nil)
		defer server.Close()

		client := newTestClient(server.URL)
		got, err := client.FetchMessages(context.Background(), dayStart, dayEnd)
		require.NoError(t, err)
		require.Len(t, got, 1)

		assert.Equal(t, "disk alert", got[0].Subject)
		assert.Equal(t, "Alert Bot <alerts@example.com>", got[0].From)
		assert.Equal(t, []string{"oncall@example.com"}, got[0].To)
		assert.Equal(t, "disk is full", got[0].Text)
		assert.Equal(t, "<p>disk is full</p>", got[0].HTML)
	})

	t.Run("Skips Unreadable Messages", func(t *testing.T) {
		messages := []testMessage{
			{id: "ok-1", subject: "fine", created: dayStart.Add(time.Hour), text: "x"},
			{id: "broken", subject: "bad body", created: dayStart.Add(2 * time.Hour), text: "x"},
			{id: "ok-2", subject: "also fine", created: dayStart.Add(3 * time.Hour), text: "x"},
		}

		server := newMailpitServer(t, messages, map[string]bool{"broken": true})
		defer server.Close()

		client := newTestClient(server.URL)
		got, err := client.FetchMessages(context.Background(), dayStart, dayEnd)
		require.NoError(t, err, "One unreadable message must not fail the fetch")

		require.Len(t, got, 2)
		assert.Equal(t, "ok-1", got[0].ID)
		assert.Equal(t, "ok-2", got[1].ID)
	})

	t.Run("Listing Failure Fails The Fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.FetchMessages(context.Background(), dayStart, dayEnd)

		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeSourceUnavailable))
	})

	t.Run("Empty Mailbox", func(t *testing.T) {
		server := newMailpitServer(t, nil, nil)
		defer server.Close()

		client := newTestClient(server.URL)
		got, err := client.FetchMessages(context.Background(), dayStart, dayEnd)

		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestFetchRecordsMetrics(t *testing.T) {
	dayStart := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	messages := []testMessage{
		{id: "ok-1", subject: "fine", created: dayStart.Add(time.Hour), text: "x"},
		{id: "broken", subject: "bad body", created: dayStart.Add(2 * time.Hour), text: "x"},
		{id: "ok-2", subject: "also fine", created: dayStart.Add(3 * time.Hour), text: "x"},
	}

	server := newMailpitServer(t, messages, map[string]bool{"broken": true})
	defer server.Close()

	manager := metrics.NewManager()
	client := NewClient(&ClientConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		PageLimit:      1000,
	}, manager)

	_, err := client.FetchMessages(context.Background(), dayStart, dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)

	pm := manager.GetPrometheusMetrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.MessagesFetchedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.MessagesSkippedTotal))
}

func TestClientAuth(t *testing.T) {
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		fmt.Fprint(w, `{"total":0,"messages":[]}`)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{
		BaseURL:        server.URL,
		Username:       "admin",
		Password:       "secret",
		RequestTimeout: 5 * time.Second,
		PageLimit:      10,
	}, nil)

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestPing(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		server := newMailpitServer(t, nil, nil)
		defer server.Close()

		client := newTestClient(server.URL)
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("Unreachable", func(t *testing.T) {
		client := newTestClient("http://127.0.0.1:1")
		err := client.Ping(context.Background())

		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeSourceUnavailable))
	})
}
