// File: internal/summarize/gemini_test.go
package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmith/alert-summarizer/pkg/utils"
)

func newTestGeminiClient(serverURL string) *GeminiClient {
	return NewGeminiClient(&GeminiConfig{
		BaseURL:        serverURL,
		APIKey:         "test-key",
		Model:          "gemini-2.0-flash",
		RequestTimeout: 5 * time.Second,
	})
}

func TestGeminiClientGenerate(t *testing.T) {
	t.Run("Successful Response", func(t *testing.T) {
		var gotPath, gotKey string
		var gotBody generateRequest

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.URL.Query().Get("key")
			json.NewDecoder(r.Body).Decode(&gotBody)

			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{
					{"content": map[string]interface{}{
						"parts": []map[string]string{{"text": "# Daily Report\nSummary text"}},
					}},
				},
			})
		}))
		defer server.Close()

		client := newTestGeminiClient(server.URL)
		narrative, err := client.Generate(context.Background(), "analyze these alerts")

		require.NoError(t, err)
		assert.Equal(t, "# Daily Report\nSummary text", narrative)
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
		assert.Equal(t, "test-key", gotKey)
		require.Len(t, gotBody.Contents, 1)
		require.Len(t, gotBody.Contents[0].Parts, 1)
		assert.Equal(t, "analyze these alerts", gotBody.Contents[0].Parts[0].Text)
	})

	t.Run("Error Status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := newTestGeminiClient(server.URL)
		_, err := client.Generate(context.Background(), "prompt")

		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeSummarizer))
	})

	t.Run("Empty Candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
		}))
		defer server.Close()

		client := newTestGeminiClient(server.URL)
		_, err := client.Generate(context.Background(), "prompt")

		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeSummarizer))
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json at all"))
		}))
		defer server.Close()

		client := newTestGeminiClient(server.URL)
		_, err := client.Generate(context.Background(), "prompt")

		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeSummarizer))
	})

	t.Run("Unreachable Endpoint", func(t *testing.T) {
		client := newTestGeminiClient("http://127.0.0.1:1")
		_, err := client.Generate(context.Background(), "prompt")

		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeSummarizer))
	})
}
