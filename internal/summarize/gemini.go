// File: internal/summarize/gemini.go
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// GenerativeClient is the narrow contract the summarizer needs from the
// generative backend
type GenerativeClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig holds the generative API configuration
type GeminiConfig struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	Model          string        `json:"model"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// GeminiClient calls the Gemini generateContent endpoint
type GeminiClient struct {
	config     *GeminiConfig
	httpClient *http.Client
}

// generateRequest is the generateContent request body
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse is the subset of the generateContent response we read
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(config *GeminiConfig) *GeminiClient {
	return &GeminiClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
}

// Generate sends a single text prompt and returns the narrative text from
// the first candidate. No streaming, no multi-turn state.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.config.BaseURL, g.config.Model, g.config.APIKey)

	body, err := json.Marshal(&generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeSummarizer, "Generative API request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", utils.NewAppError(utils.ErrCodeSummarizer, "Generative API returned error status",
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", utils.NewAppError(utils.ErrCodeSummarizer, "Failed to decode generative API response", err.Error())
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", utils.NewAppError(utils.ErrCodeSummarizer, "Empty response from generative API", "")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", utils.NewAppError(utils.ErrCodeSummarizer, "Empty narrative in generative API response", "")
	}

	return text, nil
}
