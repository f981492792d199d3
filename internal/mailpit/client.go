// File: internal/mailpit/client.go
package mailpit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opsmith/alert-summarizer/internal/metrics"
	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// Source defines the message source adapter interface
type Source interface {
	// FetchMessages returns all messages whose creation time falls inside
	// the half-open window [start, end), with bodies resolved
	FetchMessages(ctx context.Context, start, end time.Time) ([]*models.RawMessage, error)
	Ping(ctx context.Context) error
}

// ClientConfig holds mailbox store connection configuration
type ClientConfig struct {
	BaseURL            string        `json:"base_url"`
	Username           string        `json:"username"`
	Password           string        `json:"password"`
	RequestTimeout     time.Duration `json:"request_timeout"`
	PageLimit          int           `json:"page_limit"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify"`
}

// Client fetches raw messages from a Mailpit-compatible HTTP API
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    *metrics.Manager
}

// listResponse is the envelope returned by the message listing endpoint
type listResponse struct {
	Total    int           `json:"total"`
	Messages []listMessage `json:"messages"`
}

// listMessage is one entry of the listing endpoint
type listMessage struct {
	ID      string    `json:"ID"`
	Subject string    `json:"Subject"`
	From    address   `json:"From"`
	To      []address `json:"To"`
	Created time.Time `json:"Created"`
}

// messageDetail is the per-id lookup response carrying the full body
type messageDetail struct {
	ID   string `json:"ID"`
	Text string `json:"Text"`
	HTML string `json:"HTML"`
}

type address struct {
	Name    string `json:"Name"`
	Address string `json:"Address"`
}

// NewClient creates a new mailbox store client. metricsManager may be
// nil; fetch counters are then skipped.
func NewClient(config *ClientConfig, metricsManager *metrics.Manager) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}

	// Self-signed endpoints are common for internal Mailpit deployments
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: transport,
		},
		logger:  utils.GetLogger(),
		metrics: metricsManager,
	}
}

// FetchMessages lists a bounded page of messages from the store and
// filters them client-side into the half-open window [start, end). Each
// accepted message's body is resolved with a second per-id lookup; a
// failure there skips the message, a failure of the listing call fails
// the whole fetch.
func (c *Client) FetchMessages(ctx context.Context, start, end time.Time) ([]*models.RawMessage, error) {
	c.logger.Debug("Fetching messages from mailbox store", map[string]interface{}{
		"base_url":     c.config.BaseURL,
		"window_start": start.Format(time.RFC3339),
		"window_end":   end.Format(time.RFC3339),
	})

	listing, err := c.listMessages(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeSourceUnavailable, "Failed to list messages", err.Error())
	}

	messages := make([]*models.RawMessage, 0, len(listing))
	skipped := 0

	for _, msg := range listing {
		// Window start inclusive, end exclusive
		if msg.Created.Before(start) || !msg.Created.Before(end) {
			continue
		}

		raw, err := c.resolveMessage(ctx, msg)
		if err != nil {
			skipped++
			c.logger.Warn("Failed to resolve message body, skipping", map[string]interface{}{
				"message_id": msg.ID,
				"subject":    msg.Subject,
				"error":      err.Error(),
			})
			continue
		}

		messages = append(messages, raw)
	}

	if c.metrics != nil {
		c.metrics.GetPrometheusMetrics().RecordFetch(len(messages), skipped)
	}

	c.logger.Info("Messages fetched", map[string]interface{}{
		"listed":   len(listing),
		"in_range": len(messages) + skipped,
		"resolved": len(messages),
		"skipped":  skipped,
	})

	return messages, nil
}

// listMessages retrieves a bounded page of messages from the store
func (c *Client) listMessages(ctx context.Context) ([]listMessage, error) {
	endpoint := fmt.Sprintf("%s/api/v1/messages?limit=%d", c.config.BaseURL, c.config.PageLimit)

	var resp listResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	return resp.Messages, nil
}

// resolveMessage fetches the full body for one listed message
func (c *Client) resolveMessage(ctx context.Context, msg listMessage) (*models.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/api/v1/message/%s", c.config.BaseURL, url.PathEscape(msg.ID))

	var detail messageDetail
	if err := c.getJSON(ctx, endpoint, &detail); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeMessageUnreadable, "Failed to resolve message body", err.Error())
	}

	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.format())
	}

	return &models.RawMessage{
		ID:      msg.ID,
		Subject: msg.Subject,
		From:    msg.From.format(),
		To:      to,
		Created: msg.Created,
		Text:    detail.Text,
		HTML:    detail.HTML,
	}, nil
}

// Ping checks that the listing endpoint is reachable
func (c *Client) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/v1/messages?limit=1", c.config.BaseURL)

	var resp listResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return utils.NewAppError(utils.ErrCodeSourceUnavailable, "Mailbox store unreachable", err.Error())
	}
	return nil
}

// getJSON performs an authenticated GET and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if c.config.Username != "" && c.config.Password != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// format renders an address the way mail headers carry it
func (a address) format() string {
	if a.Name != "" && a.Address != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.Address
}
