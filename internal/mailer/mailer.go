// File: internal/mailer/mailer.go
package mailer

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// Mailer defines the outbound report delivery interface
type Mailer interface {
	SendDailyReport(ctx context.Context, htmlBody string, reportDate time.Time, alerts []*models.Alert) error
	SendErrorNotification(ctx context.Context, runErr error) error
	SendTestEmail(ctx context.Context) error
	TestConnection(ctx context.Context) error
}

// SMTPConfig holds SMTP transport configuration
type SMTPConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Username           string        `json:"username"`
	Password           string        `json:"password"`
	FromEmail          string        `json:"from_email"`
	FromName           string        `json:"from_name"`
	ToEmails           []string      `json:"to_emails"`
	UseTLS             bool          `json:"use_tls"`
	UseStartTLS        bool          `json:"use_start_tls"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify"`
	Timeout            time.Duration `json:"timeout"`
	AttachJSON         bool          `json:"attach_json"`
}

// SMTPMailer delivers reports over SMTP
type SMTPMailer struct {
	config *SMTPConfig
	logger *logrus.Logger
	auth   smtp.Auth
	// textFromHTML derives the plain-text alternative for a message
	textFromHTML func(string) string
}

// NewSMTPMailer creates a new SMTP mailer. textFromHTML may be nil, in
// which case no plain-text part is attached.
func NewSMTPMailer(config *SMTPConfig, textFromHTML func(string) string) *SMTPMailer {
	m := &SMTPMailer{
		config:       config,
		logger:       utils.GetLogger(),
		textFromHTML: textFromHTML,
	}

	if config.Username != "" && config.Password != "" {
		m.auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return m
}

// SendDailyReport sends the rendered report, with an optional JSON
// attachment of the raw alert list. A single best-effort send; no retry.
func (m *SMTPMailer) SendDailyReport(ctx context.Context, htmlBody string, reportDate time.Time, alerts []*models.Alert) error {
	subject := fmt.Sprintf("Daily Alert Summary - %s", reportDate.Format("January 2, 2006"))

	var attachment []byte
	attachmentName := ""
	if m.config.AttachJSON && len(alerts) > 0 {
		data, err := json.MarshalIndent(alerts, "", "  ")
		if err == nil {
			attachment = data
			attachmentName = fmt.Sprintf("alerts-%s.json", reportDate.Format("2006-01-02"))
		}
	}

	message := m.buildMessage(subject, htmlBody, attachment, attachmentName)

	startTime := time.Now()
	err := m.send(ctx, message)
	if err != nil {
		m.logger.Error("Failed to send daily report", map[string]interface{}{
			"to":    m.config.ToEmails,
			"error": err.Error(),
		})
		return utils.NewAppError(utils.ErrCodeDeliveryFailed, "Failed to send daily report", err.Error())
	}

	m.logger.Info("Daily report sent", map[string]interface{}{
		"to":          m.config.ToEmails,
		"subject":     subject,
		"alerts":      len(alerts),
		"duration_ms": time.Since(startTime).Milliseconds(),
	})

	return nil
}

// SendErrorNotification sends a minimal failure report through the same
// mail channel. Used by the orchestrator as a best-effort secondary
// notification.
func (m *SMTPMailer) SendErrorNotification(ctx context.Context, runErr error) error {
	var body strings.Builder
	body.WriteString("<html><body>")
	body.WriteString("<h2>Daily Alert Summary - Error Report</h2>")
	fmt.Fprintf(&body, "<p><strong>Time:</strong> %s</p>", time.Now().Format(time.RFC1123))
	fmt.Fprintf(&body, "<p><strong>Error:</strong> %s</p>", runErr.Error())
	body.WriteString("<p>The daily alert summary job has failed. Please check the application logs and configuration.</p>")
	body.WriteString("</body></html>")

	message := m.buildMessage("Daily Alert Summary - Job Failed", body.String(), nil, "")

	if err := m.send(ctx, message); err != nil {
		return utils.NewAppError(utils.ErrCodeDeliveryFailed, "Failed to send error notification", err.Error())
	}
	return nil
}

// SendTestEmail sends a configuration test message to the report recipients
func (m *SMTPMailer) SendTestEmail(ctx context.Context) error {
	body := fmt.Sprintf("<html><body><h2>Test Email</h2><p>This is a test email from the alert summarizer.</p><p>Sent at: %s</p></body></html>",
		time.Now().Format(time.RFC1123))

	message := m.buildMessage("Alert Summarizer - Test Email", body, nil, "")

	if err := m.send(ctx, message); err != nil {
		return utils.NewAppError(utils.ErrCodeDeliveryFailed, "Failed to send test email", err.Error())
	}

	m.logger.Info("Test email sent", map[string]interface{}{"to": m.config.ToEmails})
	return nil
}

// TestConnection verifies the SMTP endpoint accepts a connection
func (m *SMTPMailer) TestConnection(ctx context.Context) error {
	client, err := m.dial()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDeliveryFailed, "SMTP connection failed", err.Error())
	}
	defer client.Close()

	return client.Noop()
}

// send delivers one message to the configured recipients
func (m *SMTPMailer) send(ctx context.Context, message string) error {
	type result struct{ err error }
	done := make(chan result, 1)

	go func() {
		done <- result{m.sendMessage(message)}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		return r.err
	}
}

// sendMessage performs the SMTP transaction
func (m *SMTPMailer) sendMessage(message string) error {
	client, err := m.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if m.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(m.auth); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
		}
	}

	if err := client.Mail(m.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, recipient := range m.config.ToEmails {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}

	if _, err := writer.Write([]byte(message)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize message: %w", err)
	}

	return client.Quit()
}

// dial opens an SMTP client according to the TLS settings. The configured
// timeout bounds the connection attempt and, via a connection deadline,
// the whole SMTP transaction.
func (m *SMTPMailer) dial() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	timeout := m.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	tlsConfig := &tls.Config{
		ServerName:         m.config.Host,
		InsecureSkipVerify: m.config.InsecureSkipVerify,
	}

	if m.config.UseTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if !m.config.UseTLS && m.config.UseStartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	return client, nil
}

// buildMessage assembles the MIME message: multipart/alternative for the
// HTML and text bodies, wrapped in multipart/mixed when an attachment is
// present
func (m *SMTPMailer) buildMessage(subject, htmlBody string, attachment []byte, attachmentName string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", m.config.FromName), m.config.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.config.ToEmails, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")

	altBoundary := "alt-4f3a9c1b7e"
	mixedBoundary := "mixed-8d2e6b0a4c"

	writeAlternative := func(w *strings.Builder) {
		fmt.Fprintf(w, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary)

		if m.textFromHTML != nil {
			fmt.Fprintf(w, "--%s\r\n", altBoundary)
			w.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
			w.WriteString(m.textFromHTML(htmlBody))
			w.WriteString("\r\n")
		}

		fmt.Fprintf(w, "--%s\r\n", altBoundary)
		w.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		w.WriteString(htmlBody)
		w.WriteString("\r\n")
		fmt.Fprintf(w, "--%s--\r\n", altBoundary)
	}

	if attachment == nil {
		writeAlternative(&b)
		return b.String()
	}

	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixedBoundary)
	fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
	writeAlternative(&b)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
	b.WriteString("Content-Type: application/json\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", attachmentName)

	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "--%s--\r\n", mixedBoundary)

	return b.String()
}
