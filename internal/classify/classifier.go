// File: internal/classify/classifier.go
package classify

import (
	"regexp"
	"strings"

	"github.com/opsmith/alert-summarizer/internal/models"
)

// severityRule maps a keyword set to a severity tier. Rules are evaluated
// top to bottom over subject + " " + body; the first tier with any match
// wins.
type severityRule struct {
	severity models.Severity
	keywords []string
}

// sourceRule maps a keyword set to an alert source. Rules are evaluated
// top to bottom over the normalized sender address and the subject.
type sourceRule struct {
	source   models.Source
	keywords []string
}

// severityRules is ordered by priority: P1 > P2 > P3 > Info
var severityRules = []severityRule{
	{models.SeverityP1, []string{"critical", "down", "unavailable", "outage", "failed", "timeout", "p1", "urgent", "emergency"}},
	{models.SeverityP2, []string{"alert", "high", "elevated", "exceeded", "error rate", "p2", "degraded", "slow", "build failed"}},
	{models.SeverityP3, []string{"medium", "p3", "approaching", "usage", "capacity", "disk space"}},
	{models.SeverityInfo, []string{"info", "notification", "expiring", "renewal", "certificate", "p4", "maintenance", "scheduled"}},
}

// sourceRules is ordered so that named systems win over generic labels
var sourceRules = []sourceRule{
	{models.SourceGrafana, []string{"grafana"}},
	{models.SourceKibana, []string{"kibana"}},
	{models.SourceJenkins, []string{"jenkins"}},
	{models.SourceUptimeKube, []string{"uptimekube"}},
	{models.SourcePrometheus, []string{"prometheus"}},
	{models.SourceSystem, []string{"system"}},
	{models.SourceSSL, []string{"ssl", "certificate"}},
	{models.SourceCICD, []string{"build", "deploy"}},
	{models.SourceDatabase, []string{"database", "db"}},
	{models.SourceGeneric, []string{"alert"}},
}

var (
	angleAddrPattern = regexp.MustCompile(`<(.+?)>`)
	bareAddrPattern  = regexp.MustCompile(`([^\s<>]+@[^\s<>]+)`)
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	whitespacePat    = regexp.MustCompile(`\s+`)
)

// Classify converts a raw message into a structured alert with inferred
// source and severity. Returns nil for a nil message. Classification is a
// pure function of the message content.
func Classify(msg *models.RawMessage) *models.Alert {
	if msg == nil {
		return nil
	}

	subject := msg.Subject
	if subject == "" {
		subject = "No Subject"
	}

	from := ExtractEmail(msg.From)
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, ExtractEmail(addr))
	}

	body := ExtractTextBody(msg)

	return &models.Alert{
		ID:       msg.ID,
		Subject:  subject,
		From:     from,
		To:       to,
		Date:     msg.Created,
		Body:     body,
		Source:   IdentifySource(from, subject),
		Severity: ExtractSeverity(subject, body),
	}
}

// ExtractEmail extracts the bare address from either an angle-bracket form
// ("Name <addr>") or a bare-address form. Unparsable input is returned
// unchanged.
func ExtractEmail(emailString string) string {
	if emailString == "" {
		return ""
	}
	if m := angleAddrPattern.FindStringSubmatch(emailString); m != nil {
		return m[1]
	}
	if m := bareAddrPattern.FindStringSubmatch(emailString); m != nil {
		return m[1]
	}
	return emailString
}

// ExtractTextBody returns the plain-text body of a message, stripping
// markup from the HTML part when no plain form exists
func ExtractTextBody(msg *models.RawMessage) string {
	if msg.Text != "" {
		return msg.Text
	}
	if msg.HTML != "" {
		stripped := htmlTagPattern.ReplaceAllString(msg.HTML, "")
		return strings.TrimSpace(whitespacePat.ReplaceAllString(stripped, " "))
	}
	return ""
}

// ExtractSeverity infers the severity tier from subject and body,
// first match wins
func ExtractSeverity(subject, body string) models.Severity {
	text := strings.ToLower(subject + " " + body)

	for _, rule := range severityRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return rule.severity
			}
		}
	}

	return models.SeverityUnknown
}

// IdentifySource infers the originating monitoring system from the
// normalized sender address and the subject, first match wins
func IdentifySource(from, subject string) models.Source {
	email := strings.ToLower(ExtractEmail(from))
	subjectLower := strings.ToLower(subject)

	for _, rule := range sourceRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(email, keyword) || strings.Contains(subjectLower, keyword) {
				return rule.source
			}
		}
	}

	return models.SourceUnknown
}
