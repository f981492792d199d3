package models

import (
	"time"
)

// Severity is the inferred priority of an alert
type Severity string

const (
	SeverityP1      Severity = "P1"
	SeverityP2      Severity = "P2"
	SeverityP3      Severity = "P3"
	SeverityInfo    Severity = "Info"
	SeverityUnknown Severity = "Unknown"
)

// Source is the inferred monitoring system that produced an alert
type Source string

const (
	SourceGrafana    Source = "Grafana"
	SourceKibana     Source = "Kibana"
	SourceJenkins    Source = "Jenkins"
	SourceUptimeKube Source = "UptimeKube"
	SourcePrometheus Source = "Prometheus"
	SourceSystem     Source = "System Monitoring"
	SourceSSL        Source = "SSL Monitor"
	SourceCICD       Source = "CI/CD"
	SourceDatabase   Source = "Database"
	SourceGeneric    Source = "Generic Alert"
	SourceUnknown    Source = "Unknown"
)

// RawMessage is a message as returned by the mailbox store, before
// classification. Body holds the resolved full content.
type RawMessage struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	To      []string  `json:"to"`
	Created time.Time `json:"created"`
	Text    string    `json:"text,omitempty"`
	HTML    string    `json:"html,omitempty"`
}

// Alert is a structured record derived from one raw message. Source and
// severity are pure functions of From, Subject and Body.
type Alert struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	From     string    `json:"from"`
	To       []string  `json:"to"`
	Date     time.Time `json:"date"`
	Body     string    `json:"body"`
	Source   Source    `json:"source"`
	Severity Severity  `json:"severity"`
}

// AlertStats aggregates a batch of alerts for the statistics endpoints
// and the fallback report
type AlertStats struct {
	Total       int              `json:"total"`
	BySource    map[Source]int   `json:"by_source"`
	BySeverity  map[Severity]int `json:"by_severity"`
	ByHour      map[int]int      `json:"by_hour"`
	EarliestAt  *time.Time       `json:"earliest_at,omitempty"`
	TopSubjects []SubjectCount   `json:"top_subjects"`
}

// SubjectCount pairs an alert subject with its occurrence count
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}
