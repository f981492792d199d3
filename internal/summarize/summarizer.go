// File: internal/summarize/summarizer.go
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// topSubjectCount is how many high-frequency subjects the fallback
// report lists
const topSubjectCount = 5

// Summarizer turns a batch of alerts into a report. The AI tier is tried
// first; any failure there downgrades to the deterministic fallback tier.
// An empty batch short-circuits to the empty tier without an external call.
type Summarizer struct {
	client       GenerativeClient
	maxBodyChars int
	logger       *logrus.Logger
}

// promptAlert is the truncated projection of one alert embedded in the
// generative prompt
type promptAlert struct {
	Subject  string `json:"subject"`
	Source   string `json:"source"`
	Severity string `json:"severity"`
	Date     string `json:"date"`
	Body     string `json:"body"`
}

// NewSummarizer creates a new summarizer
func NewSummarizer(client GenerativeClient, maxBodyChars int) *Summarizer {
	if maxBodyChars <= 0 {
		maxBodyChars = 500
	}
	return &Summarizer{
		client:       client,
		maxBodyChars: maxBodyChars,
		logger:       utils.GetLogger(),
	}
}

// Summarize produces a report for the given alerts. It never returns an
// error: generative failures are absorbed into the fallback tier.
func (s *Summarizer) Summarize(ctx context.Context, alerts []*models.Alert) *models.Report {
	if len(alerts) == 0 {
		return &models.Report{
			Narrative:   emptyNarrative(),
			Tier:        models.TierEmpty,
			GeneratedAt: time.Now(),
		}
	}

	// No generative backend configured at all: go straight to the
	// fallback tier
	if s.client == nil {
		return &models.Report{
			Narrative:   FallbackNarrative(alerts),
			Tier:        models.TierFallback,
			GeneratedAt: time.Now(),
		}
	}

	narrative, err := s.client.Generate(ctx, s.BuildPrompt(alerts))
	if err != nil {
		s.logger.Warn("Generative summarization failed, using fallback report", map[string]interface{}{
			"alerts": len(alerts),
			"error":  err.Error(),
		})
		return &models.Report{
			Narrative:   FallbackNarrative(alerts),
			Tier:        models.TierFallback,
			GeneratedAt: time.Now(),
		}
	}

	return &models.Report{
		Narrative:   narrative,
		Tier:        models.TierAI,
		GeneratedAt: time.Now(),
	}
}

// BuildPrompt constructs the bounded analysis prompt for the generative
// backend. Bodies are capped to respect payload limits.
func (s *Summarizer) BuildPrompt(alerts []*models.Alert) string {
	projected := make([]promptAlert, 0, len(alerts))
	for _, alert := range alerts {
		body := alert.Body
		if len(body) > s.maxBodyChars {
			body = body[:s.maxBodyChars]
		}
		projected = append(projected, promptAlert{
			Subject:  alert.Subject,
			Source:   string(alert.Source),
			Severity: string(alert.Severity),
			Date:     alert.Date.Format(time.RFC3339),
			Body:     body,
		})
	}

	data, _ := json.MarshalIndent(projected, "", "  ")

	var b strings.Builder
	b.WriteString("Analyze the following DevOps alert emails and create a comprehensive daily report with criticality assessment:\n\n")
	b.WriteString("ALERTS DATA:\n")
	b.Write(data)
	b.WriteString("\n\nPlease provide a detailed analysis with:\n\n")
	b.WriteString("1. **Executive Summary** - total alerts count and time range, overall system health status, immediate action items\n")
	b.WriteString("2. **Critical Issues Analysis** (P1) - business impact, urgency rating, required actions and escalation needs\n")
	b.WriteString("3. **High Priority Issues** (P2) - grouped by affected system, escalation potential, response timeline\n")
	b.WriteString("4. **Monitoring & Trends** - alert frequency patterns, recurring issues, degradation trends\n")
	b.WriteString("5. **Source Analysis** - breakdown by monitoring system, noisiest systems, coverage gaps\n")
	b.WriteString("6. **Actionable Recommendations** - immediate, short-term and long-term actions, alert optimization\n")
	b.WriteString("7. **Risk Assessment** - system stability score (1-10), areas of highest risk, cascade failure points\n\n")
	b.WriteString("Format as clean Markdown with clear severity-based sections, tables for statistics, and a professional tone suitable for management review.\n")
	b.WriteString("Classify criticality based on business impact, not just technical severity.\n")

	return b.String()
}

// ComputeStats aggregates alerts for the fallback report and the
// statistics endpoints. Top subjects are ordered by count, ties broken by
// first-seen order.
func ComputeStats(alerts []*models.Alert) *models.AlertStats {
	stats := &models.AlertStats{
		Total:      len(alerts),
		BySource:   make(map[models.Source]int),
		BySeverity: make(map[models.Severity]int),
		ByHour:     make(map[int]int),
	}

	subjectCounts := make(map[string]int)
	subjectOrder := make([]string, 0, len(alerts))

	for _, alert := range alerts {
		stats.BySource[alert.Source]++
		stats.BySeverity[alert.Severity]++
		stats.ByHour[alert.Date.Hour()]++

		if _, seen := subjectCounts[alert.Subject]; !seen {
			subjectOrder = append(subjectOrder, alert.Subject)
		}
		subjectCounts[alert.Subject]++

		if stats.EarliestAt == nil || alert.Date.Before(*stats.EarliestAt) {
			earliest := alert.Date
			stats.EarliestAt = &earliest
		}
	}

	firstSeen := make(map[string]int, len(subjectOrder))
	for i, subject := range subjectOrder {
		firstSeen[subject] = i
	}

	sort.SliceStable(subjectOrder, func(i, j int) bool {
		if subjectCounts[subjectOrder[i]] != subjectCounts[subjectOrder[j]] {
			return subjectCounts[subjectOrder[i]] > subjectCounts[subjectOrder[j]]
		}
		return firstSeen[subjectOrder[i]] < firstSeen[subjectOrder[j]]
	})

	limit := topSubjectCount
	if len(subjectOrder) < limit {
		limit = len(subjectOrder)
	}
	for _, subject := range subjectOrder[:limit] {
		stats.TopSubjects = append(stats.TopSubjects, models.SubjectCount{
			Subject: subject,
			Count:   subjectCounts[subject],
		})
	}

	return stats
}

// FallbackNarrative renders the deterministic statistical report. It must
// never fail for well-formed alerts.
func FallbackNarrative(alerts []*models.Alert) string {
	stats := ComputeStats(alerts)

	dateRange := "N/A"
	if stats.EarliestAt != nil {
		dateRange = stats.EarliestAt.Format("Mon Jan 2 2006")
	}

	var b strings.Builder
	b.WriteString("# Daily Alert Summary (Fallback Report)\n\n")
	b.WriteString("*AI summarization temporarily unavailable - showing basic statistics*\n\n")
	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "- **Total Alerts:** %d\n", stats.Total)
	fmt.Fprintf(&b, "- **Unique Sources:** %d\n", len(stats.BySource))
	fmt.Fprintf(&b, "- **Date Range:** %s\n\n", dateRange)

	b.WriteString("## Alerts by Source\n")
	for _, source := range sortedSources(stats.BySource) {
		fmt.Fprintf(&b, "- **%s:** %d\n", source, stats.BySource[source])
	}

	b.WriteString("\n## Alerts by Severity\n")
	for _, severity := range severityOrder {
		if count, ok := stats.BySeverity[severity]; ok {
			fmt.Fprintf(&b, "- **%s:** %d\n", severity, count)
		}
	}

	b.WriteString("\n## Top Alert Subjects\n")
	for _, sc := range stats.TopSubjects {
		fmt.Fprintf(&b, "- %s (%dx)\n", sc.Subject, sc.Count)
	}

	b.WriteString("\n## Recommendations\n")
	b.WriteString("- Review high-frequency alerts for potential automation opportunities\n")
	b.WriteString("- Check if critical alerts require immediate attention\n")
	b.WriteString("- Consider alert fatigue reduction strategies\n")

	return b.String()
}

// severityOrder fixes the rendering order of severity tiers
var severityOrder = []models.Severity{
	models.SeverityP1,
	models.SeverityP2,
	models.SeverityP3,
	models.SeverityInfo,
	models.SeverityUnknown,
}

// sortedSources returns source labels in deterministic alphabetical order
func sortedSources(bySource map[models.Source]int) []models.Source {
	sources := make([]models.Source, 0, len(bySource))
	for source := range bySource {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}

// emptyNarrative is the fixed report for a window with no alerts
func emptyNarrative() string {
	var b strings.Builder
	b.WriteString("# Daily Alert Summary\n\n")
	b.WriteString("## Overview\n")
	b.WriteString("- **Total Alerts:** 0\n")
	b.WriteString("- **Status:** No alerts received during the reporting period\n\n")
	b.WriteString("## Summary\n")
	b.WriteString("No monitoring alerts were received during the reporting period. This could indicate:\n")
	b.WriteString("- System stability\n")
	b.WriteString("- Potential monitoring system issues\n")
	b.WriteString("- Alert routing problems\n\n")
	b.WriteString("## Recommendations\n")
	b.WriteString("- Verify monitoring systems are operational\n")
	b.WriteString("- Check alert routing configuration\n")
	b.WriteString("- Review alert thresholds if silence seems unusual\n")
	return b.String()
}
