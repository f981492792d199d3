// File: internal/report/renderer.go
package report

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/internal/summarize"
)

// Renderer turns a report and its alerts into the HTML document delivered
// by email, plus a plain-text alternative
type Renderer struct{}

// NewRenderer creates a new report renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

var (
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	spacesPattern = regexp.MustCompile(`[ \t]+`)
)

// RenderHTML produces the full HTML report document
func (r *Renderer) RenderHTML(rep *models.Report, alerts []*models.Alert, reportDate time.Time) string {
	stats := summarize.ComputeStats(alerts)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<style>body{font-family:Arial,sans-serif;max-width:800px;margin:0 auto;padding:1rem;color:#222}")
	b.WriteString("table{border-collapse:collapse;margin:1rem 0}td,th{border:1px solid #ccc;padding:4px 10px;text-align:left}")
	b.WriteString("h1{border-bottom:2px solid #444}.meta{color:#666;font-size:0.9em}</style>\n")
	b.WriteString("</head>\n<body>\n")

	fmt.Fprintf(&b, "<h1>Daily Alert Summary - %s</h1>\n", reportDate.Format("January 2, 2006"))
	fmt.Fprintf(&b, "<p class=\"meta\">Generated at %s | %d alerts | report tier: %s</p>\n",
		rep.GeneratedAt.Format(time.RFC1123), stats.Total, rep.Tier)

	if stats.Total > 0 {
		b.WriteString("<h2>Alerts by Severity</h2>\n<table>\n<tr><th>Severity</th><th>Count</th></tr>\n")
		for _, severity := range []models.Severity{models.SeverityP1, models.SeverityP2, models.SeverityP3, models.SeverityInfo, models.SeverityUnknown} {
			if count, ok := stats.BySeverity[severity]; ok {
				fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td></tr>\n", severity, count)
			}
		}
		b.WriteString("</table>\n")

		b.WriteString("<h2>Alerts by Source</h2>\n<table>\n<tr><th>Source</th><th>Count</th></tr>\n")
		for _, sc := range sourceCountRows(stats.BySource) {
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td></tr>\n", html.EscapeString(sc.label), sc.count)
		}
		b.WriteString("</table>\n")
	}

	b.WriteString("<h2>Narrative</h2>\n")
	b.WriteString(narrativeToHTML(rep.Narrative))

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// RenderText derives a plain-text alternative from an HTML document
func (r *Renderer) RenderText(htmlDoc string) string {
	text := tagPattern.ReplaceAllString(htmlDoc, " ")
	text = html.UnescapeString(text)
	return strings.TrimSpace(spacesPattern.ReplaceAllString(text, " "))
}

type sourceCountRow struct {
	label string
	count int
}

func sourceCountRows(bySource map[models.Source]int) []sourceCountRow {
	rows := make([]sourceCountRow, 0, len(bySource))
	for source, count := range bySource {
		rows = append(rows, sourceCountRow{string(source), count})
	}
	// Alphabetical order so the table is deterministic
	sort.Slice(rows, func(i, j int) bool { return rows[i].label < rows[j].label })
	return rows
}

// narrativeToHTML converts the markdown-flavored narrative into simple
// HTML. Only the constructs the summarizer actually emits are handled.
func narrativeToHTML(narrative string) string {
	var b strings.Builder
	inList := false

	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range strings.Split(narrative, "\n") {
		trimmed := strings.TrimSpace(line)
		escaped := boldPattern.ReplaceAllString(html.EscapeString(trimmed), "<strong>$1</strong>")

		switch {
		case trimmed == "":
			closeList()
		case strings.HasPrefix(trimmed, "### "):
			closeList()
			fmt.Fprintf(&b, "<h4>%s</h4>\n", strings.TrimPrefix(escaped, "### "))
		case strings.HasPrefix(trimmed, "## "):
			closeList()
			fmt.Fprintf(&b, "<h3>%s</h3>\n", strings.TrimPrefix(escaped, "## "))
		case strings.HasPrefix(trimmed, "# "):
			closeList()
			fmt.Fprintf(&b, "<h2>%s</h2>\n", strings.TrimPrefix(escaped, "# "))
		case strings.HasPrefix(trimmed, "- "):
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&b, "<li>%s</li>\n", strings.TrimPrefix(escaped, "- "))
		default:
			closeList()
			fmt.Fprintf(&b, "<p>%s</p>\n", escaped)
		}
	}
	closeList()

	return b.String()
}
