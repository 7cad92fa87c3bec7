package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/wesleyorama2/pacer/internal/performance/engine"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
)

// ReportData contains all data needed to render the HTML report.
type ReportData struct {
	*engine.TestResult
	Points         []Point
	TimeSeriesJSON template.JS
}

// chartPoint is the JSON form of a Point, with latencies in milliseconds.
type chartPoint struct {
	Elapsed    float64 `json:"elapsed"`
	Percentage float64 `json:"percentage"`
	Throughput float64 `json:"throughput"`
	ErrorRate  float64 `json:"errorRate"`
	P50        float64 `json:"p50"`
	P95        float64 `json:"p95"`
	P99        float64 `json:"p99"`
	Threads    int     `json:"threads"`
	Phase      string  `json:"phase"`
}

// GenerateHTML renders the report and writes it to outputPath.
func GenerateHTML(result *engine.TestResult, points []Point, outputPath string) error {
	html, err := GenerateHTMLString(result, points)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}

	return nil
}

// GenerateHTMLString renders the report.
func GenerateHTMLString(result *engine.TestResult, points []Point) (string, error) {
	if result == nil {
		return "", errors.New("result cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	series, err := chartJSON(points)
	if err != nil {
		return "", fmt.Errorf("failed to convert time series: %w", err)
	}

	data := ReportData{
		TestResult:     result,
		Points:         points,
		TimeSeriesJSON: template.JS(series),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func chartJSON(points []Point) (string, error) {
	out := make([]chartPoint, 0, len(points))
	for _, p := range points {
		if p.Phase == metrics.PhaseDone {
			continue
		}
		out = append(out, chartPoint{
			Elapsed:    p.Elapsed.Seconds(),
			Percentage: p.Percentage,
			Throughput: p.IntervalThroughput,
			ErrorRate:  p.IntervalErrorRate * 100,
			P50:        millis(p.LatencyP50),
			P95:        millis(p.LatencyP95),
			P99:        millis(p.LatencyP99),
			Threads:    p.Threads,
			Phase:      string(p.Phase),
		})
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "[]", err
	}
	return string(b), nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatLatency":  formatLatency,
		"formatBytes":    formatBytes,
		"mul":            mul,
		"successRate":    successRate,
		"add":            func(a, b int64) int64 { return a + b },
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		mins, secs := int(d.Minutes()), int(d.Seconds())%60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours, mins := int(d.Hours()), int(d.Minutes())%60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatNumber formats a number with commas.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	var b bytes.Buffer
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// formatLatency formats a latency with a precision that fits its size.
func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < 10*time.Millisecond:
		return fmt.Sprintf("%.2fms", millis(d))
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func mul(a, b float64) float64 {
	return a * b
}

// successRate is the share of iterations without a failure, in percent.
func successRate(m *metrics.Snapshot) float64 {
	if m == nil || m.Iterations == 0 {
		return 0
	}
	return float64(m.Iterations-m.Failures) / float64(m.Iterations) * 100
}
