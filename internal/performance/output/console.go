// Package output renders run progress and results on the console.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/pacer/internal/performance/engine"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/run"
)

// Cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	ruleChar       = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"
	progressFilled = "█"
	progressEmpty  = "░"

	boxWidth = 57
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	// Progress tracking
	Progress float64 // 0.0 to 1.0
	RunTime  time.Duration
	WarmUp   bool

	Threads int
	Phase   string

	Iterations int64
	Throughput float64
	Failures   int64
	ErrorRate  float64

	LatencyP95   time.Duration
	LatencyMean  time.Duration
	QueueLatency time.Duration
}

// StatsFromSnapshot creates LiveStats from a result snapshot.
func StatsFromSnapshot(s *metrics.Snapshot) *LiveStats {
	if s == nil {
		return &LiveStats{Phase: string(metrics.PhaseInit)}
	}

	warmUp := false
	for _, tag := range s.Tags {
		if tag == run.TagWarmUp {
			warmUp = true
		}
	}

	return &LiveStats{
		Progress:     s.Percentage / 100,
		RunTime:      s.RunTime,
		WarmUp:       warmUp,
		Threads:      s.Threads,
		Phase:        string(s.CurrentPhase),
		Iterations:   s.Iterations,
		Throughput:   s.Throughput,
		Failures:     s.Failures,
		ErrorRate:    s.ErrorRate,
		LatencyP95:   s.Latency.P95,
		LatencyMean:  s.Latency.Mean,
		QueueLatency: s.QueueLatency.P95,
	}
}

// ConsoleOutput renders live progress and the final summary.
//
// It is a metrics.Destination: the report manager publishes snapshots to it
// periodically. On a terminal the live view is redrawn in place; otherwise
// one status line is printed per snapshot.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type ConsoleOutput struct {
	name      string
	generator string
	period    string
	writer    io.Writer
	isTTY     bool
	quiet     bool
	palette   *Palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	Name        string
	Generator   string
	Period      string
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	palette := NoColorPalette()
	if !config.NoColor && (config.ForceColors || (isTTY && supportsColors())) {
		palette = DefaultPalette()
	}

	return &ConsoleOutput{
		name:      config.Name,
		generator: config.Generator,
		period:    config.Period,
		writer:    config.Writer,
		isTTY:     isTTY,
		quiet:     config.Quiet,
		palette:   palette,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// Publish implements metrics.Destination.
func (c *ConsoleOutput) Publish(s *metrics.Snapshot) {
	if s.CurrentPhase == metrics.PhaseDone {
		return
	}
	stats := StatsFromSnapshot(s)
	if c.isTTY {
		c.Update(stats)
	} else {
		c.PrintNonInteractiveUpdate(stats)
	}
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.palette
	rule := strings.Repeat(ruleChar, boxWidth)
	info := ""
	if c.generator != "" {
		info = fmt.Sprintf(" [%s, %s]", c.generator, c.period)
	}

	c.writeln(p.Rule.Sprint(rule))
	c.writeln(p.Title.Sprintf("%s - Running%s", c.name, info))
	c.writeln(p.Rule.Sprint(rule))
	c.writeln("")
}

// Update redraws the live display.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	p := c.palette
	var lines []string

	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		p.Good.Sprint(renderProgressBar(stats.Progress, 40)),
		p.Title.Sprintf("%.0f%%", stats.Progress*100),
		p.Dim.Sprint(formatDuration(stats.RunTime))))

	phase := stats.Phase
	if stats.WarmUp {
		phase += " (warm-up)"
	}
	lines = append(lines, fmt.Sprintf("Phase:    %s", p.Phase.Sprint(phase)))
	lines = append(lines, "")

	lines = append(lines, p.Dim.Sprint(boxTopLeft+strings.Repeat(ruleChar, boxWidth-2)+boxTopRight))

	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("Threads:    %s", p.Value.Sprint(stats.Threads)),
		fmt.Sprintf("Iterations: %s", p.Value.Sprint(formatNumber(stats.Iterations))),
	))

	errColor := p.rate(stats.ErrorRate)
	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("Throughput: %s", p.Good.Sprintf("%.1f/s", stats.Throughput)),
		fmt.Sprintf("Failures:   %s (%s)", errColor.Sprint(stats.Failures), errColor.Sprintf("%.1f%%", stats.ErrorRate*100)),
	))

	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("P95:        %s", p.Latency.Sprint(formatLatency(stats.LatencyP95))),
		fmt.Sprintf("Avg:        %s", p.Latency.Sprint(formatLatency(stats.LatencyMean))),
	))

	lines = append(lines, p.Dim.Sprint(boxBottomLeft+strings.Repeat(ruleChar, boxWidth-2)+boxBottomRight))

	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2
	leftPadding := max(colWidth-len([]rune(stripANSI(left))), 0)
	rightPadding := max(colWidth-len([]rune(stripANSI(right))), 0)

	bar := c.palette.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s%s",
		bar,
		left, strings.Repeat(" ", leftPadding),
		bar,
		right, strings.Repeat(" ", rightPadding),
		bar)
}

func renderProgressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// PrintNonInteractiveUpdate prints a one-line status update. Used when the
// output is not a terminal (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	phase := stats.Phase
	if stats.WarmUp {
		phase += "/warm-up"
	}
	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | Phase: %s | Threads: %d | Iterations: %d | Throughput: %.1f/s | Failures: %d (%.1f%%) | P95: %s",
		formatDuration(stats.RunTime),
		stats.Progress*100,
		phase,
		stats.Threads,
		stats.Iterations,
		stats.Throughput,
		stats.Failures,
		stats.ErrorRate*100,
		formatLatency(stats.LatencyP95)))
}

// PrintSummary prints the final summary.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.palette
	if c.quiet {
		if result.Passed {
			c.writeln(p.Good.Sprint("PASSED"))
		} else {
			c.writeln(p.Bad.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	rule := strings.Repeat(ruleChar, boxWidth)
	status := p.Good.Sprint("Completed ✓")
	switch {
	case result.Aborted:
		status = p.Bad.Sprint("Aborted ✗")
	case !result.Passed:
		status = p.Bad.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(p.Rule.Sprint(rule))
	c.writeln(fmt.Sprintf("%s - %s", p.Title.Sprint(result.Name), status))
	c.writeln(p.Rule.Sprint(rule))
	c.writeln("")

	c.writeln(fmt.Sprintf("Generator:     %s (%s)", p.Value.Sprint(result.Generator), result.Period))
	c.writeln(fmt.Sprintf("Duration:      %s", p.Value.Sprint(formatDuration(result.Duration))))

	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Iterations:    %s", p.Value.Sprint(formatNumber(m.Iterations))))
		c.writeln(fmt.Sprintf("Throughput:    %s", p.Value.Sprintf("%.1f/s", m.Throughput)))
		successRate := 1.0 - m.ErrorRate
		c.writeln(fmt.Sprintf("Success Rate:  %s", p.rate(m.ErrorRate).Sprintf("%.1f%%", successRate*100)))
		c.writeln(fmt.Sprintf("Transferred:   %s sent, %s received", formatBytes(m.RequestBytes), formatBytes(m.ResponseBytes)))
		c.writeln("")

		c.writeln(p.Label.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatLatency(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatLatency(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatLatency(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatLatency(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatLatency(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatLatency(m.Latency.Max)))
		c.writeln(fmt.Sprintf("  Queued P95: %s", formatLatency(m.QueueLatency.P95)))
		c.writeln("")
	}

	if len(result.Concurrency) > 1 {
		c.writeln(p.Label.Sprint("Concurrency:"))
		for _, change := range result.Concurrency {
			c.writeln(fmt.Sprintf("  %-10s %3d threads at %d", change.Phase, change.Threads, change.Progress))
		}
		c.writeln("")
	}

	if v := result.Validation; v != nil {
		icon := p.Good.Sprint("✓")
		if v.Failed > 0 {
			icon = p.Bad.Sprint("✗")
		}
		c.writeln(fmt.Sprintf("%s Validation:  %d passed, %d failed, %d skipped", icon, v.Passed, v.Failed, v.Skipped))
	}
	if cs := result.Correlation; cs != nil {
		c.writeln(fmt.Sprintf("  Correlation: %d matched of %d, %d unknown, %d pending", cs.Matched, cs.Registered, cs.Unknown, cs.Pending))
	}
	if result.Stats.Residual > 0 {
		c.writeln(p.Warn.Sprintf("⚠ %d sender tasks did not finish within the shutdown period", result.Stats.Residual))
	}
	if result.Error != "" {
		c.writeln(p.Bad.Sprintf("Error: %s", result.Error))
	}
	c.writeln("")
}

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, result *engine.TestResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// WriteJSONFile writes the result as indented JSON to path.
func WriteJSONFile(path string, result *engine.TestResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

var _ metrics.Destination = (*ConsoleOutput)(nil)
