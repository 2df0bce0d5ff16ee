// Package output renders stampede run progress and results to the console
// and as JSON.
package output

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/engine"
	"github.com/wesleyorama2/stampede/internal/performance/threshold"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA" // Move cursor up N lines
	clearLine = "\033[2K"  // Clear entire line

	// Box drawing characters
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	// Progress bar characters
	progressFilled = "█"
	progressEmpty  = "░"

	ruleWidth = 56
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	TotalRequests int64

	// From the latest completed one-second bucket
	CurrentRPS float64
	ErrorRate  float64
	LatencyP95 time.Duration

	Phase string
	Stage string
}

// StatsFromProgress creates LiveStats from engine progress.
func StatsFromProgress(p engine.Progress) *LiveStats {
	remaining := p.Total - p.Elapsed
	if remaining < 0 {
		remaining = 0
	}

	stats := &LiveStats{
		Progress:      p.Fraction,
		Elapsed:       p.Elapsed,
		Remaining:     remaining,
		ActiveVUs:     p.ActiveVUs,
		TargetVUs:     p.TargetVUs,
		TotalRequests: p.Requests,
		Phase:         string(p.Phase),
		Stage:         p.Stage,
	}
	if p.Latest != nil {
		stats.CurrentRPS = p.Latest.RPS
		stats.ErrorRate = p.Latest.FailureRate
		stats.LatencyP95 = p.Latest.P95
	}
	return stats
}

// ConsoleOutput manages console output during and after a run.
type ConsoleOutput struct {
	testName               string
	executorType           string
	updateInterval         time.Duration
	nonInteractiveInterval time.Duration
	writer                 io.Writer
	isTTY                  bool
	quiet                  bool
	colors                 *ColorScheme

	mu          sync.Mutex
	linesOutput int // Number of lines in the live display
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName     string
	ExecutorType string

	// UpdateInterval is the live refresh rate on a terminal (default 1s)
	UpdateInterval time.Duration

	// NonInteractiveInterval is the progress line rate otherwise (default 10s)
	NonInteractiveInterval time.Duration

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
	if config.UpdateInterval == 0 {
		config.UpdateInterval = time.Second
	}
	if config.NonInteractiveInterval == 0 {
		config.NonInteractiveInterval = 10 * time.Second
	}

	isTTY := config.ForceTTY || IsTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = DefaultColorScheme()
	}

	return &ConsoleOutput{
		testName:               config.TestName,
		executorType:           config.ExecutorType,
		updateInterval:         config.UpdateInterval,
		nonInteractiveInterval: config.NonInteractiveInterval,
		writer:                 config.Writer,
		isTTY:                  isTTY,
		quiet:                  config.Quiet,
		colors:                 colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test header.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	executorInfo := ""
	if c.executorType != "" {
		executorInfo = fmt.Sprintf(" [%s]", c.executorType)
	}

	c.rule()
	c.writeln(c.colors.Title.Sprintf("%s - Running%s", c.testName, executorInfo))
	c.rule()
	c.writeln("")
}

// Watch renders progress until ctx is done. On a terminal the live display
// is redrawn every UpdateInterval; otherwise a status line is printed every
// NonInteractiveInterval.
func (c *ConsoleOutput) Watch(ctx context.Context, progress func() engine.Progress) {
	if c.quiet {
		return
	}

	interval := c.updateInterval
	if !c.isTTY {
		interval = c.nonInteractiveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := StatsFromProgress(progress())
			if c.isTTY {
				c.Update(stats)
			} else {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// Update redraws the live display with new statistics.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLiveLocked()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *ConsoleOutput) clearLiveLocked() {
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

// renderLiveStats renders the live statistics display.
func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressPercent := fmt.Sprintf("%.0f%%", stats.Progress*100)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Progress.Sprint(renderProgressBar(stats.Progress, 40)),
		c.colors.Title.Sprint(progressPercent),
		c.colors.Dim.Sprint(timeInfo)))

	phaseInfo := stats.Phase
	if stats.Stage != "" {
		phaseInfo = fmt.Sprintf("%s (%s)", stats.Phase, stats.Stage)
	}
	lines = append(lines, fmt.Sprintf("Phase:    %s", c.colors.Stage.Sprint(phaseInfo)))
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vusStr := fmt.Sprintf("VUs:     %s / %d", c.colors.Value.Sprint(stats.ActiveVUs), stats.TargetVUs)
	reqsStr := fmt.Sprintf("Requests:    %s", c.colors.Value.Sprint(formatNumber(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(vusStr, reqsStr, boxWidth))

	rateColor := c.colors.forRate(stats.ErrorRate)
	rpsStr := fmt.Sprintf("RPS:     %s", c.colors.Good.Sprintf("%.1f", stats.CurrentRPS))
	errStr := fmt.Sprintf("Errors:      %s", rateColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rpsStr, errStr, boxWidth))

	p95Str := fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyP95)))
	lines = append(lines, c.formatBoxRow(p95Str, "", boxWidth))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2 // 4 = 2 borders + 2 padding

	leftPadding := max(colWidth-visibleLen(left), 0)
	rightPadding := max(colWidth-visibleLen(right), 0)

	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border, left, strings.Repeat(" ", leftPadding),
		border, right, strings.Repeat(" ", rightPadding),
		border)
}

// PrintNonInteractiveUpdate prints a one-line status update.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | Phase: %s | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %.1f%% | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.Phase,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the final report.
func (c *ConsoleOutput) PrintSummary(result *engine.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		// In quiet mode, just print passed/failed status
		if result.Passed {
			c.writeln(c.colors.Good.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Bad.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLiveLocked()
	}

	status := c.colors.Good.Sprint("Completed ✓")
	switch {
	case !result.Passed:
		status = c.colors.Bad.Sprint("Failed ✗")
	case result.Interrupted:
		status = c.colors.Warn.Sprint("Interrupted")
	}

	c.writeln("")
	c.rule()
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.rule()
	c.writeln("")

	c.field("Run ID", result.ID)
	c.field("Executor", result.Executor)
	c.field("Duration", formatDuration(result.Duration))
	if result.Interrupted {
		c.writeln(c.colors.Warn.Sprint("Run interrupted before the load profile completed; results are partial."))
	}

	if m := result.Metrics; m != nil {
		c.field("Total Reqs", formatNumber(m.TotalRequests))
		successRate := 1.0
		if m.TotalRequests > 0 {
			successRate = 1.0 - m.FailureRate
		}
		c.writeln(fmt.Sprintf("%-15s%s", "Success Rate:", c.colors.forRate(1-successRate).Sprintf("%.1f%%", successRate*100)))
		c.field("Throughput", fmt.Sprintf("%.1f req/s", result.Throughput))
		c.writeln("")

		if len(m.StatusCodes) > 0 {
			c.writeln(c.colors.Label.Sprint("Status Codes:"))
			for _, code := range slices.Sorted(maps.Keys(m.StatusCodes)) {
				c.writeln(fmt.Sprintf("  %d: %s", code, formatNumber(m.StatusCodes[code])))
			}
			c.writeln("")
		}
		if len(m.Errors) > 0 {
			c.writeln(c.colors.Label.Sprint("Errors:"))
			for _, kind := range slices.Sorted(maps.Keys(m.Errors)) {
				c.writeln(fmt.Sprintf("  %s: %s", kind, c.colors.Bad.Sprint(formatNumber(m.Errors[kind]))))
			}
			c.writeln("")
		}

		c.writeln(c.colors.Label.Sprint("Latency Distribution:"))
		for _, row := range []struct {
			name  string
			value time.Duration
		}{
			{"Min", m.Latency.Min},
			{"Mean", m.Latency.Mean},
			{"P50", m.Latency.P50},
			{"P90", m.Latency.P90},
			{"P95", m.Latency.P95},
			{"P99", m.Latency.P99},
			{"Max", m.Latency.Max},
		} {
			c.writeln(fmt.Sprintf("  %-10s %s", row.name+":", c.colors.Latency.Sprint(formatDurationShort(row.value))))
		}
		if m.Latency.Samples > 0 && int64(m.Latency.Samples) < m.TotalRequests {
			c.writeln(c.colors.Dim.Sprintf("  (percentiles from %s most recent samples)", formatNumber(int64(m.Latency.Samples))))
		}
		c.writeln("")
	}

	if len(result.Stages) > 0 {
		c.writeln(c.colors.Label.Sprint("Stages:"))
		c.writeln(fmt.Sprintf("  %-3s %-16s %7s %7s %9s %9s %10s", "#", "NAME", "TARGET", "ACTIVE", "HOLD", "ELAPSED", "REQUESTS"))
		for _, s := range result.Stages {
			name := s.Name
			if s.Interrupted {
				name += "*"
			}
			c.writeln(fmt.Sprintf("  %-3d %-16s %7d %7d %9s %9s %10s",
				s.Index+1, truncate(name, 16), s.Target, s.ActiveAtEnd,
				formatDuration(s.Duration), formatDuration(s.Elapsed), formatNumber(s.Requests)))
		}
		c.writeln("")
	}

	c.printThresholds(result.Thresholds)
}

func (c *ConsoleOutput) printThresholds(results []threshold.Result) {
	c.writeln(c.colors.Title.Sprint("THRESHOLDS"))
	if len(results) == 0 {
		c.writeln(c.colors.Dim.Sprint("  none defined"))
		c.writeln("")
		return
	}

	failed := 0
	for _, r := range results {
		mark := c.colors.Good.Sprint("✓ PASS")
		if !r.Passed {
			mark = c.colors.Bad.Sprint("✗ FAIL")
			failed++
		}
		c.writeln(fmt.Sprintf("  %s  %-28s actual %s", mark, r.Threshold.String(),
			threshold.FormatValue(r.Threshold.Metric, r.Actual)))
	}
	c.writeln("")

	if failed == 0 {
		c.writeln(c.colors.Good.Sprintf("THRESHOLDS PASSED (%d/%d)", len(results), len(results)))
	} else {
		c.writeln(c.colors.Bad.Sprintf("THRESHOLDS FAILED (%d of %d failed)", failed, len(results)))
	}
	c.writeln("")
}

func (c *ConsoleOutput) field(label, value string) {
	c.writeln(fmt.Sprintf("%-15s%s", label+":", c.colors.Value.Sprint(value)))
}

func (c *ConsoleOutput) rule() {
	c.writeln(c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth)))
}

// write writes to the output without a newline.
func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	progress = min(max(progress, 0), 1)

	filled := int(progress * float64(width))
	empty := width - filled

	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, empty) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// visibleLen is the printed width of s, ignoring ANSI sequences.
func visibleLen(s string) int {
	return len([]rune(stripANSI(s)))
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
