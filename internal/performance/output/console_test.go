package output

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/engine"
	"github.com/wesleyorama2/stampede/internal/performance/executor"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/threshold"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50.00ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDurationShort(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatNumber(tt.number)
			if result != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, result, tt.expected)
			}
		})
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"\033[32mgreen\033[0m", "green"},
		{"\033[1m\033[34mbold blue\033[0m", "bold blue"},
		{"no \033[31mcolors\033[0m here", "no colors here"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := stripANSI(tt.input)
			if result != tt.expected {
				t.Errorf("stripANSI(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	if got := renderProgressBar(0.5, 4); got != "[██░░]" {
		t.Errorf("renderProgressBar(0.5) = %q", got)
	}
	if got := renderProgressBar(2, 2); got != "[██]" {
		t.Errorf("renderProgressBar(2) = %q, want clamped", got)
	}
	if got := renderProgressBar(-1, 2); got != "[░░]" {
		t.Errorf("renderProgressBar(-1) = %q, want clamped", got)
	}
}

func sampleResult(passed bool) *engine.RunResult {
	thresholds, _ := threshold.ParseAll([]string{"failure_rate < 0.05", "p95 < 2000ms"})
	snap := &metrics.Snapshot{
		TotalRequests:   1200,
		SuccessRequests: 1190,
		FailedRequests:  10,
		FailureRate:     10.0 / 1200,
		Latency: metrics.LatencyStats{
			Min: time.Millisecond, Mean: 20 * time.Millisecond,
			P50: 15 * time.Millisecond, P90: 40 * time.Millisecond,
			P95: 50 * time.Millisecond, P99: 90 * time.Millisecond,
			Max: 120 * time.Millisecond, Samples: 1200,
		},
		StatusCodes: map[int]int64{200: 1190, 503: 6},
		Errors:      map[string]int64{"status": 6, "timeout": 4},
	}
	if !passed {
		snap.Latency.P95 = 2500 * time.Millisecond
	}

	return &engine.RunResult{
		ID:         "7d444840-9dc0-11d1-b245-5ffdce74fad2",
		Name:       "stress",
		Executor:   string(executor.TypeStagedVUs),
		Duration:   30 * time.Second,
		Throughput: 40,
		Metrics:    snap,
		Stages: []executor.StageResult{
			{Index: 0, Name: "warm-up", Target: 50, Duration: 10 * time.Second, Elapsed: 10 * time.Second, ActiveAtEnd: 50, Requests: 400},
			{Index: 1, Name: "peak", Target: 100, Duration: 20 * time.Second, Elapsed: 20 * time.Second, ActiveAtEnd: 100, Requests: 800},
		},
		Thresholds: threshold.Evaluate(snap, thresholds),
		Passed:     passed,
	}
}

func TestConsoleOutputCreation(t *testing.T) {
	var buf bytes.Buffer

	output := NewConsoleOutput(ConsoleOutputConfig{
		TestName:     "Test Name",
		ExecutorType: "constant-vus",
		Writer:       &buf,
	})

	if output.testName != "Test Name" {
		t.Errorf("testName = %q, want %q", output.testName, "Test Name")
	}
	if output.IsTTY() {
		t.Error("Expected non-TTY when writing to buffer")
	}
	if output.updateInterval != time.Second || output.nonInteractiveInterval != 10*time.Second {
		t.Errorf("intervals = %v/%v, want defaults", output.updateInterval, output.nonInteractiveInterval)
	}
}

func TestPrintSummary_Passed(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})

	output.PrintSummary(sampleResult(true))
	out := buf.String()

	for _, want := range []string{
		"stress - Completed ✓",
		"Run ID:", "7d444840-9dc0-11d1-b245-5ffdce74fad2",
		"Total Reqs:", "1,200",
		"Throughput:", "40.0 req/s",
		"200: 1,190", "503: 6",
		"timeout: 4",
		"P95:", "50.00ms",
		"warm-up", "peak",
		"THRESHOLDS",
		"✓ PASS", "failure_rate < 0.05", "actual 0.83%",
		"THRESHOLDS PASSED (2/2)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("summary written to a buffer should not contain ANSI codes")
	}
}

func TestPrintSummary_Failed(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})

	output.PrintSummary(sampleResult(false))
	out := buf.String()

	for _, want := range []string{"Failed ✗", "✗ FAIL", "p95 < 2000ms", "actual 2500.00ms", "THRESHOLDS FAILED (1 of 2 failed)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummary_InterruptedAndNoThresholds(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})

	result := sampleResult(true)
	result.Interrupted = true
	result.Thresholds = nil
	result.Stages[1].Interrupted = true
	output.PrintSummary(result)
	out := buf.String()

	for _, want := range []string{"Interrupted", "results are partial", "peak*", "none defined"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummary_Quiet(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, Quiet: true})

	output.PrintHeader()
	output.PrintSummary(sampleResult(false))

	if got := strings.TrimSpace(buf.String()); got != "FAILED" {
		t.Errorf("quiet output = %q, want FAILED", got)
	}
}

func TestPrintSummary_ForcedColors(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, ForceColors: true})

	output.PrintSummary(sampleResult(true))
	if !strings.Contains(buf.String(), "\033[") {
		t.Error("ForceColors should emit ANSI codes")
	}

	buf.Reset()
	output = NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, ForceColors: true, NoColor: true})
	output.PrintSummary(sampleResult(true))
	if strings.Contains(buf.String(), "\033[") {
		t.Error("NoColor should win over ForceColors")
	}
}

func TestUpdate_TTY(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, ForceTTY: true})

	stats := &LiveStats{Progress: 0.5, Elapsed: 5 * time.Second, Remaining: 5 * time.Second,
		ActiveVUs: 10, TargetVUs: 20, TotalRequests: 1500, CurrentRPS: 99.5, Phase: "ramp-up", Stage: "stage 2"}
	output.Update(stats)

	first := buf.String()
	for _, want := range []string{"50%", "ramp-up (stage 2)", "1,500", "99.5"} {
		if !strings.Contains(first, want) {
			t.Errorf("live display missing %q:\n%s", want, first)
		}
	}

	// A second update moves the cursor back over the previous block.
	output.Update(stats)
	if !strings.Contains(buf.String()[len(first):], "\033[") {
		t.Error("second update should rewrite the previous block")
	}
}

func TestPrintNonInteractiveUpdate(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf})

	output.PrintNonInteractiveUpdate(&LiveStats{Progress: 0.25, ActiveVUs: 3, TargetVUs: 4, TotalRequests: 42, Phase: "steady"})
	line := buf.String()
	for _, want := range []string{"Progress: 25%", "Phase: steady", "VUs: 3/4", "Reqs: 42"} {
		if !strings.Contains(line, want) {
			t.Errorf("update missing %q: %s", want, line)
		}
	}

	// Update is a no-op without a terminal.
	buf.Reset()
	output.Update(&LiveStats{})
	if buf.Len() != 0 {
		t.Errorf("Update() wrote to a non-TTY: %q", buf.String())
	}
}

func TestStatsFromProgress(t *testing.T) {
	p := engine.Progress{
		Fraction: 0.4, Elapsed: 4 * time.Second, Total: 10 * time.Second,
		Phase: metrics.PhaseSteady, ActiveVUs: 5, TargetVUs: 5, Requests: 77,
		Latest: &metrics.TimeBucket{RPS: 20, FailureRate: 0.1, P95: 30 * time.Millisecond},
	}

	s := StatsFromProgress(p)
	if s.Remaining != 6*time.Second {
		t.Errorf("Remaining = %v, want 6s", s.Remaining)
	}
	if s.CurrentRPS != 20 || s.ErrorRate != 0.1 || s.LatencyP95 != 30*time.Millisecond {
		t.Errorf("bucket stats = %+v", s)
	}
	if s.Phase != "steady" || s.TotalRequests != 77 {
		t.Errorf("stats = %+v", s)
	}

	p.Latest = nil
	p.Elapsed = 12 * time.Second
	s = StatsFromProgress(p)
	if s.Remaining != 0 || s.CurrentRPS != 0 {
		t.Errorf("stats without bucket = %+v", s)
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	output := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NonInteractiveInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	calls := 0
	output.Watch(ctx, func() engine.Progress {
		calls++
		return engine.Progress{Phase: metrics.PhaseSteady}
	})

	if calls == 0 {
		t.Error("Watch() never polled progress")
	}
	if !strings.Contains(buf.String(), "Phase: steady") {
		t.Errorf("Watch() output = %q", buf.String())
	}
}
