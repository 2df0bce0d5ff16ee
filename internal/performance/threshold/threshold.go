// Package threshold parses pass/fail criteria and evaluates them against a
// metrics snapshot.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// Metric names a value that can be read from a snapshot.
type Metric string

const (
	MetricFailureRate Metric = "failure_rate"
	MetricP50         Metric = "p50"
	MetricP90         Metric = "p90"
	MetricP95         Metric = "p95"
	MetricP99         Metric = "p99"
	MetricAvg         Metric = "avg"
	MetricMin         Metric = "min"
	MetricMax         Metric = "max"
	MetricRequests    Metric = "requests"
)

// IsLatency reports whether the metric is a latency expressed in milliseconds.
func (m Metric) IsLatency() bool {
	switch m {
	case MetricP50, MetricP90, MetricP95, MetricP99, MetricAvg, MetricMin, MetricMax:
		return true
	default:
		return false
	}
}

var metricAliases = map[string]Metric{
	"failure_rate":         MetricFailureRate,
	"http_req_failed":      MetricFailureRate,
	"http_req_failed:rate": MetricFailureRate,
	"requests":             MetricRequests,
	"http_reqs":            MetricRequests,
	"http_reqs:count":      MetricRequests,
	"http_requests:count":  MetricRequests,
}

func init() {
	for _, m := range []Metric{MetricP50, MetricP90, MetricP95, MetricP99, MetricAvg, MetricMin, MetricMax} {
		metricAliases[string(m)] = m
		metricAliases["http_req_duration:"+string(m)] = m
	}
	for _, p := range []Metric{MetricP50, MetricP90, MetricP95, MetricP99} {
		// p(95), http_req_duration:p(95)
		alias := "p(" + strings.TrimPrefix(string(p), "p") + ")"
		metricAliases[alias] = p
		metricAliases["http_req_duration:"+alias] = p
	}
	metricAliases["mean"] = MetricAvg
}

// Comparators supported in threshold expressions.
var comparators = []string{"<", "<=", ">", ">=", "=="}

// Threshold is a pass/fail criterion: Metric Comparator Bound.
//
// Latency bounds are stored in milliseconds, failure_rate bounds as a
// fraction and request bounds as a count.
type Threshold struct {
	Metric     Metric  `json:"metric"`
	Comparator string  `json:"comparator"`
	Bound      float64 `json:"bound"`
	Raw        string  `json:"raw"`
}

func (t Threshold) String() string {
	if t.Raw != "" {
		return t.Raw
	}
	return fmt.Sprintf("%s %s %s", t.Metric, t.Comparator, FormatValue(t.Metric, t.Bound))
}

// Result is the outcome of evaluating one threshold.
type Result struct {
	Threshold Threshold `json:"threshold"`
	Actual    float64   `json:"actual"`
	Passed    bool      `json:"passed"`
	Message   string    `json:"message"`
}

var expression = regexp.MustCompile(`^\s*([A-Za-z0-9_:()]+)\s*(<=|>=|==|<|>)\s*(\S+)\s*$`)

// Parse parses an expression such as "p95 < 2000ms" or "failure_rate < 0.05".
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold expression")
	}

	matches := expression.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q (expected: <metric> <comparator> <bound>, e.g. 'p95 < 500ms')", s)
	}

	t, err := New(matches[1], matches[2], matches[3])
	if err != nil {
		return Threshold{}, err
	}
	t.Raw = s
	return t, nil
}

// New builds a threshold from its three parts.
func New(metric, comparator, bound string) (Threshold, error) {
	m, ok := metricAliases[strings.ToLower(strings.TrimSpace(metric))]
	if !ok {
		return Threshold{}, fmt.Errorf("unknown metric %q (supported: %s)", metric, strings.Join(SupportedMetrics(), ", "))
	}

	comparator = strings.TrimSpace(comparator)
	if !isValidComparator(comparator) {
		return Threshold{}, fmt.Errorf("unsupported comparator %q (supported: %s)", comparator, strings.Join(comparators, ", "))
	}

	value, err := parseBound(m, strings.TrimSpace(bound))
	if err != nil {
		return Threshold{}, err
	}

	return Threshold{
		Metric:     m,
		Comparator: comparator,
		Bound:      value,
		Raw:        fmt.Sprintf("%s %s %s", metric, comparator, bound),
	}, nil
}

// ParseAll parses several expressions, reporting every invalid one.
func ParseAll(expressions []string) ([]Threshold, error) {
	if len(expressions) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(expressions))
	var errs []string

	for i, s := range expressions {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

// SupportedMetrics returns the canonical metric names.
func SupportedMetrics() []string {
	return []string{
		string(MetricFailureRate), string(MetricP50), string(MetricP90), string(MetricP95),
		string(MetricP99), string(MetricAvg), string(MetricMin), string(MetricMax), string(MetricRequests),
	}
}

func isValidComparator(c string) bool {
	for _, v := range comparators {
		if c == v {
			return true
		}
	}
	return false
}

func parseBound(m Metric, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing bound for %s", m)
	}

	var value float64
	switch {
	case m.IsLatency():
		if d, err := time.ParseDuration(s); err == nil {
			value = float64(d) / float64(time.Millisecond)
		} else {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid latency bound %q for %s (use a duration like 500ms or plain milliseconds)", s, m)
			}
			value = v
		}

	case m == MetricFailureRate:
		pct := strings.HasSuffix(s, "%")
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid failure_rate bound %q (use a fraction like 0.05 or a percentage like 5%%)", s)
		}
		if pct {
			v /= 100
		}
		value = v

	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid bound %q for %s", s, m)
		}
		value = v
	}

	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("bound %q for %s must be a finite, non-negative number", s, m)
	}
	return value, nil
}

// Evaluate checks every threshold against the snapshot. It has no side
// effects; failure_rate is 0 for an empty snapshot.
func Evaluate(snap *metrics.Snapshot, thresholds []Threshold) []Result {
	if len(thresholds) == 0 {
		return nil
	}
	if snap == nil {
		snap = &metrics.Snapshot{}
	}

	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		actual := Value(snap, t.Metric)
		passed := Compare(actual, t.Comparator, t.Bound)

		status := "passed"
		if !passed {
			status = "failed"
		}
		results = append(results, Result{
			Threshold: t,
			Actual:    actual,
			Passed:    passed,
			Message: fmt.Sprintf("%s %s: actual %s, bound %s %s",
				t.String(), status, FormatValue(t.Metric, actual), t.Comparator, FormatValue(t.Metric, t.Bound)),
		})
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Value reads a metric from a snapshot in threshold units.
func Value(snap *metrics.Snapshot, m Metric) float64 {
	ms := func(d time.Duration) float64 {
		return float64(d) / float64(time.Millisecond)
	}

	switch m {
	case MetricFailureRate:
		if snap.TotalRequests == 0 {
			return 0
		}
		return float64(snap.FailedRequests) / float64(snap.TotalRequests)
	case MetricP50:
		return ms(snap.Latency.P50)
	case MetricP90:
		return ms(snap.Latency.P90)
	case MetricP95:
		return ms(snap.Latency.P95)
	case MetricP99:
		return ms(snap.Latency.P99)
	case MetricAvg:
		return ms(snap.Latency.Mean)
	case MetricMin:
		return ms(snap.Latency.Min)
	case MetricMax:
		return ms(snap.Latency.Max)
	case MetricRequests:
		return float64(snap.TotalRequests)
	default:
		return 0
	}
}

// Compare applies a comparator with a small epsilon for equality.
func Compare(actual float64, comparator string, bound float64) bool {
	const epsilon = 1e-9

	switch comparator {
	case "<":
		return actual < bound
	case "<=":
		return actual <= bound || math.Abs(actual-bound) < epsilon
	case ">":
		return actual > bound
	case ">=":
		return actual >= bound || math.Abs(actual-bound) < epsilon
	case "==":
		return math.Abs(actual-bound) < epsilon
	default:
		return false
	}
}

// FormatValue renders a value in the units of its metric.
func FormatValue(m Metric, v float64) string {
	switch {
	case m.IsLatency():
		return strconv.FormatFloat(v, 'f', 2, 64) + "ms"
	case m == MetricFailureRate:
		return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}
