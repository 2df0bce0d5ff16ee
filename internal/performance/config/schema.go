// Package config loads and validates stampede test configurations.
//
// A configuration is a YAML or JSON file describing the target request, the
// load shape (a constant VU count or a list of stages), think-time,
// thresholds and run settings. Loading validates the document against an
// embedded JSON Schema, then checks semantics, and reports every problem
// with the path of the offending field.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestConfig is the root configuration structure.
type TestConfig struct {
	// Name identifies the test in reports
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description provides additional context
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Target is the request every VU sends
	Target TargetConfig `json:"target" yaml:"target"`

	// ThinkTime is the pause between iterations
	ThinkTime ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Load defines the VU profile
	Load LoadProfile `json:"load" yaml:"load"`

	// Thresholds are pass/fail criteria evaluated after the run
	Thresholds []ThresholdConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Settings are run-level knobs
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// TargetConfig defines the request sent on every iteration.
type TargetConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Timeout bounds a single request
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Expect holds checks applied to every response
	Expect ExpectConfig `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// ExpectConfig defines response checks. With no status list any status
// below 400 is a success.
type ExpectConfig struct {
	Status []int             `json:"status,omitempty" yaml:"status,omitempty"`
	JSON   []JSONCheckConfig `json:"json,omitempty" yaml:"json,omitempty"`
}

// JSONCheckConfig asserts that a JSONPath in the response body holds a value.
type JSONCheckConfig struct {
	Path   string      `json:"path" yaml:"path"`
	Equals interface{} `json:"equals,omitempty" yaml:"equals,omitempty"`
}

// LoadProfile defines the VU profile. Either VUs and Duration (constant load)
// or Stages (stepped load) must be set.
type LoadProfile struct {
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration      `json:"duration,omitempty" yaml:"duration,omitempty"`
	Stages   []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// IsStaged reports whether the load profile uses stages.
func (l LoadProfile) IsStaged() bool {
	return len(l.Stages) > 0
}

// StageConfig defines a single stage.
type StageConfig struct {
	// Duration is how long the stage holds its target
	Duration Duration `json:"duration" yaml:"duration"`

	// Target VU count for this stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Settings are run-level options.
type Settings struct {
	// MaxVUs caps the VU pool; 0 means unbounded
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// GracefulStop bounds how long the final drain may take; 0 waits forever
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// MaxSamples bounds retained latency samples; 0 keeps all
	MaxSamples int `json:"maxSamples,omitempty" yaml:"maxSamples,omitempty"`

	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// ThinkTimeConfig is either a fixed duration ("1s") or a uniform range
// ({min: 100ms, max: 500ms}).
type ThinkTimeConfig struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// IsFixed reports whether the think-time is a single value.
func (t ThinkTimeConfig) IsFixed() bool {
	return t.Min == t.Max
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ThinkTimeConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var d Duration
		if err := node.Decode(&d); err != nil {
			return err
		}
		t.Min, t.Max = d, d
		return nil
	}

	type plain ThinkTimeConfig
	return node.Decode((*plain)(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThinkTimeConfig) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		*t = ThinkTimeConfig{}
		return nil
	}
	if !strings.HasPrefix(trimmed, "{") {
		var d Duration
		if err := d.UnmarshalJSON(b); err != nil {
			return err
		}
		t.Min, t.Max = d, d
		return nil
	}

	type plain ThinkTimeConfig
	return json.Unmarshal(b, (*plain)(t))
}

// MarshalYAML implements yaml.Marshaler.
func (t ThinkTimeConfig) MarshalYAML() (interface{}, error) {
	if t.IsFixed() {
		return t.Min, nil
	}
	type plain ThinkTimeConfig
	return plain(t), nil
}

// MarshalJSON implements json.Marshaler.
func (t ThinkTimeConfig) MarshalJSON() ([]byte, error) {
	if t.IsFixed() {
		return t.Min.MarshalJSON()
	}
	type plain ThinkTimeConfig
	return json.Marshal(plain(t))
}

// ThresholdConfig is either an expression ("p95 < 500ms") or its parts
// ({metric: p95, comparator: "<", bound: 500ms}).
type ThresholdConfig struct {
	Expression string `json:"-" yaml:"-"`
	Metric     string `json:"metric,omitempty" yaml:"metric,omitempty"`
	Comparator string `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Bound      string `json:"bound,omitempty" yaml:"bound,omitempty"`
}

func (t ThresholdConfig) String() string {
	if t.Expression != "" {
		return t.Expression
	}
	return fmt.Sprintf("%s %s %s", t.Metric, t.Comparator, t.Bound)
}

// thresholdParts mirrors the mapping form; the bound may be a number.
type thresholdParts struct {
	Metric     string      `json:"metric" yaml:"metric"`
	Comparator string      `json:"comparator" yaml:"comparator"`
	Bound      interface{} `json:"bound" yaml:"bound"`
}

func (p thresholdParts) config() ThresholdConfig {
	bound := ""
	switch v := p.Bound.(type) {
	case nil:
	case float64:
		bound = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		bound = fmt.Sprint(v)
	}
	return ThresholdConfig{Metric: p.Metric, Comparator: p.Comparator, Bound: bound}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ThresholdConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = ThresholdConfig{Expression: node.Value}
		return nil
	}

	var parts thresholdParts
	if err := node.Decode(&parts); err != nil {
		return err
	}
	*t = parts.config()
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThresholdConfig) UnmarshalJSON(b []byte) error {
	var expr string
	if err := json.Unmarshal(b, &expr); err == nil {
		*t = ThresholdConfig{Expression: expr}
		return nil
	}

	var parts thresholdParts
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	*t = parts.config()
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t ThresholdConfig) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// MarshalJSON implements json.Marshaler.
func (t ThresholdConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings
// or integer seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes if present
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}

	dur, err := ParseDurationString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// ParseDurationString parses a duration string, supporting both Go duration
// format and plain integer seconds.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	// Try standard Go duration parsing first
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %q (use e.g. 30s, 1m30s or integer seconds)", s)
}
