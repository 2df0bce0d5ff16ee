package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wesleyorama2/stampede/internal/performance/threshold"
)

// ConfigError wraps every failure to load a configuration. The CLI maps it
// to exit code 2.
type ConfigError struct {
	File string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.File, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds a validation error.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the field paths that failed validation.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// Validate checks the semantics the schema cannot express. It expects
// defaults to have been applied.
func (c *TestConfig) Validate() error {
	var errs ValidationErrors

	validateTarget(&c.Target, &errs)
	validateThinkTime(c.ThinkTime, &errs)
	validateLoad(&c.Load, &errs)

	for i, th := range c.Thresholds {
		if _, err := th.Build(); err != nil {
			errs.Add(fmt.Sprintf("thresholds[%d]", i), err.Error())
		}
	}

	if c.Settings.MaxVUs < 0 {
		errs.Add("settings.maxVUs", "must be non-negative")
	}
	if c.Settings.GracefulStop < 0 {
		errs.Add("settings.gracefulStop", "must be non-negative")
	}
	if c.Settings.MaxSamples < 0 {
		errs.Add("settings.maxSamples", "must be non-negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTarget(t *TargetConfig, errs *ValidationErrors) {
	if t.URL == "" {
		errs.Add("target.url", "is required")
	} else {
		u, err := url.Parse(t.URL)
		switch {
		case err != nil:
			errs.Add("target.url", fmt.Sprintf("invalid URL: %v", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs.Add("target.url", fmt.Sprintf("scheme must be http or https, got %q", u.Scheme))
		case u.Host == "":
			errs.Add("target.url", "host is required")
		}
	}

	if !validMethods[t.Method] {
		errs.Add("target.method", fmt.Sprintf("unsupported method %q", t.Method))
	}
	if t.Timeout < 0 {
		errs.Add("target.timeout", "must be non-negative")
	}

	for i, code := range t.Expect.Status {
		if code < 100 || code > 599 {
			errs.Add(fmt.Sprintf("target.expect.status[%d]", i), fmt.Sprintf("invalid status code %d", code))
		}
	}
	for i, check := range t.Expect.JSON {
		if strings.TrimSpace(check.Path) == "" {
			errs.Add(fmt.Sprintf("target.expect.json[%d].path", i), "is required")
		}
	}
}

func validateThinkTime(t ThinkTimeConfig, errs *ValidationErrors) {
	if t.Min < 0 {
		errs.Add("thinkTime.min", "must be non-negative")
	}
	if t.Max < 0 {
		errs.Add("thinkTime.max", "must be non-negative")
	}
	if t.Max < t.Min {
		errs.Add("thinkTime", fmt.Sprintf("max (%s) must be >= min (%s)", t.Max, t.Min))
	}
}

func validateLoad(l *LoadProfile, errs *ValidationErrors) {
	if l.IsStaged() {
		if l.VUs != 0 || l.Duration != 0 {
			errs.Add("load", "use either vus/duration or stages, not both")
		}
		for i, s := range l.Stages {
			if s.Duration < 0 {
				errs.Add(fmt.Sprintf("load.stages[%d].duration", i), "must be non-negative")
			}
			if s.Target < 0 {
				errs.Add(fmt.Sprintf("load.stages[%d].target", i), "must be non-negative")
			}
		}
		return
	}

	if l.VUs <= 0 {
		errs.Add("load.vus", "must be positive (or define load.stages)")
	}
	if l.Duration <= 0 {
		errs.Add("load.duration", "must be positive (or define load.stages)")
	}
}

// Build parses the threshold into its evaluable form.
func (t ThresholdConfig) Build() (threshold.Threshold, error) {
	if t.Expression != "" {
		return threshold.Parse(t.Expression)
	}
	return threshold.New(t.Metric, t.Comparator, t.Bound)
}
