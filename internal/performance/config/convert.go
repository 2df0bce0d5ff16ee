package config

import (
	"fmt"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/executor"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/threshold"
)

// ExecutorType returns the executor the load profile selects.
func (c *TestConfig) ExecutorType() executor.Type {
	if c.Load.IsStaged() {
		return executor.TypeStagedVUs
	}
	return executor.TypeConstantVUs
}

// ExecutorConfig converts the load profile to an executor configuration.
func (c *TestConfig) ExecutorConfig() *executor.Config {
	cfg := &executor.Config{
		Name:         c.Name,
		Type:         c.ExecutorType(),
		GracefulStop: c.Settings.GracefulStop.Std(),
	}

	if c.Load.IsStaged() {
		cfg.Stages = make([]executor.Stage, len(c.Load.Stages))
		for i, s := range c.Load.Stages {
			name := s.Name
			if name == "" {
				name = fmt.Sprintf("stage %d", i+1)
			}
			cfg.Stages[i] = executor.Stage{
				Duration: s.Duration.Std(),
				Target:   s.Target,
				Name:     name,
			}
		}
		return cfg
	}

	cfg.VUs = c.Load.VUs
	cfg.Duration = c.Load.Duration.Std()
	return cfg
}

// Scenario converts the target and think-time to the scenario every VU runs.
func (c *TestConfig) Scenario() *performance.Scenario {
	headers := make(map[string]string, len(c.Target.Headers))
	for k, v := range c.Target.Headers {
		headers[k] = v
	}

	checks := make([]performance.JSONCheck, len(c.Target.Expect.JSON))
	for i, check := range c.Target.Expect.JSON {
		checks[i] = performance.JSONCheck{Path: check.Path, Equals: check.Equals}
	}

	return &performance.Scenario{
		Name: c.Name,
		Request: &performance.RequestTemplate{
			Method:  c.Target.Method,
			URL:     c.Target.URL,
			Headers: headers,
			Timeout: c.Target.Timeout.GetDuration(DefaultRequestTimeout),
			Expect: performance.Expectation{
				Status: append([]int(nil), c.Target.Expect.Status...),
				JSON:   checks,
			},
		},
		ThinkTime: performance.ThinkTime{
			Min: c.ThinkTime.Min.Std(),
			Max: c.ThinkTime.Max.Std(),
		},
	}
}

// BuildThresholds parses every threshold, reporting all invalid ones.
func (c *TestConfig) BuildThresholds() ([]threshold.Threshold, error) {
	var errs ValidationErrors
	result := make([]threshold.Threshold, 0, len(c.Thresholds))

	for i, t := range c.Thresholds {
		th, err := t.Build()
		if err != nil {
			errs.Add(fmt.Sprintf("thresholds[%d]", i), err.Error())
			continue
		}
		result = append(result, th)
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return result, nil
}

// HTTPClientConfig returns the client settings for the run.
func (c *TestConfig) HTTPClientConfig() performance.HTTPClientConfig {
	hc := performance.DefaultHTTPClientConfig()
	hc.Timeout = c.Target.Timeout.GetDuration(DefaultRequestTimeout)
	hc.InsecureSkipVerify = c.Settings.InsecureSkipVerify

	// Keep one idle connection per VU so steady load reuses connections.
	if peak := c.ExecutorConfig().MaxVUs(); peak > hc.MaxIdleConnsPerHost {
		hc.MaxIdleConnsPerHost = peak
		if peak > hc.MaxIdleConns {
			hc.MaxIdleConns = peak
		}
	}
	return hc
}

// MetricsConfig returns the recorder settings for the run.
func (c *TestConfig) MetricsConfig() metrics.Config {
	mc := metrics.DefaultConfig()
	mc.MaxSamples = c.Settings.MaxSamples
	return mc
}
