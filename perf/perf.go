package perf

import (
	"context"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/performance/config"
	"github.com/wesleyorama2/stampede/internal/performance/engine"
	"github.com/wesleyorama2/stampede/internal/performance/executor"
)

type (
	// TestConfig is a parsed scenario file.
	TestConfig = config.TestConfig

	// ConfigError is returned for any scenario that fails to load or validate.
	ConfigError = config.ConfigError

	// SchedulerFault is returned when the VU pool could not be managed.
	SchedulerFault = executor.SchedulerFault

	// Result contains the complete results of a run.
	Result = engine.RunResult

	// Progress is a point-in-time view of a running test.
	Progress = engine.Progress
)

// LoadConfig reads and validates a YAML or JSON scenario file.
func LoadConfig(path string) (*TestConfig, error) {
	return config.LoadConfig(path)
}

// ParseConfig parses and validates a YAML scenario document.
func ParseConfig(data []byte) (*TestConfig, error) {
	return config.ParseConfig(data, config.FormatYAML)
}

// ParseJSONConfig parses and validates a JSON scenario document.
func ParseJSONConfig(data []byte) (*TestConfig, error) {
	return config.ParseConfig(data, config.FormatJSON)
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger used by the engine. The default discards logs.
func WithLogger(logger *zap.Logger) Option {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}

// Runner provides a high-level API for running a load test.
type Runner struct {
	engine *engine.Engine
}

// NewRunner validates cfg and prepares a run. Invalid configurations are
// reported as *ConfigError before anything is started.
func NewRunner(cfg *TestConfig, opts ...Option) (*Runner, error) {
	o := runnerOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	eng, err := engine.NewEngine(cfg, o.logger)
	if err != nil {
		return nil, err
	}
	return &Runner{engine: eng}, nil
}

// Run executes the load profile. Cancelling ctx stops the run early and
// returns the partial result marked Interrupted.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.engine.Run(ctx)
}

// Progress returns the current progress. It can be called while Run is in
// flight.
func (r *Runner) Progress() Progress {
	return r.engine.Progress()
}

// RunTest builds a Runner for cfg and runs it.
func RunTest(ctx context.Context, cfg *TestConfig, opts ...Option) (*Result, error) {
	runner, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}
