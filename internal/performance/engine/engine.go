// Package engine provides the run controller for stampede load tests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/config"
	"github.com/wesleyorama2/stampede/internal/performance/executor"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/threshold"
)

// Engine is the run controller for a single load test.
//
// It coordinates:
//   - Scenario and load profile construction from the configuration
//   - The VU pool and executor driving it
//   - Metrics collection
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	engine, _ := NewEngine(cfg, logger)
//	result, _ := engine.Run(ctx)
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config     *config.TestConfig
	scenario   *performance.Scenario
	execConfig *executor.Config
	thresholds []threshold.Threshold
	httpConfig performance.HTTPClientConfig
	logger     *zap.Logger

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	executor  executor.Executor
	recorder  *metrics.Recorder
	scheduler *performance.VUScheduler
}

// RunResult contains the complete results of a run. It is not modified after
// Run returns it.
type RunResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Executor    string `json:"executor"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Throughput is completed requests per second over the whole run
	Throughput float64 `json:"throughput"`

	Metrics    *metrics.Snapshot      `json:"metrics"`
	Stages     []executor.StageResult `json:"stages,omitempty"`
	TimeSeries []metrics.TimeBucket   `json:"timeSeries,omitempty"`

	Thresholds []threshold.Result `json:"thresholds,omitempty"`
	Passed     bool               `json:"passed"`

	// Interrupted is set when the run was cancelled before the load profile
	// completed. Thresholds are still evaluated on the partial data.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Progress is a point-in-time view of a running test.
type Progress struct {
	Fraction  float64       `json:"fraction"`
	Elapsed   time.Duration `json:"elapsed"`
	Total     time.Duration `json:"total"`
	Phase     metrics.Phase `json:"phase"`
	ActiveVUs int           `json:"activeVUs"`
	TargetVUs int           `json:"targetVUs"`
	Stage     string        `json:"stage,omitempty"`
	Requests  int64         `json:"requests"`

	// Latest is the most recent completed one-second bucket, if any.
	Latest *metrics.TimeBucket `json:"latest,omitempty"`
}

// NewEngine creates an engine for a loaded configuration. Everything that can
// be checked before a VU is spawned is checked here; failures are returned as
// *config.ConfigError.
func NewEngine(cfg *config.TestConfig, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, &config.ConfigError{Err: errors.New("configuration is nil")}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	thresholds, err := cfg.BuildThresholds()
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	execConfig := cfg.ExecutorConfig()
	if err := execConfig.Validate(); err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	return &Engine{
		config:     cfg,
		scenario:   cfg.Scenario(),
		execConfig: execConfig,
		thresholds: thresholds,
		httpConfig: cfg.HTTPClientConfig(),
		logger:     logger.With(zap.String("component", "engine")),
	}, nil
}

// Run executes the load profile and returns the results.
//
// A cancelled ctx stops the run early: VUs are drained, the partial data is
// evaluated and the result is marked Interrupted. A *executor.SchedulerFault
// is returned as an error together with the partial result.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	exec, err := executor.CreateAndInitExecutor(ctx, e.execConfig, e.logger)
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	recorder := metrics.NewRecorderWithConfig(e.config.MetricsConfig())
	recorder.SetPhase(metrics.PhaseInit)
	scheduler := performance.NewVUScheduler(e.scenario, recorder, e.httpConfig, e.config.Settings.MaxVUs, e.logger)
	defer scheduler.Close()

	runID := uuid.New().String()
	startTime := time.Now()

	e.mu.Lock()
	e.startTime = startTime
	e.executor = exec
	e.recorder = recorder
	e.scheduler = scheduler
	e.mu.Unlock()

	e.logger.Info("starting run",
		zap.String("id", runID),
		zap.String("name", e.config.Name),
		zap.String("executor", string(exec.Type())),
		zap.Int("maxVUs", e.execConfig.MaxVUs()),
		zap.Duration("duration", e.execConfig.TotalDuration()),
	)

	runErr := exec.Run(ctx, scheduler, recorder)

	endTime := time.Now()
	snapshot := recorder.Snapshot()
	results := threshold.Evaluate(snapshot, e.thresholds)

	result := &RunResult{
		ID:          runID,
		Name:        e.config.Name,
		Description: e.config.Description,
		Executor:    string(exec.Type()),
		StartTime:   startTime,
		EndTime:     endTime,
		Duration:    endTime.Sub(startTime),
		Metrics:     snapshot,
		Stages:      exec.StageResults(),
		TimeSeries:  recorder.TimeSeries(),
		Thresholds:  results,
		Passed:      threshold.AllPassed(results),
	}
	if secs := result.Duration.Seconds(); secs > 0 {
		result.Throughput = float64(snapshot.TotalRequests) / secs
	}

	var fault *executor.SchedulerFault
	switch {
	case runErr == nil:
	case errors.As(runErr, &fault):
		e.logger.Error("run aborted", zap.String("id", runID), zap.Error(runErr))
		result.Passed = false
		return result, runErr
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		e.logger.Warn("run interrupted", zap.String("id", runID), zap.Error(runErr))
		result.Interrupted = true
	default:
		return result, fmt.Errorf("run failed: %w", runErr)
	}

	e.logger.Info("run finished",
		zap.String("id", runID),
		zap.Int64("requests", snapshot.TotalRequests),
		zap.Float64("failureRate", snapshot.FailureRate),
		zap.Bool("passed", result.Passed),
		zap.Bool("interrupted", result.Interrupted),
	)

	return result, nil
}

// IsRunning returns true if a run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.TestConfig {
	return e.config
}

// Thresholds returns the parsed thresholds.
func (e *Engine) Thresholds() []threshold.Threshold {
	return e.thresholds
}

// Progress returns the current progress. It is safe to call from any
// goroutine; before Run starts it returns a zero Progress.
func (e *Engine) Progress() Progress {
	e.mu.RLock()
	exec, recorder := e.executor, e.recorder
	e.mu.RUnlock()

	if exec == nil || recorder == nil {
		return Progress{Phase: metrics.PhaseInit, Total: e.execConfig.TotalDuration()}
	}

	stats := exec.GetStats()
	p := Progress{
		Fraction:  exec.GetProgress(),
		Elapsed:   stats.Elapsed,
		Total:     stats.TotalDuration,
		Phase:     recorder.Phase(),
		ActiveVUs: recorder.ActiveVUs(),
		TargetVUs: stats.TargetVUs,
		Stage:     stats.CurrentStageName,
		Requests:  recorder.Count(),
	}
	if b, ok := recorder.LatestBucket(); ok {
		p.Latest = &b
	}
	return p
}
