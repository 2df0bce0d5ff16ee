// Package executor provides the load shapes that drive the VU pool.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeStagedVUs steps the VU count through a sequence of targets.
	TypeStagedVUs Type = "staged-vus"
)

// Executor defines the interface for load shapes.
//
// An executor owns the VU population over time: it tells the scheduler how
// many VUs should be active and when to drain them.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run drives the scheduler and blocks until every VU has stopped.
	//
	// It returns a *SchedulerFault if VUs could not be managed, or the
	// context error if ctx was cancelled before the profile completed.
	Run(ctx context.Context, scheduler *performance.VUScheduler, recorder *metrics.Recorder) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// StageResults returns one entry per completed (or interrupted) stage.
	StageResults() []StageResult
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// Constant executor
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages (for the staged executor)
	Stages []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop bounds the drain (0 = wait for every VU)
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// Stage defines a step of the staged executor.
type Stage struct {
	// Duration to hold the target once it has been applied
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs   int `json:"activeVUs"`
	StoppingVUs int `json:"stoppingVUs"`
	TargetVUs   int `json:"targetVUs"`

	// Stage info (staged executor)
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// StageResult summarises one stage of a run.
type StageResult struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Target int    `json:"target"`

	// Duration is the configured hold; Elapsed is the time actually spent.
	Duration time.Duration `json:"duration"`
	Elapsed  time.Duration `json:"elapsed"`

	// ActiveAtEnd is the active VU count at the end of the hold.
	ActiveAtEnd int `json:"activeAtEnd"`

	// Requests is the number of outcomes recorded during the stage.
	Requests int64 `json:"requests"`

	Interrupted bool `json:"interrupted,omitempty"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeStagedVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		for i, stage := range c.Stages {
			if stage.Duration < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "duration must be >= 0"}
			}
			if stage.Target < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "target must be >= 0"}
			}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// TotalDuration calculates the total planned duration for this executor.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs:
		return c.Duration

	case TypeStagedVUs:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total

	default:
		return 0
	}
}

// MaxVUs returns the largest VU count the profile asks for.
func (c *Config) MaxVUs() int {
	switch c.Type {
	case TypeConstantVUs:
		return c.VUs
	case TypeStagedVUs:
		maxVUs := 0
		for _, stage := range c.Stages {
			maxVUs = max(maxVUs, stage.Target)
		}
		return maxVUs
	default:
		return c.VUs
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}

// SchedulerFault is an infrastructure failure to spawn or manage VUs. It
// aborts the run.
type SchedulerFault struct {
	Op  string
	Err error
}

func (e *SchedulerFault) Error() string {
	return fmt.Sprintf("scheduler fault during %s: %v", e.Op, e.Err)
}

func (e *SchedulerFault) Unwrap() error {
	return e.Err
}

// hold waits for d or until ctx is done. A zero duration returns at once.
func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drain signals every active VU to stop and waits for all of them to exit.
//
// A drain that outlasts graceful (when > 0) is reported as a SchedulerFault,
// but drain still waits for the remaining VUs so that every outcome is
// recorded before it returns. Requests are bounded by their timeout.
func drain(scheduler *performance.VUScheduler, recorder *metrics.Recorder, graceful time.Duration) error {
	recorder.SetPhase(metrics.PhaseDraining)
	scheduler.StopAll()

	var fault error
	if !scheduler.Wait(graceful) {
		fault = &SchedulerFault{
			Op:  "drain",
			Err: fmt.Errorf("%d VUs still running after %s", scheduler.StoppingCount(), graceful),
		}
		scheduler.Wait(0)
	}

	recorder.SetActiveVUs(0)
	recorder.SetPhase(metrics.PhaseDone)
	return fault
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// progress returns elapsed/total clamped to [0, 1].
func progress(start time.Time, total time.Duration, running bool) float64 {
	if !running {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}
	if total <= 0 {
		return 1.0
	}

	p := float64(time.Since(start)) / float64(total)
	if p > 1.0 {
		p = 1.0
	}
	return p
}
