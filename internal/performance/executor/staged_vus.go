package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// StagedVUs steps the VU count through a sequence of stages.
//
// At the start of each stage the active VU count is set to the stage target
// in one step (new VUs are spawned, excess VUs are stopped oldest first) and
// then held for the stage duration. There is no interpolation within a
// stage. After the last stage every VU is drained.
//
// Example stages:
//
//	stages:
//	  - duration: 10s
//	    target: 50     # jump to 50 VUs, hold 10s
//	  - duration: 10s
//	    target: 100    # jump to 100 VUs, hold 10s
//	  - duration: 5s
//	    target: 0      # stop everything, wait, hold 5s
type StagedVUs struct {
	config    *Config
	logger    *zap.Logger
	scheduler atomic.Pointer[performance.VUScheduler]

	running      atomic.Bool
	currentStage atomic.Int32
	targetVUs    atomic.Int32

	mu        sync.RWMutex
	startTime time.Time
	stages    []StageResult
}

// NewStagedVUs creates a new staged VUs executor. logger may be nil.
func NewStagedVUs(logger *zap.Logger) *StagedVUs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StagedVUs{logger: logger.With(zap.String("executor", string(TypeStagedVUs)))}
}

// Type returns the executor type.
func (e *StagedVUs) Type() Type {
	return TypeStagedVUs
}

// Init initializes the executor with configuration.
func (e *StagedVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeStagedVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeStagedVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run executes the stages in order and drains after the last one.
func (e *StagedVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, recorder *metrics.Recorder) error {
	e.scheduler.Store(scheduler)
	e.mu.Lock()
	e.startTime = time.Now()
	e.stages = make([]StageResult, 0, len(e.config.Stages))
	e.mu.Unlock()
	e.running.Store(true)
	defer e.running.Store(false)

	var runErr error
	for i, stage := range e.config.Stages {
		if runErr = e.runStage(ctx, i, stage, scheduler, recorder); runErr != nil {
			break
		}
	}

	var fault *SchedulerFault
	if errors.As(runErr, &fault) {
		e.logger.Error("scheduler fault, draining", zap.Error(runErr))
	} else if runErr != nil {
		e.logger.Warn("run interrupted, draining", zap.Error(runErr))
	}

	if err := drain(scheduler, recorder, e.config.GracefulStop); err != nil {
		if fault != nil {
			return errors.Join(runErr, err)
		}
		return err
	}
	return runErr
}

// runStage applies a stage target and holds it.
func (e *StagedVUs) runStage(ctx context.Context, index int, stage Stage, scheduler *performance.VUScheduler, recorder *metrics.Recorder) error {
	e.currentStage.Store(int32(index))
	e.targetVUs.Store(int32(stage.Target))

	stageStart := time.Now()
	startCount := recorder.Count()
	previous := scheduler.ActiveCount()

	recorder.SetPhase(stagePhase(previous, stage.Target))

	signalled, err := scheduler.Scale(ctx, stage.Target)
	if err != nil {
		if isContextErr(err) {
			return err
		}
		return &SchedulerFault{Op: fmt.Sprintf("stage %d spawn", index), Err: err}
	}

	e.logger.Debug("stage started",
		zap.Int("stage", index),
		zap.String("name", stage.Name),
		zap.Int("from", previous),
		zap.Int("target", stage.Target),
		zap.Duration("hold", stage.Duration))

	var holdErr error
	// A cooldown stage waits for the stopped VUs before holding.
	if stage.Target == 0 && len(signalled) > 0 {
		holdErr = scheduler.WaitFor(ctx, signalled)
	}
	if holdErr == nil {
		holdErr = hold(ctx, stage.Duration)
	}

	e.mu.Lock()
	e.stages = append(e.stages, StageResult{
		Index:       index,
		Name:        stage.Name,
		Target:      stage.Target,
		Duration:    stage.Duration,
		Elapsed:     time.Since(stageStart),
		ActiveAtEnd: scheduler.ActiveCount(),
		Requests:    recorder.Count() - startCount,
		Interrupted: holdErr != nil,
	})
	e.mu.Unlock()

	return holdErr
}

// stagePhase names the phase of a stage from the VU count change it applies.
func stagePhase(previous, target int) metrics.Phase {
	switch {
	case target > previous:
		return metrics.PhaseRampUp
	case target < previous:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *StagedVUs) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return progress(e.startTime, e.config.TotalDuration(), e.running.Load())
}

// GetStats returns executor statistics.
func (e *StagedVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stageIdx := int(e.currentStage.Load())
	stageName := ""
	if stageIdx < len(e.config.Stages) {
		stageName = e.config.Stages[stageIdx].Name
	}

	stats := &Stats{
		StartTime:        e.startTime,
		TotalDuration:    e.config.TotalDuration(),
		TargetVUs:        int(e.targetVUs.Load()),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(e.config.Stages),
	}
	if !e.startTime.IsZero() {
		stats.Elapsed = time.Since(e.startTime)
	}
	if s := e.scheduler.Load(); s != nil {
		stats.ActiveVUs = s.ActiveCount()
		stats.StoppingVUs = s.StoppingCount()
	}
	return stats
}

// StageResults returns the stages run so far.
func (e *StagedVUs) StageResults() []StageResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]StageResult, len(e.stages))
	copy(result, e.stages)
	return result
}

// Ensure StagedVUs implements Executor
var _ Executor = (*StagedVUs)(nil)
