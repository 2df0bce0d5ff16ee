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

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// All VUs are spawned at once, held for the duration and then drained.
// Each VU runs its iterations back to back with the scenario think-time in
// between (closed model).
type ConstantVUs struct {
	config    *Config
	logger    *zap.Logger
	scheduler atomic.Pointer[performance.VUScheduler]

	startTime time.Time
	running   atomic.Bool

	mu     sync.RWMutex
	stages []StageResult
}

// NewConstantVUs creates a new constant VUs executor. logger may be nil.
func NewConstantVUs(logger *zap.Logger) *ConstantVUs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstantVUs{logger: logger.With(zap.String("executor", string(TypeConstantVUs)))}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run spawns the VUs, holds for the duration and drains.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, recorder *metrics.Recorder) error {
	e.scheduler.Store(scheduler)
	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()
	e.running.Store(true)
	defer e.running.Store(false)

	recorder.SetPhase(metrics.PhaseRampUp)
	startCount := recorder.Count()

	if _, err := scheduler.Scale(ctx, e.config.VUs); err != nil {
		if isContextErr(err) {
			if drainErr := drain(scheduler, recorder, e.config.GracefulStop); drainErr != nil {
				return errors.Join(err, drainErr)
			}
			return err
		}
		fault := &SchedulerFault{Op: "spawn", Err: err}
		e.logger.Error("failed to spawn VUs", zap.Error(err))
		if drainErr := drain(scheduler, recorder, e.config.GracefulStop); drainErr != nil {
			return errors.Join(fault, drainErr)
		}
		return fault
	}
	e.logger.Info("VUs started", zap.Int("vus", e.config.VUs), zap.Duration("duration", e.config.Duration))

	recorder.SetPhase(metrics.PhaseSteady)
	holdErr := hold(ctx, e.config.Duration)

	e.mu.Lock()
	e.stages = []StageResult{{
		Index:       0,
		Name:        "steady",
		Target:      e.config.VUs,
		Duration:    e.config.Duration,
		Elapsed:     time.Since(e.startTime),
		ActiveAtEnd: scheduler.ActiveCount(),
		Requests:    recorder.Count() - startCount,
		Interrupted: holdErr != nil,
	}}
	e.mu.Unlock()

	if holdErr != nil {
		e.logger.Warn("run interrupted, draining", zap.Error(holdErr))
	}
	if err := drain(scheduler, recorder, e.config.GracefulStop); err != nil {
		return err
	}
	return holdErr
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return progress(e.startTime, e.config.Duration, e.running.Load())
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{
		StartTime:     e.startTime,
		TotalDuration: e.config.Duration,
		TargetVUs:     e.config.VUs,
		TotalStages:   1,
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

// StageResults returns the single steady stage once the hold has ended.
func (e *ConstantVUs) StageResults() []StageResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]StageResult, len(e.stages))
	copy(result, e.stages)
	return result
}

// Ensure ConstantVUs implements Executor
var _ Executor = (*ConstantVUs)(nil)
