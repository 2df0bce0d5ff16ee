package performance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU has been created but not started.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running iterations.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop and will do so
	// at its next iteration boundary.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VUID is the identity of a VU: its pool slot plus the number of times that
// slot has been used. An identity is never spawned twice.
type VUID struct {
	Slot       int
	Generation uint32
}

func (id VUID) String() string {
	return fmt.Sprintf("vu-%d.%d", id.Slot, id.Generation)
}

// VirtualUser repeatedly runs iterations of a Scenario until told to stop.
//
// The stop signal is observed only between iterations. A request that is in
// flight always completes (or times out) and is recorded.
type VirtualUser struct {
	ID VUID

	Scenario   *Scenario
	HTTPClient *http.Client
	Metrics    *metrics.Recorder

	logger *zap.Logger

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	doneOnce sync.Once

	iteration atomic.Int64

	// Only used from the VU goroutine.
	rng *rand.Rand
}

// NewVirtualUser creates a Virtual User. logger may be nil.
func NewVirtualUser(id VUID, scenario *Scenario, httpClient *http.Client, recorder *metrics.Recorder, logger *zap.Logger) *VirtualUser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirtualUser{
		ID:         id,
		Scenario:   scenario,
		HTTPClient: httpClient,
		Metrics:    recorder,
		logger:     logger.With(zap.Stringer("vu", id)),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(id.Slot)<<32|uint64(id.Generation))),
	}
}

// State returns the current VU state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns the number of iterations started so far.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iteration.Load()
}

// Run executes iterations until RequestStop is called or ctx is cancelled.
// Both are checked only at iteration boundaries and during think-time.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.markStopped()

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	vu.logger.Debug("vu started")

	for !vu.stopRequested(ctx) {
		vu.RunIteration(ctx)
	}

	vu.logger.Debug("vu stopped", zap.Int64("iterations", vu.Iterations()))
}

// RunIteration issues one request, records its outcome and then pauses for
// the think-time. It returns the recorded outcome.
func (vu *VirtualUser) RunIteration(ctx context.Context) metrics.Outcome {
	iteration := vu.iteration.Add(1)

	result := vu.Scenario.Request.Do(ctx, vu.HTTPClient)

	outcome := metrics.Outcome{
		Timestamp:  result.StartTime,
		Latency:    result.Latency,
		Success:    result.Success(),
		StatusCode: result.StatusCode,
		VU:         vu.ID.String(),
		Iteration:  iteration,
	}
	if result.Err != nil {
		outcome.ErrorKind = result.Err.Kind
		vu.logger.Debug("request failed",
			zap.Int64("iteration", iteration),
			zap.String("kind", result.Err.Kind),
			zap.Error(result.Err.Err))
	}
	vu.Metrics.Record(outcome)

	vu.think(ctx)
	return outcome
}

// think waits for the next think-time or until stopped.
func (vu *VirtualUser) think(ctx context.Context) {
	pause := vu.Scenario.ThinkTime.Next(vu.rng)
	if pause <= 0 {
		return
	}

	timer := time.NewTimer(pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-vu.stopCh:
	case <-timer.C:
	}
}

func (vu *VirtualUser) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// RequestStop signals the VU to stop at its next iteration boundary.
// It is safe to call more than once.
func (vu *VirtualUser) RequestStop() {
	vu.stopOnce.Do(func() {
		if !vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) {
			vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping))
		}
		close(vu.stopCh)
	})
}

// Done returns a channel closed once the VU has fully stopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

func (vu *VirtualUser) markStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}
