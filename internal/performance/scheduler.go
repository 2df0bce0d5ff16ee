package performance

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// ErrPoolExhausted is returned when a spawn would exceed the pool capacity.
var ErrPoolExhausted = errors.New("vu pool exhausted")

// VUScheduler owns the population of VUs of a run.
//
// VUs live in an arena of slots. A slot is reused only after the VU that
// last occupied it has fully stopped, and every reuse bumps the slot
// generation. Active VUs are kept in spawn order so scale-down always stops
// the oldest ones first.
//
// Spawn, Scale and StopAll are meant to be called from a single control
// loop (the executor). The read-only methods may be called from anywhere.
type VUScheduler struct {
	scenario *Scenario
	metrics  *metrics.Recorder
	logger   *zap.Logger

	httpClientConfig HTTPClientConfig
	client           *http.Client

	// Maximum number of live VUs (0 = unlimited)
	capacity int

	mu       sync.RWMutex
	slots    []slot
	active   []*VirtualUser // running, in spawn order
	stopping []*VirtualUser // signalled, not yet reaped

	// released receives a token whenever a VU goroutine exits.
	released chan struct{}

	wg sync.WaitGroup
}

type slot struct {
	generation uint32
	vu         *VirtualUser
}

// free reports whether the slot can host a new VU.
func (s slot) free() bool {
	return s.vu == nil || s.vu.State() == VUStateStopped
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout is the client-level request timeout
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             DefaultRequestTimeout,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates the client shared by every VU of a run.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed targets
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// NewVUScheduler creates a VU scheduler. capacity limits the number of live
// VUs (0 = unlimited). logger may be nil.
func NewVUScheduler(scenario *Scenario, recorder *metrics.Recorder, httpConfig HTTPClientConfig, capacity int, logger *zap.Logger) *VUScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VUScheduler{
		scenario:         scenario,
		metrics:          recorder,
		logger:           logger.With(zap.String("component", "scheduler")),
		httpClientConfig: httpConfig,
		client:           NewHTTPClient(httpConfig),
		capacity:         capacity,
		released:         make(chan struct{}, 1),
	}
}

// Spawn creates a VU in a free slot and starts running it.
//
// It returns ErrPoolExhausted if every slot is occupied by a live VU and the
// pool is at capacity.
func (s *VUScheduler) Spawn(ctx context.Context) (*VirtualUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.slots {
		if s.slots[i].free() {
			idx = i
			break
		}
	}
	if idx < 0 {
		if s.capacity > 0 && len(s.slots) >= s.capacity {
			return nil, fmt.Errorf("%w: capacity %d", ErrPoolExhausted, s.capacity)
		}
		s.slots = append(s.slots, slot{})
		idx = len(s.slots) - 1
	}

	sl := &s.slots[idx]
	sl.generation++
	vu := NewVirtualUser(VUID{Slot: idx, Generation: sl.generation}, s.scenario, s.client, s.metrics, s.logger)
	sl.vu = vu
	s.active = append(s.active, vu)
	s.reapLocked()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		vu.Run(ctx)
		select {
		case s.released <- struct{}{}:
		default:
		}
	}()

	s.publishLocked()
	return vu, nil
}

// Scale adjusts the number of active VUs to exactly target. New VUs are
// spawned as needed; excess VUs are signalled to stop, oldest first.
//
// Signalled VUs keep their slot until their current iteration ends. When the
// pool is full only because of them, Scale waits for slots to be released
// and returns ErrPoolExhausted only if no signalled VU is left to wait for.
//
// Scale does not wait for signalled VUs to exit. Use WaitFor for that.
func (s *VUScheduler) Scale(ctx context.Context, target int) ([]*VirtualUser, error) {
	if target < 0 {
		target = 0
	}

	current := s.ActiveCount()
	switch {
	case target > current:
		for i := current; i < target; i++ {
			if _, err := s.spawnOrWait(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case target < current:
		s.mu.Lock()
		excess := current - target
		signalled := make([]*VirtualUser, excess)
		copy(signalled, s.active[:excess])
		s.active = append(s.active[:0:0], s.active[excess:]...)
		s.signalLocked(signalled)
		s.mu.Unlock()

		s.logger.Debug("scaled down", zap.Int("stopped", excess), zap.Int("active", target))
		return signalled, nil
	}
	return nil, nil
}

// spawnOrWait spawns a VU, waiting for signalled VUs to release their slots
// while the pool is at capacity.
func (s *VUScheduler) spawnOrWait(ctx context.Context) (*VirtualUser, error) {
	for {
		vu, err := s.Spawn(ctx)
		if !errors.Is(err, ErrPoolExhausted) {
			return vu, err
		}
		if s.StoppingCount() == 0 {
			// The last signalled VU may have exited after the failed spawn.
			return s.Spawn(ctx)
		}

		s.logger.Debug("pool at capacity, waiting for stopping VUs", zap.Int("stopping", s.StoppingCount()))
		select {
		case <-s.released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// StopAll signals every active VU to stop and returns them.
func (s *VUScheduler) StopAll() []*VirtualUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	signalled := s.active
	s.active = nil
	s.signalLocked(signalled)
	return signalled
}

// signalLocked asks vus to stop and tracks them until they exit.
// Caller holds s.mu.
func (s *VUScheduler) signalLocked(vus []*VirtualUser) {
	for _, vu := range vus {
		vu.RequestStop()
	}
	s.stopping = append(s.stopping, vus...)
	s.reapLocked()
	s.publishLocked()
}

// reapLocked forgets signalled VUs that have exited. Caller holds s.mu.
func (s *VUScheduler) reapLocked() {
	live := s.stopping[:0]
	for _, vu := range s.stopping {
		if vu.State() != VUStateStopped {
			live = append(live, vu)
		}
	}
	clear(s.stopping[len(live):])
	s.stopping = live
}

func (s *VUScheduler) publishLocked() {
	if s.metrics != nil {
		s.metrics.SetActiveVUs(len(s.active))
	}
}

// WaitFor blocks until every VU in vus has stopped or ctx is done.
func (s *VUScheduler) WaitFor(ctx context.Context, vus []*VirtualUser) error {
	for _, vu := range vus {
		select {
		case <-vu.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.reapLocked()
	s.mu.Unlock()
	return nil
}

// Wait blocks until every VU goroutine has exited. A timeout of 0 waits
// indefinitely. It returns false if the timeout expired first.
func (s *VUScheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			return false
		}
	}

	s.mu.Lock()
	s.reapLocked()
	s.mu.Unlock()
	return true
}

// ActiveCount returns the number of running VUs that have not been
// signalled to stop.
func (s *VUScheduler) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// StoppingCount returns the number of signalled VUs that are still finishing
// their current iteration.
func (s *VUScheduler) StoppingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, vu := range s.stopping {
		if vu.State() != VUStateStopped {
			n++
		}
	}
	return n
}

// ActiveVUs returns the active VUs in spawn order, oldest first.
func (s *VUScheduler) ActiveVUs() []*VirtualUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*VirtualUser, len(s.active))
	copy(result, s.active)
	return result
}

// Slots returns the number of slots allocated in the arena.
func (s *VUScheduler) Slots() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Close releases idle connections of the shared client.
func (s *VUScheduler) Close() {
	s.client.CloseIdleConnections()
}
