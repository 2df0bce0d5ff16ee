package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Config contains configuration for a Recorder.
type Config struct {
	// MaxSamples bounds the retained latency sample (0 = keep everything).
	MaxSamples int

	// BucketInterval is the width of a time-series bucket (default: 1s).
	BucketInterval time.Duration

	// HistogramMax is the highest latency in microseconds a bucket histogram
	// tracks; larger values are clamped (default: 1 hour).
	HistogramMax int64
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{
		MaxSamples:     0,
		BucketInterval: time.Second,
		HistogramMax:   3600000000,
	}
}

// Recorder accumulates request outcomes from concurrently running VUs.
//
// # Thread Safety
//
// Record, Snapshot and the gauge methods are safe for concurrent use. The
// sample lock is held only while appending a latency or copying the sample;
// sorting for percentiles happens on the copy.
type Recorder struct {
	config Config
	start  time.Time

	mu          sync.Mutex
	samples     []time.Duration
	next        int // ring write position once len(samples) == MaxSamples
	total       int64
	failed      int64
	sumLatency  time.Duration
	minLatency  time.Duration
	maxLatency  time.Duration
	statusCodes map[int]int64
	errorKinds  map[string]int64
	first, last time.Time

	// Lock-free count for the live view.
	count atomic.Int64

	buckets *TimeBucketStore

	// Gauges published by the scheduler.
	activeVUs atomic.Int32
	phase     atomic.Value
}

// NewRecorder creates a recorder with the default configuration.
func NewRecorder() *Recorder {
	return NewRecorderWithConfig(DefaultConfig())
}

// NewRecorderWithConfig creates a recorder with a custom configuration.
func NewRecorderWithConfig(config Config) *Recorder {
	defaults := DefaultConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.HistogramMax <= 0 {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.MaxSamples < 0 {
		config.MaxSamples = 0
	}

	start := time.Now()
	r := &Recorder{
		config:      config,
		start:       start,
		statusCodes: make(map[int]int64),
		errorKinds:  make(map[string]int64),
		buckets:     NewTimeBucketStore(start, config.BucketInterval, config.HistogramMax),
	}
	if config.MaxSamples > 0 {
		r.samples = make([]time.Duration, 0, config.MaxSamples)
	}
	r.phase.Store(PhaseInit)
	return r
}

// Record appends an outcome.
func (r *Recorder) Record(o Outcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	if o.Latency < 0 {
		o.Latency = 0
	}

	r.mu.Lock()
	r.appendSample(o.Latency)
	r.total++
	if !o.Success {
		r.failed++
		if o.ErrorKind != "" {
			r.errorKinds[o.ErrorKind]++
		}
	}
	if o.StatusCode != 0 {
		r.statusCodes[o.StatusCode]++
	}
	r.sumLatency += o.Latency
	if r.total == 1 || o.Latency < r.minLatency {
		r.minLatency = o.Latency
	}
	if o.Latency > r.maxLatency {
		r.maxLatency = o.Latency
	}
	if r.first.IsZero() || o.Timestamp.Before(r.first) {
		r.first = o.Timestamp
	}
	if o.Timestamp.After(r.last) {
		r.last = o.Timestamp
	}
	r.mu.Unlock()

	r.count.Add(1)
	r.buckets.Record(o, r.ActiveVUs(), r.Phase())
}

// appendSample stores a latency, overwriting the oldest one when bounded.
// Caller holds r.mu.
func (r *Recorder) appendSample(latency time.Duration) {
	if r.config.MaxSamples == 0 || len(r.samples) < r.config.MaxSamples {
		r.samples = append(r.samples, latency)
		return
	}
	r.samples[r.next] = latency
	r.next = (r.next + 1) % r.config.MaxSamples
}

// Snapshot returns an aggregated view of all outcomes recorded so far.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	sorted := make([]time.Duration, len(r.samples))
	copy(sorted, r.samples)

	snap := &Snapshot{
		TotalRequests:   r.total,
		SuccessRequests: r.total - r.failed,
		FailedRequests:  r.failed,
		FirstOutcome:    r.first,
		LastOutcome:     r.last,
		Latency: LatencyStats{
			Min: r.minLatency,
			Max: r.maxLatency,
		},
	}
	if r.total > 0 {
		snap.Latency.Mean = r.sumLatency / time.Duration(r.total)
	}
	if len(r.statusCodes) > 0 {
		snap.StatusCodes = make(map[int]int64, len(r.statusCodes))
		for code, n := range r.statusCodes {
			snap.StatusCodes[code] = n
		}
	}
	if len(r.errorKinds) > 0 {
		snap.Errors = make(map[string]int64, len(r.errorKinds))
		for kind, n := range r.errorKinds {
			snap.Errors[kind] = n
		}
	}
	r.mu.Unlock()

	slices.Sort(sorted)
	latencyPercentiles(&snap.Latency, sorted)

	if snap.TotalRequests > 0 {
		snap.FailureRate = float64(snap.FailedRequests) / float64(snap.TotalRequests)
	}
	return snap
}

// Count returns the number of outcomes recorded so far without locking.
func (r *Recorder) Count() int64 {
	return r.count.Load()
}

// StartTime returns when the recorder was created.
func (r *Recorder) StartTime() time.Time {
	return r.start
}

// TimeSeries returns the per-interval buckets in chronological order.
func (r *Recorder) TimeSeries() []TimeBucket {
	return r.buckets.Buckets()
}

// LatestBucket returns the most recently closed bucket, if any.
func (r *Recorder) LatestBucket() (TimeBucket, bool) {
	return r.buckets.Latest(time.Now())
}

// SetActiveVUs updates the active VU gauge.
func (r *Recorder) SetActiveVUs(count int) {
	r.activeVUs.Store(int32(count))
}

// ActiveVUs returns the active VU gauge.
func (r *Recorder) ActiveVUs() int {
	return int(r.activeVUs.Load())
}

// SetPhase updates the phase gauge.
func (r *Recorder) SetPhase(phase Phase) {
	r.phase.Store(phase)
}

// Phase returns the phase gauge.
func (r *Recorder) Phase() Phase {
	return r.phase.Load().(Phase)
}
