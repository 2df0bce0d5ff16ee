package metrics

import "time"

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the phase before any VU is spawned.
	PhaseInit Phase = "init"

	// PhaseRampUp is set while the active VU count is being raised.
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is set while holding a constant VU count.
	PhaseSteady Phase = "steady"

	// PhaseRampDown is set while the active VU count is being lowered.
	PhaseRampDown Phase = "ramp-down"

	// PhaseDraining is set once every VU has been told to stop.
	PhaseDraining Phase = "draining"

	// PhaseDone indicates all VUs have terminated.
	PhaseDone Phase = "done"
)

// Outcome is the result of one request issued by a VU.
//
// It is immutable once passed to Recorder.Record.
type Outcome struct {
	// Timestamp is when the request was started.
	Timestamp time.Time `json:"timestamp"`

	// Latency is the time from sending the request to reading the full body.
	Latency time.Duration `json:"latency"`

	// Success reports whether the request met its expectations.
	Success bool `json:"success"`

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int `json:"statusCode,omitempty"`

	// ErrorKind classifies a failure (timeout, connection, status, check, request).
	ErrorKind string `json:"errorKind,omitempty"`

	// VU identifies the virtual user that produced the outcome.
	VU string `json:"vu,omitempty"`

	// Iteration is the VU-local iteration number.
	Iteration int64 `json:"iteration,omitempty"`
}

// Snapshot is an aggregated view of every outcome recorded up to a point.
type Snapshot struct {
	TotalRequests   int64 `json:"totalRequests"`
	SuccessRequests int64 `json:"successRequests"`
	FailedRequests  int64 `json:"failedRequests"`

	// FailureRate is FailedRequests/TotalRequests, or 0 when nothing was recorded.
	FailureRate float64 `json:"failureRate"`

	Latency LatencyStats `json:"latency"`

	// StatusCodes counts responses by HTTP status.
	StatusCodes map[int]int64 `json:"statusCodes,omitempty"`

	// Errors counts failed outcomes by error kind.
	Errors map[string]int64 `json:"errors,omitempty"`

	// FirstOutcome and LastOutcome bound the timestamps seen so far.
	FirstOutcome time.Time `json:"firstOutcome"`
	LastOutcome  time.Time `json:"lastOutcome"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P90  time.Duration `json:"p90"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`

	// Samples is the number of latencies the percentiles were computed from.
	// It is smaller than the request count when the sample is bounded.
	Samples int `json:"samples"`
}

// TimeBucket summarises the outcomes whose timestamps fall into one interval.
type TimeBucket struct {
	// Offset is the bucket start relative to the recorder start.
	Offset time.Duration `json:"offset"`

	Timestamp   time.Time     `json:"timestamp"`
	Requests    int64         `json:"requests"`
	Failures    int64         `json:"failures"`
	FailureRate float64       `json:"failureRate"`
	RPS         float64       `json:"rps"`
	P50         time.Duration `json:"p50"`
	P95         time.Duration `json:"p95"`
	P99         time.Duration `json:"p99"`

	// ActiveVUs and Phase are the gauge values when the bucket was opened.
	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}
