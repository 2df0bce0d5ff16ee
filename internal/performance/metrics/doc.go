// Package metrics records request outcomes produced by virtual users and
// aggregates them into snapshots.
//
// # Recording
//
// A Recorder is shared by every VU of a run. Record appends one Outcome
// under a short mutex; it never waits on anything but that lock.
//
//	rec := metrics.NewRecorder()
//	rec.Record(metrics.Outcome{
//	    Timestamp:  time.Now(),
//	    Latency:    42 * time.Millisecond,
//	    Success:    true,
//	    StatusCode: 200,
//	})
//
// # Snapshots
//
// Snapshot copies the retained latency sample under the lock and computes
// percentiles on the copy with the nearest-rank method. Two calls with no
// Record in between return equal snapshots.
//
//	snap := rec.Snapshot()
//	fmt.Printf("p95=%s failure_rate=%.4f\n", snap.Latency.P95, snap.FailureRate)
//
// # Bounded memory
//
// With Config.MaxSamples > 0 the latency sample becomes a ring buffer that
// keeps only the most recent MaxSamples latencies. Request counts, min, max and
// mean stay exact over the whole run.
//
// # Time series
//
// Every outcome is also placed in a per-interval bucket (one second by
// default) holding an HDR histogram, which backs the live progress view and
// the time series in the run report.
package metrics
