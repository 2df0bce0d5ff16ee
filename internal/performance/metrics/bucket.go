package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	histogramMin     = 1 // microseconds
	histogramSigFigs = 3
)

// bucket accumulates the outcomes of one interval.
type bucket struct {
	index     int64
	requests  int64
	failures  int64
	hist      *hdrhistogram.Histogram
	activeVUs int
	phase     Phase
}

// TimeBucketStore places outcomes into fixed-width intervals keyed by their
// timestamp relative to a start time.
//
// Buckets are created lazily, so an interval with no outcomes has no bucket.
type TimeBucketStore struct {
	start    time.Time
	interval time.Duration
	histMax  int64

	mu      sync.Mutex
	buckets map[int64]*bucket
}

// NewTimeBucketStore creates a store whose first interval begins at start.
func NewTimeBucketStore(start time.Time, interval time.Duration, histMax int64) *TimeBucketStore {
	return &TimeBucketStore{
		start:    start,
		interval: interval,
		histMax:  histMax,
		buckets:  make(map[int64]*bucket),
	}
}

// Record adds an outcome to the bucket covering its timestamp. activeVUs and
// phase are captured when the bucket is first opened.
func (s *TimeBucketStore) Record(o Outcome, activeVUs int, phase Phase) {
	idx := s.indexOf(o.Timestamp)

	micros := o.Latency.Microseconds()
	if micros < histogramMin {
		micros = histogramMin
	}
	if micros > s.histMax {
		micros = s.histMax
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[idx]
	if !ok {
		b = &bucket{
			index:     idx,
			hist:      hdrhistogram.New(histogramMin, s.histMax, histogramSigFigs),
			activeVUs: activeVUs,
			phase:     phase,
		}
		s.buckets[idx] = b
	}
	b.requests++
	if !o.Success {
		b.failures++
	}
	// RecordValue is not safe for concurrent use; s.mu guards it.
	_ = b.hist.RecordValue(micros)
}

func (s *TimeBucketStore) indexOf(ts time.Time) int64 {
	offset := ts.Sub(s.start)
	if offset < 0 {
		return 0
	}
	return int64(offset / s.interval)
}

// Buckets returns every bucket in chronological order.
func (s *TimeBucketStore) Buckets() []TimeBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]TimeBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		result = append(result, s.summarise(b))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Offset < result[j].Offset
	})
	return result
}

// Latest returns the most recent bucket that closed before now. The bucket
// still being filled is skipped so a live view never shows a partial interval.
func (s *TimeBucketStore) Latest(now time.Time) (TimeBucket, bool) {
	current := s.indexOf(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *bucket
	for idx, b := range s.buckets {
		if idx >= current {
			continue
		}
		if latest == nil || idx > latest.index {
			latest = b
		}
	}
	if latest == nil {
		return TimeBucket{}, false
	}
	return s.summarise(latest), true
}

// summarise converts a bucket to its exported form. Caller holds s.mu.
func (s *TimeBucketStore) summarise(b *bucket) TimeBucket {
	offset := time.Duration(b.index) * s.interval
	tb := TimeBucket{
		Offset:    offset,
		Timestamp: s.start.Add(offset),
		Requests:  b.requests,
		Failures:  b.failures,
		RPS:       float64(b.requests) / s.interval.Seconds(),
		P50:       time.Duration(b.hist.ValueAtQuantile(50)) * time.Microsecond,
		P95:       time.Duration(b.hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:       time.Duration(b.hist.ValueAtQuantile(99)) * time.Microsecond,
		ActiveVUs: b.activeVUs,
		Phase:     b.phase,
	}
	if b.requests > 0 {
		tb.FailureRate = float64(b.failures) / float64(b.requests)
	}
	return tb
}
