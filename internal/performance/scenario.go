// Package performance contains the virtual users and the VU pool that
// executors use to generate load.
package performance

import (
	"math/rand/v2"
	"time"
)

// Scenario defines what a VU executes during each iteration: one request
// followed by a think-time pause.
//
// A Scenario is shared by every VU of a run and must not be modified once
// the run has started.
type Scenario struct {
	// Name of the scenario
	Name string `json:"name" yaml:"name"`

	// Request issued once per iteration
	Request *RequestTemplate `json:"request" yaml:"request"`

	// ThinkTime is the pause after each request
	ThinkTime ThinkTime `json:"thinkTime" yaml:"thinkTime"`
}

// ThinkTime is either a fixed pause (Min == Max) or a uniform distribution
// over [Min, Max].
type ThinkTime struct {
	Min time.Duration `json:"min" yaml:"min"`
	Max time.Duration `json:"max" yaml:"max"`
}

// FixedThinkTime returns a think-time that always pauses for d.
func FixedThinkTime(d time.Duration) ThinkTime {
	return ThinkTime{Min: d, Max: d}
}

// IsZero reports whether no pause is configured.
func (t ThinkTime) IsZero() bool {
	return t.Min <= 0 && t.Max <= 0
}

// Next returns the next pause. rng may be nil for a fixed think-time.
func (t ThinkTime) Next(rng *rand.Rand) time.Duration {
	if t.Max <= t.Min || rng == nil {
		if t.Min < 0 {
			return 0
		}
		return t.Min
	}
	span := int64(t.Max - t.Min)
	return t.Min + time.Duration(rng.Int64N(span+1))
}
