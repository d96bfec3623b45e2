// Package backoff provides the jittered wait sequence used between busy retries.
//
// Every wait is base + r seconds where r is drawn uniformly from [0, 1) on each
// pull. The ceiling does not grow with the retry count, so the worst-case wait
// under sustained overload is bounded at base + 1s. Concurrent retriers are
// still decorrelated by the per-pull jitter.
//
// Design constraints:
//   - Pure computation, no IO or sleeping (logic layer).
//   - The random source is injectable so tests can assert exact waits.
//
// Used by adaptor/tweezer to pace retries after a 503 response.
package backoff

import (
	"iter"
	"math/rand/v2"
	"time"
)

// DefaultBase is the base wait between busy retries.
const DefaultBase = 1500 * time.Millisecond

// jitterSpan is the width of the uniform jitter added to the base.
const jitterSpan = time.Second

// Rand is the entropy source for jitter. Float64 must return a value in [0, 1).
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
}

// globalRand draws from the process-wide math/rand/v2 source.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Sequencer yields an unbounded sequence of jittered waits. It holds no state
// beyond its base and source, so a fresh Sequencer restarts the sequence.
// A Sequencer is not safe for concurrent use when rnd is not.
type Sequencer struct {
	base time.Duration
	rnd  Rand
}

// NewSequencer returns a Sequencer around base. A nil rnd uses the process-wide
// source. A non-positive base falls back to DefaultBase.
//
//	seq := backoff.NewSequencer(backoff.DefaultBase, nil)
//	wait := seq.Next() // [1.5s, 2.5s)
func NewSequencer(base time.Duration, rnd Rand) *Sequencer {
	if base <= 0 {
		base = DefaultBase
	}
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Sequencer{base: base, rnd: rnd}
}

// Next draws a fresh wait in [base, base+1s).
func (s *Sequencer) Next() time.Duration {
	r := s.rnd.Float64()
	// Guard against sources that return 1.0 or out-of-range values.
	if r < 0 || r >= 1 {
		r = 0
	}
	return s.base + time.Duration(r*float64(jitterSpan))
}

// All returns the sequence as an iterator. It never ends on its own; the
// consumer stops it by breaking out of the range loop.
//
//	for wait := range seq.All() {
//	    if done { break }
//	    time.Sleep(wait)
//	}
func (s *Sequencer) All() iter.Seq[time.Duration] {
	return func(yield func(time.Duration) bool) {
		for {
			if !yield(s.Next()) {
				return
			}
		}
	}
}
