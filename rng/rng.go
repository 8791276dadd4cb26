// Package rng gives every stochastic component (currently the RED
// queue's drop decisions) its own seeded stream, the way mrnes gives
// each device its own rngstream.RngStream (net.go's devRng/createEndptState),
// so a scenario's outcome is reproducible given its seed (spec.md §9).
package rng

import "github.com/iti/rngstream"

// Stream wraps a named, seedable RNG stream.
type Stream struct {
	name string
	rs   *rngstream.RngStream
}

// New creates a stream identified by name, via rngstream.New. The name
// labels the stream (see Name) and does not determine its draws: each
// call starts a fresh rngstream stream, so two streams created with the
// same name in one process draw different sequences.
func New(name string) *Stream {
	return &Stream{name: name, rs: rngstream.New(name)}
}

// Name returns the identifier the stream was created with.
func (s *Stream) Name() string { return s.name }

// U01 draws a uniform sample in [0, 1).
func (s *Stream) U01() float64 { return s.rs.RandU01() }

// Bool returns true with probability p.
func (s *Stream) Bool(p float64) bool { return s.U01() < p }

// IntN returns a uniform integer in [0, n).
func (s *Stream) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.U01() * float64(n))
}
