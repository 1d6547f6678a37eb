package network

import "math/rand/v2"

// RandomSource is the only randomness the engines consume: a uniform draw
// in [0, 1). *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	Float64() float64
}

// NewSeededSource returns a deterministic source for reproducible runs.
func NewSeededSource(seed int64) RandomSource {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// EntropySource returns a source backed by the runtime's randomly seeded
// generator. It is safe for concurrent use.
func EntropySource() RandomSource {
	return entropySource{}
}

type entropySource struct{}

func (entropySource) Float64() float64 { return rand.Float64() }

// SequenceSource replays a fixed list of draws, cycling when exhausted.
// Tests use it to force particular outcomes.
type SequenceSource struct {
	values []float64
	next   int
}

// NewSequenceSource returns a source that yields values in order.
// An empty list always yields 0.
func NewSequenceSource(values ...float64) *SequenceSource {
	return &SequenceSource{values: values}
}

// Float64 returns the next value in the sequence.
func (s *SequenceSource) Float64() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}
