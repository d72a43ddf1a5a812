package engine

import "sync/atomic"

// Sequencer hands out strictly increasing arrival numbers.
type Sequencer struct {
	last atomic.Uint64
}

// NewSequencer creates a Sequencer whose first Next returns start+1.
func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued sequence number.
func (s *Sequencer) Last() uint64 {
	return s.last.Load()
}
