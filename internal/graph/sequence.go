package graph

import (
	"fmt"
	"sync/atomic"
)

// IDSource hands out call ids.
type IDSource interface {
	NextCallID() CallID
}

// Sequence generates call ids "c0", "c1", ... from a monotonic counter.
//
// Sharing one Sequence between builders keeps ids unique across every batch
// a client sends, not just within one.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	next atomic.Int64
}

// NewSequence creates a sequence starting at c0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NextCallID returns the next id and advances the sequence.
func (s *Sequence) NextCallID() CallID {
	n := s.next.Add(1) - 1
	return CallID(fmt.Sprintf("c%d", n))
}

// Issued returns how many ids have been handed out.
func (s *Sequence) Issued() int64 {
	return s.next.Load()
}
