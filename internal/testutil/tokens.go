package testutil

import (
	"fmt"
	"sync"
)

// FixedTokenGenerator returns the same batch token every time, so logs of
// a scenario are byte-identical across runs.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a fixed batch token generator.
//
// If token is empty, Generate() returns "test-batch-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-batch-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

// TokenSequence returns numbered batch tokens "<prefix>-1", "<prefix>-2", ...
// and can be reset for test reuse.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type TokenSequence struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewTokenSequence creates a sequence whose first token is "<prefix>-1".
func NewTokenSequence(prefix string) *TokenSequence {
	return &TokenSequence{prefix: prefix}
}

// Generate increments the sequence and returns its token.
func (s *TokenSequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%d", s.prefix, s.seq)
}

// Issued returns how many tokens have been generated since the last Reset.
func (s *TokenSequence) Issued() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence at 1.
func (s *TokenSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
