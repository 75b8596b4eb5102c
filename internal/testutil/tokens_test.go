package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedTokenGenerator_ReturnsSameToken(t *testing.T) {
	gen := NewFixedTokenGenerator("test-batch-123")

	assert.Equal(t, "test-batch-123", gen.Generate())
	assert.Equal(t, "test-batch-123", gen.Generate())
}

func TestFixedTokenGenerator_EmptyTokenDefault(t *testing.T) {
	assert.Equal(t, "test-batch-default", NewFixedTokenGenerator("").Generate())
}

func TestTokenSequence(t *testing.T) {
	seq := NewTokenSequence("batch")

	assert.Equal(t, "batch-1", seq.Generate())
	assert.Equal(t, "batch-2", seq.Generate())
	assert.Equal(t, int64(2), seq.Issued())

	seq.Reset()
	assert.Equal(t, "batch-1", seq.Generate())
}

func TestTokenSequence_ThreadSafe(t *testing.T) {
	seq := NewTokenSequence("t")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seq.Generate()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), seq.Issued())
}
