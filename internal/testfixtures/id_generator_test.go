package testfixtures

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("asset")

	assert.Equal(t, "asset-0001", gen.Next())
	assert.Equal(t, "asset-0002", gen.Next())
	assert.Equal(t, uint64(2), gen.Issued())
}

func TestIDGeneratorIsSafeForConcurrentUse(t *testing.T) {
	gen := NewIDGenerator("")
	seen := sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(gen.Next(), struct{}{})
			assert.False(t, dup)
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(50), gen.Issued())
}
