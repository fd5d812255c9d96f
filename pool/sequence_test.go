package pool

import (
	"sync"
	"testing"
)
import "github.com/stretchr/testify/require"

func TestSequence_UniqueUnderConcurrency(t *testing.T) {
	s := &Sequence{}

	const goroutines = 100

	values := make(chan uint64, goroutines)
	wg := &sync.WaitGroup{}
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			values <- s.Next()
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[uint64]bool)
	var max uint64
	for v := range values {
		require.False(t, seen[v], "sequence issued %d twice", v)
		seen[v] = true
		if v > max {
			max = v
		}
	}

	require.Len(t, seen, goroutines)
	require.Equal(t, uint64(goroutines), max)
}
