package pool

import "sync/atomic"

// Sequence issues monotonically increasing identifiers. A single
// process-wide instance backs worker identities, so every worker ever
// started gets a unique, human-readable number even across pools.
type Sequence struct {
	current atomic.Uint64
}

// Next returns the next value in the sequence, starting at 1.
func (s *Sequence) Next() uint64 {
	return s.current.Add(1)
}

// workerSeq numbers workers across all pools in the process.
var workerSeq Sequence
