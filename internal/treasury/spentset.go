// spentset.go - Persistent set of consumed leaf indices.
//
// MarkSpent is deliberately not idempotent: a second mark for the same index
// signals a replay attempt and must surface as an error, never a no-op. This
// non-idempotency is the ledger's sole concurrency-control primitive for
// contested withdrawals.

package treasury

import "fmt"

// SpentSet tracks which accumulator slots have been consumed. Once spent,
// permanently spent.
type SpentSet struct {
	spent map[uint64]bool
}

// NewSpentSet creates an empty spent set.
func NewSpentSet() *SpentSet {
	return &SpentSet{spent: make(map[uint64]bool)}
}

// IsSpent reports whether the leaf index was already consumed.
func (s *SpentSet) IsSpent(index uint64) bool {
	return s.spent[index]
}

// MarkSpent consumes a leaf index. Fails with ErrAlreadySpent if the index
// was marked before.
func (s *SpentSet) MarkSpent(index uint64) error {
	if s.spent[index] {
		return fmt.Errorf("%w: index %d", ErrAlreadySpent, index)
	}
	s.spent[index] = true
	return nil
}

// Indices returns the spent indices as a copy, for snapshotting.
func (s *SpentSet) Indices() []uint64 {
	out := make([]uint64, 0, len(s.spent))
	for idx := range s.spent {
		out = append(out, idx)
	}
	return out
}
