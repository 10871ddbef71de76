// batch.go - Withdrawal batch assembly and padding.
//
// A batch smaller than the protocol constant N is padded by replicating the
// first selected target's data, witness and index into the tail. The ledger's
// walk stops at the first repeat of the head index, so the padding scheme
// here must stay bit-for-bit consistent with the ledger's terminator policy.

package prover

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/lyronctk/treasury-house/internal/treasury"
)

// BatchTarget is one claimed leaf: its index, record and inclusion path.
type BatchTarget struct {
	Index uint64
	Leaf  treasury.Leaf
	Path  []treasury.PathStep
}

// NewBatchTarget collects a target's leaf data and witness from a
// reconstructor.
func NewBatchTarget(r *Reconstructor, index uint64) (BatchTarget, error) {
	leaf, err := r.Leaf(index)
	if err != nil {
		return BatchTarget{}, err
	}
	path, err := r.Witness(index)
	if err != nil {
		return BatchTarget{}, err
	}
	return BatchTarget{Index: index, Leaf: leaf, Path: path}, nil
}

// PadBatch extends a non-empty target selection to exactly n entries by
// duplicating the first target. The duplicated index doubles as the padding
// terminator the ledger walk keys on.
func PadBatch(targets []BatchTarget, n int) ([]BatchTarget, error) {
	if len(targets) == 0 {
		return nil, errors.New("prover: empty batch")
	}
	if len(targets) > n {
		return nil, fmt.Errorf("prover: %d targets exceed batch bound %d", len(targets), n)
	}
	padded := make([]BatchTarget, n)
	copy(padded, targets)
	for i := len(targets); i < n; i++ {
		padded[i] = targets[0]
	}
	return padded, nil
}

// BuildPublicSignals lays out the verifier's public input vector for a
// padded batch:
//
//	[claimedRoot, value_1..value_N, index_1..index_N]
func BuildPublicSignals(root fr.Element, batch []BatchTarget) []fr.Element {
	n := len(batch)
	signals := make([]fr.Element, treasury.SignalLen(n))
	signals[0] = root
	for i, target := range batch {
		signals[1+i].SetUint64(target.Leaf.Value)
		signals[1+n+i].SetUint64(target.Index)
	}
	return signals
}
