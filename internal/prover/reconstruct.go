// Package prover implements the treasury manager's off-chain workflow:
// replaying the NewLeaf history into an accumulator copy, locating owned
// deposits, assembling padded withdrawal batches with their public signals,
// and verifying submitted proofs through the Groth16 boundary.
//
// Nothing here mutates ledger state; every reconstruction session is an
// independent, read-only pass over the historical log.
package prover

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/lyronctk/treasury-house/internal/treasury"
)

// ErrRootMismatch indicates the replayed history does not reproduce the
// expected root: the log is missing events or the protocol diverged. Proofs
// built from this state would be rejected on submission, so the mismatch is
// surfaced loudly instead of swallowed.
var ErrRootMismatch = errors.New("prover: reconstructed root does not match ledger root")

// LeafSource is the one-pass stream of historical leaf records the
// reconstructor consumes. Satisfied by eventlog iterators.
type LeafSource interface {
	Next() (leaf treasury.Leaf, ok bool, err error)
}

// Reconstructor holds a rebuilt accumulator plus the full leaf history it
// was built from, so witnesses and ownership scans work without touching
// the log again.
type Reconstructor struct {
	tree   *treasury.Tree
	leaves []treasury.Leaf
}

// Rebuild replays the entire history through a fresh tree. The source is
// consumed exactly once, in order; deposit and change leaves go through the
// same insert path, which is what makes replay reproduce the authoritative
// root bit for bit.
func Rebuild(src LeafSource, depth int, h treasury.Hasher) (*Reconstructor, error) {
	tree, err := treasury.NewTree(depth, h)
	if err != nil {
		return nil, err
	}
	r := &Reconstructor{tree: tree, leaves: make([]treasury.Leaf, 0, 64)}
	for {
		leaf, ok, err := src.Next()
		if err != nil {
			return nil, fmt.Errorf("reading leaf history: %w", err)
		}
		if !ok {
			return r, nil
		}
		if _, err := tree.Insert(leaf.Hash(h)); err != nil {
			return nil, fmt.Errorf("replaying leaf %d: %w", len(r.leaves), err)
		}
		r.leaves = append(r.leaves, leaf)
	}
}

// Root returns the reconstructed accumulator root.
func (r *Reconstructor) Root() fr.Element { return r.tree.Root() }

// Len returns the number of replayed leaves.
func (r *Reconstructor) Len() uint64 { return r.tree.NextIndex() }

// Leaf returns the historical leaf at the given index.
func (r *Reconstructor) Leaf(index uint64) (treasury.Leaf, error) {
	if index >= uint64(len(r.leaves)) {
		return treasury.Leaf{}, fmt.Errorf("%w: index %d", treasury.ErrIndexNotFilled, index)
	}
	return r.leaves[index], nil
}

// Witness generates the inclusion path for a replayed leaf. Identical to
// the authoritative ledger's path for the same history.
func (r *Reconstructor) Witness(index uint64) ([]treasury.PathStep, error) {
	return r.tree.Witness(index)
}

// CheckAgainst compares the reconstructed root with the authoritative one.
func (r *Reconstructor) CheckAgainst(ledgerRoot fr.Element) error {
	root := r.tree.Root()
	if !root.Equal(&ledgerRoot) {
		return fmt.Errorf("%w: rebuilt %s, ledger %s",
			ErrRootMismatch, root.String(), ledgerRoot.String())
	}
	return nil
}

// OwnedLeaves scans the history for deposits whose Q equals sk*P, the
// defining relation of the DH derivation: only the holder of the treasury's
// private scalar can recompute Q from a deposit's P. Pure, read-only.
func (r *Reconstructor) OwnedLeaves(sk *big.Int) []uint64 {
	owned := make([]uint64, 0)
	for i, leaf := range r.leaves {
		derived := treasury.DeriveShared(sk, leaf.P)
		if derived.Equal(leaf.Q) {
			owned = append(owned, uint64(i))
		}
	}
	return owned
}
