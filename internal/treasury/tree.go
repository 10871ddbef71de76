// tree.go - Append-only incremental Merkle accumulator.
//
// Fixed depth, strictly append-only: every slot is written at most once and
// nothing is ever deleted, so the root only ever absorbs new leaves. Insertion
// maintains a per-level frontier of filled subtrees, giving O(depth) work per
// insert instead of recomputing the whole tree.

package treasury

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// zeroSeed derives the public empty-leaf constant. Hash-to-field keeps the
// value preimage-free: no party can claim a hidden deposit behind an empty
// slot.
const zeroSeed = "treasury-house:empty-leaf:v1"

// PathStep is one level of an inclusion witness.
type PathStep struct {
	Sibling fr.Element
	// Right reports whether the sibling sits to the right of the running
	// hash when recomputing the root.
	Right bool
}

// Tree is the incremental accumulator. Not safe for concurrent use on its
// own; the Ledger serializes access.
type Tree struct {
	depth     int
	root      fr.Element
	nextIndex uint64
	frontier  []fr.Element // filled subtree per level
	zeros     []fr.Element // empty subtree hash per level, zeros[depth] = empty root
	leaves    []fr.Element // every inserted leaf hash, for witness generation
	h         Hasher
}

// NewTree creates an empty accumulator of the given depth.
func NewTree(depth int, h Hasher) (*Tree, error) {
	if depth < 1 || depth > 63 {
		return nil, fmt.Errorf("treasury: unsupported tree depth %d", depth)
	}
	zeros := make([]fr.Element, depth+1)
	seed, err := fr.Hash([]byte(zeroSeed), []byte("treasury-house"), 1)
	if err != nil {
		return nil, fmt.Errorf("deriving empty leaf: %w", err)
	}
	zeros[0] = seed[0]
	for i := 1; i <= depth; i++ {
		zeros[i] = h.Hash2(zeros[i-1], zeros[i-1])
	}
	return &Tree{
		depth:    depth,
		root:     zeros[depth],
		frontier: make([]fr.Element, depth),
		zeros:    zeros,
		leaves:   make([]fr.Element, 0, 64),
		h:        h,
	}, nil
}

// Depth returns the fixed tree depth.
func (t *Tree) Depth() int { return t.depth }

// Root returns the current Merkle root.
func (t *Tree) Root() fr.Element { return t.root }

// NextIndex returns the next free slot, i.e. the number of inserted leaves.
func (t *Tree) NextIndex() uint64 { return t.nextIndex }

// Capacity returns the total number of leaf slots, 2^depth.
func (t *Tree) Capacity() uint64 { return 1 << uint(t.depth) }

// ZeroValue returns the empty-subtree hash at the given level (0 = leaf).
func (t *Tree) ZeroValue(level int) fr.Element { return t.zeros[level] }

// Insert appends a leaf hash at the next free slot, updates the frontier
// bottom-up and recomputes the root. Returns the assigned index.
func (t *Tree) Insert(leafHash fr.Element) (uint64, error) {
	if t.nextIndex >= t.Capacity() {
		return 0, ErrCapacityExceeded
	}
	idx := t.nextIndex
	t.leaves = append(t.leaves, leafHash)
	t.nextIndex++

	current := leafHash
	pos := idx
	for level := 0; level < t.depth; level++ {
		if pos%2 == 0 {
			// Left child: cache it and pair with the empty right sibling.
			t.frontier[level] = current
			current = t.h.Hash2(current, t.zeros[level])
		} else {
			current = t.h.Hash2(t.frontier[level], current)
		}
		pos /= 2
	}
	t.root = current
	return idx, nil
}

// Witness produces the depth-length inclusion path for a filled slot. The
// same insertion history yields bit-identical paths whether the tree is the
// authoritative ledger copy or an off-chain reconstruction.
func (t *Tree) Witness(index uint64) ([]PathStep, error) {
	if index >= t.nextIndex {
		return nil, fmt.Errorf("%w: index %d, filled %d", ErrIndexNotFilled, index, t.nextIndex)
	}

	path := make([]PathStep, t.depth)
	layer := make([]fr.Element, t.nextIndex)
	copy(layer, t.leaves)

	pos := index
	for level := 0; level < t.depth; level++ {
		if len(layer)%2 != 0 {
			layer = append(layer, t.zeros[level])
		}
		sib := pos ^ 1
		step := PathStep{Right: pos%2 == 0}
		if sib < uint64(len(layer)) {
			step.Sibling = layer[sib]
		} else {
			step.Sibling = t.zeros[level]
		}
		path[level] = step

		next := make([]fr.Element, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			next[i/2] = t.h.Hash2(layer[i], layer[i+1])
		}
		layer = next
		pos /= 2
	}
	return path, nil
}

// VerifyWitness recomputes a root from a leaf hash and its path and compares
// it against the expected root.
func VerifyWitness(h Hasher, leafHash fr.Element, path []PathStep, root fr.Element) bool {
	current := leafHash
	for _, step := range path {
		if step.Right {
			current = h.Hash2(current, step.Sibling)
		} else {
			current = h.Hash2(step.Sibling, current)
		}
	}
	return current.Equal(&root)
}
