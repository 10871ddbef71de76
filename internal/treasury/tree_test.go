package treasury

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func randomElement(t *testing.T) fr.Element {
	t.Helper()
	var e fr.Element
	_, err := e.SetRandom()
	require.NoError(t, err)
	return e
}

func TestTreeRoundTrip(t *testing.T) {
	h := NewMiMCHasher()
	tree, err := NewTree(6, h)
	require.NoError(t, err)

	var hashes []fr.Element
	for i := 0; i < 11; i++ {
		leafHash := randomElement(t)
		idx, err := tree.Insert(leafHash)
		require.NoError(t, err)
		require.Equal(t, uint64(i), idx)
		hashes = append(hashes, leafHash)
	}

	root := tree.Root()
	for i, leafHash := range hashes {
		path, err := tree.Witness(uint64(i))
		require.NoError(t, err)
		require.Len(t, path, 6)
		require.True(t, VerifyWitness(h, leafHash, path, root), "witness %d does not recompute root", i)
	}
}

func TestTreeIncrementalMatchesScenario(t *testing.T) {
	h := NewMiMCHasher()
	tree, err := NewTree(4, h)
	require.NoError(t, err)

	emptyRoot := tree.Root()
	for i := 0; i < 3; i++ {
		_, err := tree.Insert(randomElement(t))
		require.NoError(t, err)
	}

	require.Equal(t, uint64(3), tree.NextIndex())
	root := tree.Root()
	require.False(t, root.Equal(&emptyRoot), "root must move away from the all-empty root")

	path, err := tree.Witness(1)
	require.NoError(t, err)
	require.Len(t, path, 4)
}

func TestTreeCapacity(t *testing.T) {
	tree, err := NewTree(2, NewMiMCHasher())
	require.NoError(t, err)
	require.Equal(t, uint64(4), tree.Capacity())

	for i := 0; i < 4; i++ {
		_, err := tree.Insert(randomElement(t))
		require.NoError(t, err)
	}
	_, err = tree.Insert(randomElement(t))
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, uint64(4), tree.NextIndex())
}

func TestTreeReplayDeterminism(t *testing.T) {
	h := NewMiMCHasher()
	var history []fr.Element
	for i := 0; i < 7; i++ {
		history = append(history, randomElement(t))
	}

	build := func() fr.Element {
		tree, err := NewTree(5, h)
		require.NoError(t, err)
		for _, leafHash := range history {
			_, err := tree.Insert(leafHash)
			require.NoError(t, err)
		}
		return tree.Root()
	}

	first := build()
	second := build()
	require.True(t, first.Equal(&second), "same history must reproduce the same root")
}

func TestTreeWitnessUnfilled(t *testing.T) {
	tree, err := NewTree(4, NewMiMCHasher())
	require.NoError(t, err)
	_, err = tree.Insert(randomElement(t))
	require.NoError(t, err)

	_, err = tree.Witness(1)
	require.ErrorIs(t, err, ErrIndexNotFilled)
}

func TestInteriorHashIsOrdered(t *testing.T) {
	h := NewMiMCHasher()
	a := randomElement(t)
	b := randomElement(t)
	ab := h.Hash2(a, b)
	ba := h.Hash2(b, a)
	require.False(t, ab.Equal(&ba), "interior hash must depend on child order")
}

func TestZeroValuesArePublic(t *testing.T) {
	h := NewMiMCHasher()
	tree, err := NewTree(4, h)
	require.NoError(t, err)

	// Each level's empty hash is the ordered combination of the level below.
	for level := 1; level <= 4; level++ {
		want := h.Hash2(tree.ZeroValue(level-1), tree.ZeroValue(level-1))
		got := tree.ZeroValue(level)
		require.True(t, got.Equal(&want))
	}
	root := tree.Root()
	top := tree.ZeroValue(4)
	require.True(t, root.Equal(&top))
}
