// hash.go - Hasher capability and its MiMC-backed default.
//
// The accumulator only ever needs two arities: five field elements for a
// deposit leaf and two for an interior node. Interior hashing is ordered,
// so left/right swaps change the digest.

package treasury

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hasher is the opaque hash capability consumed by the ledger. Both methods
// must be pure and deterministic.
type Hasher interface {
	// Hash2 combines two child digests into an interior node digest.
	Hash2(l, r fr.Element) fr.Element
	// Hash5 digests a deposit leaf: P.X, P.Y, Q.X, Q.Y, value.
	Hash5(a, b, c, d, e fr.Element) fr.Element
}

// MiMCHasher implements Hasher with MiMC over the BN254 scalar field.
type MiMCHasher struct{}

// NewMiMCHasher returns the default production hasher.
func NewMiMCHasher() MiMCHasher { return MiMCHasher{} }

func (MiMCHasher) Hash2(l, r fr.Element) fr.Element {
	return mimcSum(l, r)
}

func (MiMCHasher) Hash5(a, b, c, d, e fr.Element) fr.Element {
	return mimcSum(a, b, c, d, e)
}

func mimcSum(elems ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}
