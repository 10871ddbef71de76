// leaf.go - Deposit leaf record and its canonical encodings.
//
// A Leaf is one deposit: the blinded key pair (P, Q) plus the attached value
// in native atomic units. Its accumulator digest is Hash5 over the four point
// coordinates and the value; the binary form is the fixed-size concatenation
// P.X || P.Y || Q.X || Q.Y || value, one 32-byte chunk per coordinate and a
// big-endian 8-byte value.

package treasury

import (
	"encoding/binary"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// SizeLeaf is the byte size of a serialized leaf (4*32 + 8).
const SizeLeaf = 136

// Leaf is a single deposit record. Immutable once written to its slot.
type Leaf struct {
	P     Point
	Q     Point
	Value uint64
}

// Hash computes the leaf's accumulator digest with the given hasher.
// Pure; collision resistance across distinct (P, Q, value) triples is
// inherited from the hash capability.
func (l Leaf) Hash(h Hasher) fr.Element {
	var v fr.Element
	v.SetUint64(l.Value)
	return h.Hash5(l.P.X, l.P.Y, l.Q.X, l.Q.Y, v)
}

// Serialize encodes the leaf as a fixed SizeLeaf-byte chunk sequence.
func (l Leaf) Serialize() []byte {
	var res [SizeLeaf]byte
	buf := l.P.X.Bytes()
	copy(res[0:], buf[:])
	buf = l.P.Y.Bytes()
	copy(res[32:], buf[:])
	buf = l.Q.X.Bytes()
	copy(res[64:], buf[:])
	buf = l.Q.Y.Bytes()
	copy(res[96:], buf[:])
	binary.BigEndian.PutUint64(res[128:], l.Value)
	return res[:]
}

// DeserializeLeaf decodes a leaf from its fixed-size binary form.
func DeserializeLeaf(data []byte) (Leaf, error) {
	var l Leaf
	if len(data) != SizeLeaf {
		return l, errors.New("treasury: wrong leaf size")
	}
	if err := l.P.X.SetBytesCanonical(data[0:32]); err != nil {
		return l, err
	}
	if err := l.P.Y.SetBytesCanonical(data[32:64]); err != nil {
		return l, err
	}
	if err := l.Q.X.SetBytesCanonical(data[64:96]); err != nil {
		return l, err
	}
	if err := l.Q.Y.SetBytesCanonical(data[96:128]); err != nil {
		return l, err
	}
	l.Value = binary.BigEndian.Uint64(data[128:])
	return l, nil
}

// LeafSink receives the durable NewLeaf event emitted on every successful
// deposit and change insertion. The resulting ordered log is the only
// history off-chain reconstruction may rely on.
type LeafSink interface {
	Append(Leaf) error
}
