// point.go - Baby Jubjub points and Diffie-Hellman key derivation.
//
// A deposit is bound to a pair of points (P, Q): P is the contributor's
// per-deposit nonce public key, Q the shared point only the treasury manager
// can re-derive from P with their private scalar (and vice versa).

package treasury

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

// Point is an affine point on the BN254 embedded twisted Edwards curve
// (Baby Jubjub). Coordinates live in the BN254 scalar field, so a Point
// fits directly into the accumulator's hash inputs. Immutable once built.
type Point struct {
	X fr.Element
	Y fr.Element
}

// NewPoint builds a Point from affine coordinates.
func NewPoint(x, y fr.Element) Point {
	return Point{X: x, Y: y}
}

// Equal reports whether two points have identical coordinates.
func (p Point) Equal(q Point) bool {
	return p.X.Equal(&q.X) && p.Y.Equal(&q.Y)
}

// IsOnCurve reports whether the point satisfies the curve equation.
func (p Point) IsOnCurve() bool {
	var a twistededwards.PointAffine
	a.X.Set(&p.X)
	a.Y.Set(&p.Y)
	return a.IsOnCurve()
}

func (p Point) affine() *twistededwards.PointAffine {
	var a twistededwards.PointAffine
	a.X.Set(&p.X)
	a.Y.Set(&p.Y)
	return &a
}

func fromAffine(a *twistededwards.PointAffine) Point {
	var p Point
	p.X.Set(&a.X)
	p.Y.Set(&a.Y)
	return p
}

// KeyPair holds a private scalar and the matching public point sk*G.
type KeyPair struct {
	Sk *big.Int
	Pk Point
}

// GenerateKeyPair samples a random scalar below the curve order and returns
// the keypair. Used both for the treasury manager's long-term key and for
// per-deposit contributor nonces.
func GenerateKeyPair() (*KeyPair, error) {
	params := twistededwards.GetEdwardsCurve()
	sk, err := rand.Int(rand.Reader, &params.Order)
	if err != nil {
		return nil, fmt.Errorf("sampling scalar: %w", err)
	}
	var pk twistededwards.PointAffine
	pk.ScalarMultiplication(&params.Base, sk)
	return &KeyPair{Sk: sk, Pk: fromAffine(&pk)}, nil
}

// DeriveShared computes sk*P, the Diffie-Hellman shared point. Both sides of
// the exchange arrive at the same point from their own scalar and the other
// party's public point.
func DeriveShared(sk *big.Int, p Point) Point {
	var shared twistededwards.PointAffine
	shared.ScalarMultiplication(p.affine(), sk)
	return fromAffine(&shared)
}

// NewDepositMaterial samples a fresh deposit nonce r and derives the pair
// (P, Q) = (r*G, r*managerPub) that binds a deposit to the manager without
// linking it to the contributor. The nonce is returned so tests and wallets
// can prove ownership; production callers should discard it.
func NewDepositMaterial(managerPub Point) (p, q Point, nonce *big.Int, err error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return Point{}, Point{}, nil, err
	}
	return kp.Pk, DeriveShared(kp.Sk, managerPub), kp.Sk, nil
}
