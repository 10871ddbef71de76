// groth16.go - Groth16 boundary: verifier adapter and prover capability.
//
// The arithmetic circuit and its trusted setup live outside this module; the
// ledger only ever sees opaque proof bytes and the public-signal vector.
// Groth16Verifier bridges that boundary onto gnark: deserialize the proof,
// build a public-only witness from the signals, verify against the key.

package prover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// withdrawSignals is the assignment shape of the public input vector. Only
// the layout matters here, never the circuit's constraints.
type withdrawSignals struct {
	Signals []frontend.Variable `gnark:",public"`
}

func (c *withdrawSignals) Define(frontend.API) error {
	// Constraints are defined by the external circuit; this type only
	// exists to shape witness serialization.
	return nil
}

// Groth16Verifier implements the ledger's Verifier capability on top of a
// gnark Groth16 verifying key.
type Groth16Verifier struct {
	vk groth16.VerifyingKey
}

// NewGroth16Verifier wraps an already-deserialized verifying key.
func NewGroth16Verifier(vk groth16.VerifyingKey) *Groth16Verifier {
	return &Groth16Verifier{vk: vk}
}

// LoadGroth16Verifier reads a BN254 verifying key from r.
func LoadGroth16Verifier(r io.Reader) (*Groth16Verifier, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("reading verifying key: %w", err)
	}
	return &Groth16Verifier{vk: vk}, nil
}

// Verify checks an opaque proof against the public signals. A proof that
// fails cryptographic verification yields (false, nil); malformed inputs
// yield an error.
func (v *Groth16Verifier) Verify(proofBytes []byte, publicSignals []fr.Element) (bool, error) {
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("unmarshalling proof: %w", err)
	}

	assignment := &withdrawSignals{Signals: make([]frontend.Variable, len(publicSignals))}
	for i := range publicSignals {
		assignment.Signals[i] = publicSignals[i]
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("building public witness: %w", err)
	}

	if err := groth16.Verify(proof, v.vk, w); err != nil {
		return false, nil
	}
	return true, nil
}

// ProofJob is everything the external proving system needs for one
// withdrawal: the root the proof binds to, the padded batch with witnesses,
// and the manager's private scalar.
type ProofJob struct {
	Root          fr.Element
	Batch         []BatchTarget
	PrivateScalar *big.Int
}

// Prover is the opaque proof-generation capability. Proof generation over
// large batches dominates the off-chain cost, so it takes a context and is
// expected to honor cancellation.
type Prover interface {
	Prove(ctx context.Context, job ProofJob) ([]byte, error)
}

// ProverFunc adapts a function to the Prover interface.
type ProverFunc func(ctx context.Context, job ProofJob) ([]byte, error)

func (f ProverFunc) Prove(ctx context.Context, job ProofJob) ([]byte, error) {
	return f(ctx, job)
}
