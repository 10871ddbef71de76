// withdraw.go - Batched withdrawal protocol.
//
// A withdrawal consumes up to MaxBatch deposits in one shot: the manager
// proves, in zero knowledge, control of the private scalar behind each
// claimed leaf and its inclusion under the current root. The ledger checks
// root freshness, proof validity and spend status, recycles the unspent
// remainder as a change leaf, and releases the requested amount. All checks
// happen before any mutation; a failed withdrawal leaves the ledger
// byte-identical to before the call.

package treasury

import (
	"fmt"
	"math"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Verifier is the opaque proof-system capability. Verify must be pure and
// deterministic; it is called synchronously inside Withdraw.
type Verifier interface {
	Verify(proof []byte, publicSignals []fr.Element) (bool, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(proof []byte, publicSignals []fr.Element) (bool, error)

func (f VerifierFunc) Verify(proof []byte, publicSignals []fr.Element) (bool, error) {
	return f(proof, publicSignals)
}

// BatchTerminator decides whether position pos of the index region ends the
// batch, i.e. everything from pos onward is padding. indices is the full
// N-length index region of the public signals.
//
// The reference protocol pads short batches by repeating a real index, which
// is fragile if two real targets legitimately collide with the marker; the
// policy is pluggable so a cleaner scheme can replace it without touching
// the rest of the protocol.
type BatchTerminator func(pos int, index uint64, indices []uint64) bool

// DuplicateFirstIndex is the reference padding policy: the walk stops at the
// first position after the head whose index repeats the first index.
func DuplicateFirstIndex(pos int, index uint64, indices []uint64) bool {
	return pos > 0 && index == indices[0]
}

// WithdrawRequest carries one withdrawal attempt. PublicSignals is the
// fixed layout consumed by the verifier:
//
//	[claimedRoot, value_1..value_N, index_1..index_N]
//
// with N the ledger's MaxBatch.
type WithdrawRequest struct {
	Amount        uint64
	ChangeP       Point
	ChangeQ       Point
	Proof         []byte
	PublicSignals []fr.Element
}

// WithdrawReceipt reports the effects of a successful withdrawal.
type WithdrawReceipt struct {
	Released     uint64
	SpentIndices []uint64
	ChangeIndex  uint64
	ChangeValue  uint64
	NewRoot      fr.Element
}

// SignalLen returns the public-signal vector length for a batch bound n.
func SignalLen(n int) int { return 1 + 2*n }

// decodeSignals splits the signal vector into claimed root, values and
// indices, converting the integer regions back to machine words.
func decodeSignals(signals []fr.Element, n int) (root fr.Element, values, indices []uint64, err error) {
	if len(signals) != SignalLen(n) {
		return root, nil, nil, fmt.Errorf("%w: want %d public signals, got %d",
			ErrInvalidProof, SignalLen(n), len(signals))
	}
	root = signals[0]
	values = make([]uint64, n)
	indices = make([]uint64, n)
	for i := 0; i < n; i++ {
		v := signals[1+i]
		idx := signals[1+n+i]
		if !v.IsUint64() || !idx.IsUint64() {
			return root, nil, nil, fmt.Errorf("%w: signal region out of word range", ErrInvalidProof)
		}
		values[i] = v.Uint64()
		indices[i] = idx.Uint64()
	}
	return root, values, indices, nil
}

// Withdraw validates a batched withdrawal and, if every check passes,
// consumes the claimed leaves, inserts the change leaf and releases the
// requested amount from the pool.
func (l *Ledger) Withdraw(req WithdrawRequest) (*WithdrawReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	claimedRoot, values, indices, err := decodeSignals(req.PublicSignals, l.maxBatch)
	if err != nil {
		return nil, err
	}

	// 1. The proof must be bound to the current root. A stale root means the
	// tree advanced since proof generation; the caller retries with a fresh
	// proof rather than us accepting an outdated inclusion claim.
	currentRoot := l.tree.Root()
	if !claimedRoot.Equal(&currentRoot) {
		return nil, fmt.Errorf("%w: claimed %s, current %s",
			ErrStaleRoot, claimedRoot.String(), currentRoot.String())
	}

	// 2. External proof check.
	ok, err := l.verifier.Verify(req.Proof, req.PublicSignals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !ok {
		return nil, ErrInvalidProof
	}

	// 3. Ordered walk over the batch. Everything is staged; nothing is
	// marked spent until all checks pass.
	var total uint64
	staged := make([]uint64, 0, l.maxBatch)
	inBatch := make(map[uint64]bool, l.maxBatch)
	for i := 0; i < l.maxBatch; i++ {
		idx := indices[i]
		if l.terminator(i, idx, indices) {
			break
		}
		if idx >= l.tree.NextIndex() {
			return nil, fmt.Errorf("%w: batch index %d", ErrIndexNotFilled, idx)
		}
		if l.spent.IsSpent(idx) || inBatch[idx] {
			return nil, fmt.Errorf("%w: index %d", ErrAlreadySpent, idx)
		}
		inBatch[idx] = true
		staged = append(staged, idx)
		// No honest batch can sum past the pool's value range; a wrapping
		// total would understate what the batch releases.
		if values[i] > math.MaxUint64-total {
			return nil, fmt.Errorf("%w: batch value overflow", ErrInvalidProof)
		}
		total += values[i]
	}

	// 4. The batch must cover the request, and the pool must hold it.
	if total < req.Amount {
		return nil, fmt.Errorf("%w: batch total %d, requested %d",
			ErrInsufficientValue, total, req.Amount)
	}
	if req.Amount > l.balance {
		return nil, fmt.Errorf("%w: pool balance %d, requested %d",
			ErrInsufficientValue, l.balance, req.Amount)
	}

	// 5. The change leaf must have a free slot before any mutation happens.
	if l.tree.NextIndex() >= l.tree.Capacity() {
		return nil, ErrCapacityExceeded
	}

	// The durable event goes out first: once it is written, the remaining
	// mutations are pure in-memory updates that cannot fail, so a sink
	// error still leaves the ledger untouched.
	change := Leaf{P: req.ChangeP, Q: req.ChangeQ, Value: total - req.Amount}
	if err := l.emit(change); err != nil {
		return nil, fmt.Errorf("appending change leaf event: %w", err)
	}

	for _, idx := range staged {
		if err := l.spent.MarkSpent(idx); err != nil {
			// Unreachable: staging already rejected spent and repeated
			// indices under the same lock.
			return nil, err
		}
	}
	changeIdx, err := l.tree.Insert(change.Hash(l.hasher))
	if err != nil {
		// Unreachable: capacity was checked above under the same lock.
		return nil, err
	}
	l.balance -= req.Amount

	receipt := &WithdrawReceipt{
		Released:     req.Amount,
		SpentIndices: staged,
		ChangeIndex:  changeIdx,
		ChangeValue:  change.Value,
		NewRoot:      l.tree.Root(),
	}
	l.log.Info().
		Uint64("released", receipt.Released).
		Uints64("spent", staged).
		Uint64("change_index", receipt.ChangeIndex).
		Uint64("change_value", receipt.ChangeValue).
		Str("root", receipt.NewRoot.String()).
		Msg("withdrawal settled")
	return receipt, nil
}
