package treasury

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

// acceptAll stands in for the proof system: protocol logic is exercised
// independently of real proof generation.
var acceptAll = VerifierFunc(func([]byte, []fr.Element) (bool, error) {
	return true, nil
})

var rejectAll = VerifierFunc(func([]byte, []fr.Element) (bool, error) {
	return false, nil
})

type recordingSink struct {
	leaves []Leaf
	fail   bool
}

func (s *recordingSink) Append(leaf Leaf) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.leaves = append(s.leaves, leaf)
	return nil
}

type fixture struct {
	ledger  *Ledger
	manager *KeyPair
	sink    *recordingSink
}

func newFixture(t *testing.T, v Verifier) *fixture {
	t.Helper()
	manager, err := GenerateKeyPair()
	require.NoError(t, err)
	sink := &recordingSink{}
	ledger, err := NewLedger(Params{Depth: 4, MaxBatch: 5}, NewMiMCHasher(), v, sink)
	require.NoError(t, err)
	return &fixture{ledger: ledger, manager: manager, sink: sink}
}

func (f *fixture) deposit(t *testing.T, value uint64) uint64 {
	t.Helper()
	p, q, _, err := NewDepositMaterial(f.manager.Pk)
	require.NoError(t, err)
	idx, err := f.ledger.Deposit(p, q, value)
	require.NoError(t, err)
	return idx
}

// signals lays out [root, values..., indices...] padded to the batch bound
// by repeating the first entry, mirroring the off-chain padding scheme.
func signals(root fr.Element, values, indices []uint64, n int) []fr.Element {
	out := make([]fr.Element, SignalLen(n))
	out[0] = root
	for i := 0; i < n; i++ {
		v, idx := values[0], indices[0]
		if i < len(values) {
			v, idx = values[i], indices[i]
		}
		out[1+i].SetUint64(v)
		out[1+n+i].SetUint64(idx)
	}
	return out
}

func (f *fixture) changeMaterial(t *testing.T) (Point, Point) {
	t.Helper()
	p, q, _, err := NewDepositMaterial(f.manager.Pk)
	require.NoError(t, err)
	return p, q
}

func TestDepositBasics(t *testing.T) {
	f := newFixture(t, acceptAll)

	idx := f.deposit(t, 10)
	require.Equal(t, uint64(0), idx)
	f.deposit(t, 20)
	f.deposit(t, 30)

	require.Equal(t, uint64(3), f.ledger.NextIndex())
	require.Equal(t, uint64(60), f.ledger.Balance())
	require.Len(t, f.sink.leaves, 3)

	path, err := f.ledger.Witness(1)
	require.NoError(t, err)
	require.Len(t, path, 4)
}

func TestDepositZeroValueRejected(t *testing.T) {
	f := newFixture(t, acceptAll)
	p, q, _, err := NewDepositMaterial(f.manager.Pk)
	require.NoError(t, err)

	before := f.ledger.Root()
	_, err = f.ledger.Deposit(p, q, 0)
	require.ErrorIs(t, err, ErrZeroValueDeposit)

	after := f.ledger.Root()
	require.True(t, before.Equal(&after))
	require.Equal(t, uint64(0), f.ledger.NextIndex())
	require.Empty(t, f.sink.leaves)
}

func TestDepositSinkFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, acceptAll)
	p, q, _, err := NewDepositMaterial(f.manager.Pk)
	require.NoError(t, err)

	f.sink.fail = true
	before := f.ledger.Root()
	_, err = f.ledger.Deposit(p, q, 10)
	require.Error(t, err)

	after := f.ledger.Root()
	require.True(t, before.Equal(&after))
	require.Equal(t, uint64(0), f.ledger.NextIndex())
	require.Equal(t, uint64(0), f.ledger.Balance())
}

func TestDepositBalanceOverflowRejected(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, math.MaxUint64)

	p, q, _, err := NewDepositMaterial(f.manager.Pk)
	require.NoError(t, err)
	_, err = f.ledger.Deposit(p, q, 2)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	require.Equal(t, uint64(1), f.ledger.NextIndex())
	require.Equal(t, uint64(math.MaxUint64), f.ledger.Balance())
	require.Len(t, f.sink.leaves, 1)
}

func TestWithdrawPaddedBatch(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)
	f.deposit(t, 70)
	extra := f.deposit(t, 30)

	changeP, changeQ := f.changeMaterial(t)
	receipt, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        100,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{50, 70}, []uint64{0, 1}, 5),
	})
	require.NoError(t, err)

	// The walk stops at the padding boundary: only the two real targets are
	// consumed, and value is conserved exactly.
	require.Equal(t, []uint64{0, 1}, receipt.SpentIndices)
	require.Equal(t, uint64(100), receipt.Released)
	require.Equal(t, uint64(20), receipt.ChangeValue)
	require.Equal(t, uint64(3), receipt.ChangeIndex)
	require.Equal(t, uint64(50+70), receipt.Released+receipt.ChangeValue)

	require.True(t, f.ledger.IsSpent(0))
	require.True(t, f.ledger.IsSpent(1))
	require.False(t, f.ledger.IsSpent(extra))
	require.Equal(t, uint64(50), f.ledger.Balance())
	require.Equal(t, uint64(4), f.ledger.NextIndex())

	// The change leaf went through the event log like any deposit.
	require.Len(t, f.sink.leaves, 4)
	require.Equal(t, uint64(20), f.sink.leaves[3].Value)
}

func TestWithdrawInsufficientValue(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)
	f.deposit(t, 70)

	before := f.ledger.Root()
	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        200,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(before, []uint64{50, 70}, []uint64{0, 1}, 5),
	})
	require.ErrorIs(t, err, ErrInsufficientValue)

	after := f.ledger.Root()
	require.True(t, before.Equal(&after))
	require.False(t, f.ledger.IsSpent(0))
	require.False(t, f.ledger.IsSpent(1))
	require.Equal(t, uint64(120), f.ledger.Balance())
}

func TestWithdrawStaleRoot(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)
	f.deposit(t, 70)

	stale := f.ledger.Root()
	f.deposit(t, 5) // root advances after proof generation

	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        100,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(stale, []uint64{50, 70}, []uint64{0, 1}, 5),
	})
	require.ErrorIs(t, err, ErrStaleRoot)
	require.False(t, f.ledger.IsSpent(0))
}

func TestWithdrawInvalidProof(t *testing.T) {
	f := newFixture(t, rejectAll)
	f.deposit(t, 50)
	f.deposit(t, 70)

	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        100,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{50, 70}, []uint64{0, 1}, 5),
	})
	require.ErrorIs(t, err, ErrInvalidProof)
	require.False(t, f.ledger.IsSpent(0))
	require.Equal(t, uint64(120), f.ledger.Balance())
}

func TestWithdrawMalformedSignals(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)

	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        10,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: make([]fr.Element, 3), // wrong length for N=5
	})
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestWithdrawBatchValueOverflowRejected(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 1)
	f.deposit(t, 1)

	// Attested values that wrap uint64 would make the staged total understate
	// the release; the batch is rejected before anything is marked spent.
	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        10,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{math.MaxUint64, 2}, []uint64{0, 1}, 5),
	})
	require.ErrorIs(t, err, ErrInvalidProof)
	require.False(t, f.ledger.IsSpent(0))
	require.False(t, f.ledger.IsSpent(1))
	require.Equal(t, uint64(2), f.ledger.Balance())
}

func TestWithdrawDoubleSpendRejected(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)
	f.deposit(t, 70)

	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        50,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{50}, []uint64{0}, 5),
	})
	require.NoError(t, err)

	// A fresh proof against the new root still cannot consume index 0 again.
	changeP2, changeQ2 := f.changeMaterial(t)
	_, err = f.ledger.Withdraw(WithdrawRequest{
		Amount:        50,
		ChangeP:       changeP2,
		ChangeQ:       changeQ2,
		PublicSignals: signals(f.ledger.Root(), []uint64{50, 70}, []uint64{0, 1}, 5),
	})
	require.ErrorIs(t, err, ErrAlreadySpent)
	require.False(t, f.ledger.IsSpent(1))
}

func TestWithdrawRepeatedNonPaddingIndexRejected(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)
	f.deposit(t, 70)

	// Index 1 repeats at a non-padding position: padding only triggers on a
	// repeat of the first index, so this is a replay inside one batch.
	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        100,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{50, 70, 70}, []uint64{0, 1, 1}, 5),
	})
	require.ErrorIs(t, err, ErrAlreadySpent)
	require.False(t, f.ledger.IsSpent(0))
	require.False(t, f.ledger.IsSpent(1))
}

func TestWithdrawChangeLeafSpendable(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)
	f.deposit(t, 70)

	changeP, changeQ := f.changeMaterial(t)
	receipt, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        100,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{50, 70}, []uint64{0, 1}, 5),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(20), receipt.ChangeValue)

	// Spend the change leaf itself in a second, independent withdrawal.
	changeP2, changeQ2 := f.changeMaterial(t)
	receipt2, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        20,
		ChangeP:       changeP2,
		ChangeQ:       changeQ2,
		PublicSignals: signals(f.ledger.Root(), []uint64{20}, []uint64{receipt.ChangeIndex}, 5),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(20), receipt2.Released)
	require.Equal(t, uint64(0), receipt2.ChangeValue)
	require.True(t, f.ledger.IsSpent(receipt.ChangeIndex))
	require.Equal(t, uint64(0), f.ledger.Balance())
}

func TestWithdrawUnfilledIndexRejected(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)

	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        10,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{50, 10}, []uint64{0, 9}, 5),
	})
	require.ErrorIs(t, err, ErrIndexNotFilled)
}

func TestCustomBatchTerminator(t *testing.T) {
	// A zero-sentinel policy: index 0 never terminates, the sentinel value
	// marks the padding region instead.
	const sentinel = uint64(1<<4 - 1)
	terminator := func(pos int, index uint64, indices []uint64) bool {
		return index == sentinel
	}

	manager, err := GenerateKeyPair()
	require.NoError(t, err)
	ledger, err := NewLedger(Params{Depth: 4, MaxBatch: 5, Terminator: terminator}, NewMiMCHasher(), acceptAll, nil)
	require.NoError(t, err)

	deposit := func(value uint64) {
		p, q, _, err := NewDepositMaterial(manager.Pk)
		require.NoError(t, err)
		_, err = ledger.Deposit(p, q, value)
		require.NoError(t, err)
	}
	deposit(50)
	deposit(70)

	p, q, _, err := NewDepositMaterial(manager.Pk)
	require.NoError(t, err)
	receipt, err := ledger.Withdraw(WithdrawRequest{
		Amount:        120,
		ChangeP:       p,
		ChangeQ:       q,
		PublicSignals: signals(ledger.Root(), []uint64{50, 70, 0, 0, 0}, []uint64{0, 1, sentinel, sentinel, sentinel}, 5),
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, receipt.SpentIndices)
}

func TestCustomBatchTerminatorSurvivesSnapshotRestore(t *testing.T) {
	const sentinel = uint64(1<<4 - 1)
	terminator := func(pos int, index uint64, indices []uint64) bool {
		return index == sentinel
	}

	manager, err := GenerateKeyPair()
	require.NoError(t, err)
	ledger, err := NewLedger(Params{Depth: 4, MaxBatch: 5, Terminator: terminator}, NewMiMCHasher(), acceptAll, nil)
	require.NoError(t, err)
	for _, v := range []uint64{50, 70} {
		p, q, _, err := NewDepositMaterial(manager.Pk)
		require.NoError(t, err)
		_, err = ledger.Deposit(p, q, v)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, ledger.SaveToFile(path))
	loaded, err := LoadLedgerFromFile(path, NewMiMCHasher(), acceptAll, nil, terminator)
	require.NoError(t, err)

	// Sentinel-padded signals are only valid under the custom policy: the
	// default policy would walk into index 15 and fail on an unfilled slot.
	p, q, _, err := NewDepositMaterial(manager.Pk)
	require.NoError(t, err)
	receipt, err := loaded.Withdraw(WithdrawRequest{
		Amount:        120,
		ChangeP:       p,
		ChangeQ:       q,
		PublicSignals: signals(loaded.Root(), []uint64{50, 70, 0, 0, 0}, []uint64{0, 1, sentinel, sentinel, sentinel}, 5),
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, receipt.SpentIndices)
}

func TestRegisterDirectory(t *testing.T) {
	f := newFixture(t, acceptAll)
	require.Equal(t, 0, f.ledger.DirectoryLen())

	pos := f.ledger.Register(f.manager.Pk, "ops treasury")
	require.Equal(t, 0, pos)
	// Labels carry no uniqueness invariant.
	pos = f.ledger.Register(f.manager.Pk, "ops treasury")
	require.Equal(t, 1, pos)

	records := f.ledger.Records()
	require.Len(t, records, 2)
	require.Equal(t, "ops treasury", records[0].Label)
	require.True(t, records[0].PublicKey.Equal(f.manager.Pk))
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t, acceptAll)
	f.deposit(t, 50)
	f.deposit(t, 70)
	f.ledger.Register(f.manager.Pk, "ops")

	changeP, changeQ := f.changeMaterial(t)
	_, err := f.ledger.Withdraw(WithdrawRequest{
		Amount:        100,
		ChangeP:       changeP,
		ChangeQ:       changeQ,
		PublicSignals: signals(f.ledger.Root(), []uint64{50, 70}, []uint64{0, 1}, 5),
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, f.ledger.SaveToFile(path))
	defer os.Remove(path)

	loaded, err := LoadLedgerFromFile(path, NewMiMCHasher(), acceptAll, nil, nil)
	require.NoError(t, err)

	wantRoot := f.ledger.Root()
	gotRoot := loaded.Root()
	require.True(t, wantRoot.Equal(&gotRoot))
	require.Equal(t, f.ledger.NextIndex(), loaded.NextIndex())
	require.Equal(t, f.ledger.Balance(), loaded.Balance())
	require.Equal(t, f.ledger.DirectoryLen(), loaded.DirectoryLen())
	require.True(t, loaded.IsSpent(0))
	require.True(t, loaded.IsSpent(1))
	require.False(t, loaded.IsSpent(2))
}
