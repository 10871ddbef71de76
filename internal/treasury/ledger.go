// ledger.go - Authoritative treasury ledger state.
//
// The Ledger owns the accumulator, the spent set, the directory and the
// pooled balance; every state-mutating operation runs one at a time under a
// single mutex, equivalent to serializable transactions against one store.
// There is no ambient global instance: callers construct a Ledger and pass
// it where it is needed.

package treasury

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"
)

// DefaultDepth is the accumulator depth used when Params leaves it zero.
const DefaultDepth = 32

// DefaultMaxBatch is the protocol-wide withdrawal batch bound used when
// Params leaves it zero.
const DefaultMaxBatch = 5

// Params configures a Ledger instance.
type Params struct {
	// Depth is the fixed accumulator depth D; capacity is 2^D leaves.
	Depth int
	// MaxBatch is the protocol constant N: the fixed batch size every
	// withdrawal's public signals are laid out for.
	MaxBatch int
	// Terminator is the batch padding policy; DuplicateFirstIndex when nil.
	Terminator BatchTerminator
}

// Ledger is the sequentially-applied treasury state.
type Ledger struct {
	mu         sync.Mutex
	tree       *Tree
	spent      *SpentSet
	directory  *Directory
	balance    uint64
	maxBatch   int
	terminator BatchTerminator
	hasher     Hasher
	verifier   Verifier
	sink       LeafSink
	log        zerolog.Logger
}

// NewLedger constructs an empty ledger. The hasher and verifier are the two
// external capabilities; sink receives the durable NewLeaf events and may be
// nil when no history needs to survive the process.
func NewLedger(p Params, h Hasher, v Verifier, sink LeafSink) (*Ledger, error) {
	if p.Depth == 0 {
		p.Depth = DefaultDepth
	}
	if p.MaxBatch == 0 {
		p.MaxBatch = DefaultMaxBatch
	}
	if p.MaxBatch < 1 {
		return nil, fmt.Errorf("treasury: max batch must be positive, got %d", p.MaxBatch)
	}
	if p.Terminator == nil {
		p.Terminator = DuplicateFirstIndex
	}
	tree, err := NewTree(p.Depth, h)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		tree:       tree,
		spent:      NewSpentSet(),
		directory:  NewDirectory(),
		maxBatch:   p.MaxBatch,
		terminator: p.Terminator,
		hasher:     h,
		verifier:   v,
		sink:       sink,
		log:        zerolog.Nop(),
	}, nil
}

// SetLogger attaches a structured logger; the default discards everything.
func (l *Ledger) SetLogger(log zerolog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = log
}

func (l *Ledger) emit(leaf Leaf) error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Append(leaf)
}

// Deposit appends one contribution to the pool. The caller supplies the
// blinded pair (P, Q) and the attached value; zero-value deposits are
// rejected at the boundary with no state mutated.
func (l *Ledger) Deposit(p, q Point, value uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if value == 0 {
		return 0, ErrZeroValueDeposit
	}
	if l.tree.NextIndex() >= l.tree.Capacity() {
		return 0, ErrCapacityExceeded
	}
	if value > math.MaxUint64-l.balance {
		return 0, fmt.Errorf("%w: pooled balance overflow", ErrCapacityExceeded)
	}

	leaf := Leaf{P: p, Q: q, Value: value}
	if err := l.emit(leaf); err != nil {
		return 0, fmt.Errorf("appending deposit event: %w", err)
	}
	idx, err := l.tree.Insert(leaf.Hash(l.hasher))
	if err != nil {
		// Unreachable: capacity was checked above under the same lock.
		return 0, err
	}
	l.balance += value

	root := l.tree.Root()
	l.log.Info().
		Uint64("index", idx).
		Uint64("value", value).
		Str("root", root.String()).
		Msg("deposit accepted")
	return idx, nil
}

// Register appends a treasury record to the directory. No validation beyond
// type shape; labels are descriptive only.
func (l *Ledger) Register(publicKey Point, label string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.directory.Append(publicKey, label)
	l.log.Info().Str("label", label).Int("position", pos).Msg("treasury registered")
	return pos
}

// Root returns the current accumulator root.
func (l *Ledger) Root() fr.Element {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree.Root()
}

// NextIndex returns the number of leaves inserted so far.
func (l *Ledger) NextIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree.NextIndex()
}

// DirectoryLen returns the number of registered treasuries.
func (l *Ledger) DirectoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.directory.Len()
}

// Records returns a copy of the directory.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.directory.Records()
}

// Balance returns the pooled, not-yet-released value.
func (l *Ledger) Balance() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// MaxBatch returns the protocol batch constant N.
func (l *Ledger) MaxBatch() int { return l.maxBatch }

// IsSpent reports whether a leaf index was consumed. Only meaningful for
// indices below NextIndex.
func (l *Ledger) IsSpent(index uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent.IsSpent(index)
}

// Witness produces the authoritative inclusion path for a filled slot.
func (l *Ledger) Witness(index uint64) ([]PathStep, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree.Witness(index)
}

// snapshot is the JSON wire form of the ledger state. Leaf hashes are stored
// as decimal field-element strings; the tree is rebuilt by replay on load,
// which the replay-determinism property guarantees reproduces the root.
type snapshot struct {
	Depth      int      `json:"depth"`
	MaxBatch   int      `json:"max_batch"`
	LeafHashes []string `json:"leaf_hashes"`
	Spent      []uint64 `json:"spent"`
	Directory  []Record `json:"directory"`
	Balance    uint64   `json:"balance"`
}

// SaveToFile writes the ledger state to a JSON file, overwriting any
// previous snapshot. The event log, not this snapshot, remains the source
// of truth for off-chain reconstruction.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := snapshot{
		Depth:      l.tree.Depth(),
		MaxBatch:   l.maxBatch,
		LeafHashes: make([]string, len(l.tree.leaves)),
		Spent:      l.spent.Indices(),
		Directory:  l.directory.Records(),
		Balance:    l.balance,
	}
	for i := range l.tree.leaves {
		snap.LeafHashes[i] = l.tree.leaves[i].String()
	}
	sort.Slice(snap.Spent, func(i, j int) bool { return snap.Spent[i] < snap.Spent[j] })

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(&snap)
}

// LoadLedgerFromFile restores a ledger from a JSON snapshot, replaying every
// leaf hash through Insert to rebuild the root and frontier. The padding
// policy is not serialized; a deployment running a custom terminator must
// pass the same one here or the restored ledger reverts to
// DuplicateFirstIndex.
func LoadLedgerFromFile(path string, h Hasher, v Verifier, sink LeafSink, term BatchTerminator) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, err
	}

	l, err := NewLedger(Params{Depth: snap.Depth, MaxBatch: snap.MaxBatch, Terminator: term}, h, v, sink)
	if err != nil {
		return nil, err
	}
	for i, s := range snap.LeafHashes {
		var leafHash fr.Element
		if _, err := leafHash.SetString(s); err != nil {
			return nil, fmt.Errorf("leaf hash %d: %w", i, err)
		}
		if _, err := l.tree.Insert(leafHash); err != nil {
			return nil, err
		}
	}
	for _, idx := range snap.Spent {
		if err := l.spent.MarkSpent(idx); err != nil {
			return nil, err
		}
	}
	for _, rec := range snap.Directory {
		l.directory.Append(rec.PublicKey, rec.Label)
	}
	l.balance = snap.Balance
	return l, nil
}
