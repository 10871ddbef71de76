// Package eventlog persists the ordered NewLeaf history.
//
// The log is the only read path into historical deposits: off-chain
// reconstruction replays it once, in emission order, and has no random
// access. Two backends share one interface: an in-memory log for tests and
// single-process runs, and a goleveldb-backed log for durable deployments.
package eventlog

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/lyronctk/treasury-house/internal/treasury"
)

// Iterator walks the log from the first event. Each log session consumes an
// iterator exactly once; Close releases backend resources.
type Iterator interface {
	// Next returns the next leaf in emission order; ok is false once the
	// log is exhausted.
	Next() (leaf treasury.Leaf, ok bool, err error)
	Close() error
}

// Log is an append-only sequence of leaf records.
type Log interface {
	treasury.LeafSink
	// Iter starts a fresh one-pass read from the beginning of the log.
	Iter() (Iterator, error)
	// Len returns the number of appended events.
	Len() (uint64, error)
	Close() error
}

// MemoryLog keeps the history in process memory.
type MemoryLog struct {
	leaves []treasury.Leaf
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{leaves: make([]treasury.Leaf, 0, 64)}
}

func (m *MemoryLog) Append(leaf treasury.Leaf) error {
	m.leaves = append(m.leaves, leaf)
	return nil
}

func (m *MemoryLog) Iter() (Iterator, error) {
	return &memoryIterator{leaves: m.leaves}, nil
}

func (m *MemoryLog) Len() (uint64, error) {
	return uint64(len(m.leaves)), nil
}

func (m *MemoryLog) Close() error { return nil }

type memoryIterator struct {
	leaves []treasury.Leaf
	pos    int
}

func (it *memoryIterator) Next() (treasury.Leaf, bool, error) {
	if it.pos >= len(it.leaves) {
		return treasury.Leaf{}, false, nil
	}
	leaf := it.leaves[it.pos]
	it.pos++
	return leaf, true, nil
}

func (it *memoryIterator) Close() error { return nil }

// Keys: 'l' + 8-byte big-endian index per leaf, so lexicographic iteration
// order is emission order; "next" holds the event count.
var (
	leafPrefix = []byte("l")
	nextKey    = []byte("next")
)

// LevelDBLog stores the history in a goleveldb database.
type LevelDBLog struct {
	db   *leveldb.DB
	next uint64
}

// OpenLevelDB opens (or creates) a log at the given path.
func OpenLevelDB(path string) (*LevelDBLog, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	l := &LevelDBLog{db: db}
	raw, err := db.Get(nextKey, nil)
	switch err {
	case nil:
		l.next = binary.BigEndian.Uint64(raw)
	case leveldb.ErrNotFound:
		// Fresh database.
	default:
		db.Close()
		return nil, fmt.Errorf("reading event log head: %w", err)
	}
	return l, nil
}

func leafKey(index uint64) []byte {
	key := make([]byte, 9)
	key[0] = leafPrefix[0]
	binary.BigEndian.PutUint64(key[1:], index)
	return key
}

func (l *LevelDBLog) Append(leaf treasury.Leaf) error {
	var head [8]byte
	binary.BigEndian.PutUint64(head[:], l.next+1)

	batch := new(leveldb.Batch)
	batch.Put(leafKey(l.next), leaf.Serialize())
	batch.Put(nextKey, head[:])
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("appending event %d: %w", l.next, err)
	}
	l.next++
	return nil
}

func (l *LevelDBLog) Iter() (Iterator, error) {
	return &levelDBIterator{iter: l.db.NewIterator(util.BytesPrefix(leafPrefix), nil)}, nil
}

func (l *LevelDBLog) Len() (uint64, error) {
	return l.next, nil
}

func (l *LevelDBLog) Close() error {
	return l.db.Close()
}

type levelDBIterator struct {
	iter iterator.Iterator
}

func (it *levelDBIterator) Next() (treasury.Leaf, bool, error) {
	if !it.iter.Next() {
		if err := it.iter.Error(); err != nil {
			return treasury.Leaf{}, false, err
		}
		return treasury.Leaf{}, false, nil
	}
	leaf, err := treasury.DeserializeLeaf(it.iter.Value())
	if err != nil {
		return treasury.Leaf{}, false, fmt.Errorf("decoding event: %w", err)
	}
	return leaf, true, nil
}

func (it *levelDBIterator) Close() error {
	it.iter.Release()
	return it.iter.Error()
}
