package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ecomledger/storage"
	"ecomledger/storage/trie"
)

var (
	// ErrWriteConflict is returned by Commit when another transaction changed
	// a key this transaction read or wrote after it was first touched. The
	// caller may retry the whole operation.
	ErrWriteConflict = errors.New("state: write conflict")
	// ErrTxnClosed is returned when a committed or discarded transaction is
	// used again.
	ErrTxnClosed = errors.New("state: transaction closed")
)

// Manager serialises commits against a storage.Database. Reads and staged
// writes happen inside a Txn without holding the manager lock; only Commit
// takes it.
type Manager struct {
	db storage.Database

	mu       sync.Mutex
	versions map[string]uint64
	seq      uint64
	head     Head
}

// Head is the ledger commitment after the latest commit. Root chains the
// Merkle root of every committed write set, so two ledgers with the same
// history report the same head.
type Head struct {
	Height uint64
	Root   common.Hash
}

var headKey = []byte("state/head")

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, versions: make(map[string]uint64)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) version(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[key]
}

// LoadHead restores the commitment persisted by the last commit.
func (m *Manager) LoadHead() error {
	var stored Head
	ok, err := m.KVGet(headKey, &stored)
	if err != nil {
		return fmt.Errorf("state: load head: %w", err)
	}
	if !ok {
		stored = Head{Root: trie.EmptyRoot}
	}
	m.mu.Lock()
	m.head = stored
	m.mu.Unlock()
	return nil
}

// Head returns the current ledger commitment.
func (m *Manager) Head() Head {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.head.Height == 0 && m.head.Root == (common.Hash{}) {
		return Head{Root: trie.EmptyRoot}
	}
	return m.head
}

// Begin opens a transaction. Every Txn must end in Commit or Discard.
func (m *Manager) Begin() *Txn {
	return &Txn{
		mgr:     m,
		touched: make(map[string]uint64),
		writes:  make(map[string][]byte),
	}
}

// KVPut stores the provided value under the supplied key using RLP encoding,
// bypassing transactions. Used for metadata such as the schema version.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Txn stages writes in memory and applies them as one storage batch on
// Commit. Reads observe the transaction's own staged writes.
type Txn struct {
	mgr     *Manager
	touched map[string]uint64
	writes  map[string][]byte
	order   []string
	closed  bool
}

func (t *Txn) touch(key string) {
	if _, ok := t.touched[key]; ok {
		return
	}
	t.touched[key] = t.mgr.version(key)
}

func (t *Txn) get(rawKey []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxnClosed
	}
	key := string(kvKey(rawKey))
	t.touch(key)
	if staged, ok := t.writes[key]; ok {
		return staged, true, nil
	}
	data, err := t.mgr.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (t *Txn) put(rawKey, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	key := string(kvKey(rawKey))
	t.touch(key)
	if _, staged := t.writes[key]; !staged {
		t.order = append(t.order, key)
	}
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

// Pending reports the number of staged writes.
func (t *Txn) Pending() int { return len(t.order) }

// MetaGet reads an RLP metadata value through the transaction, so a
// concurrent writer of the same key makes this transaction's commit conflict.
// out may be nil to test presence only.
func (t *Txn) MetaGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := t.get(key)
	if err != nil || !ok || out == nil {
		return ok, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode meta: %w", err)
	}
	return true, nil
}

// MetaPut stages an RLP metadata value in the transaction's batch. The value
// is readable through Manager.KVGet once committed.
func (t *Txn) MetaPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode meta: %w", err)
	}
	return t.put(key, encoded)
}

// Commit applies the staged writes atomically. It fails with
// ErrWriteConflict, writing nothing, when any touched key was committed by
// another transaction in the meantime.
func (t *Txn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	if len(t.order) == 0 {
		return nil
	}
	m := t.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, seen := range t.touched {
		if m.versions[key] != seen {
			return ErrWriteConflict
		}
	}
	batch := storage.NewBatch()
	entries := make([]trie.Entry, 0, len(t.order))
	for _, key := range t.order {
		batch.Put([]byte(key), t.writes[key])
		entries = append(entries, trie.Entry{Key: []byte(key), Value: t.writes[key]})
	}
	writeRoot, err := trie.Root(entries)
	if err != nil {
		return fmt.Errorf("state: commit root: %w", err)
	}
	prev := m.head
	if prev.Height == 0 && prev.Root == (common.Hash{}) {
		prev.Root = trie.EmptyRoot
	}
	next := Head{Height: prev.Height + 1, Root: trie.Chain(prev.Root, writeRoot)}
	encodedHead, err := rlp.EncodeToBytes(&next)
	if err != nil {
		return fmt.Errorf("state: encode head: %w", err)
	}
	batch.Put(kvKey(headKey), encodedHead)
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.head = next
	m.seq++
	for _, key := range t.order {
		m.versions[key] = m.seq
	}
	return nil
}

// Discard drops the staged writes. Calling it after Commit is a no-op.
func (t *Txn) Discard() {
	t.closed = true
	t.writes = nil
	t.order = nil
}
