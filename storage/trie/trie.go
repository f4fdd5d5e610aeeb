package trie

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
)

// EmptyRoot is the root of a trie with no entries.
var EmptyRoot = gethtypes.EmptyRootHash

// Entry is one key/value pair of a committed write set.
type Entry struct {
	Key   []byte
	Value []byte
}

// Root returns the Merkle-Patricia root over entries. Keys must be unique and
// values non-empty; the input order does not matter.
func Root(entries []Entry) (common.Hash, error) {
	if len(entries) == 0 {
		return EmptyRoot, nil
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })

	st := gethtrie.NewStackTrie(nil)
	for i, entry := range sorted {
		if i > 0 && bytes.Equal(sorted[i-1].Key, entry.Key) {
			return common.Hash{}, fmt.Errorf("trie: duplicate key %x", entry.Key)
		}
		if len(entry.Value) == 0 {
			return common.Hash{}, fmt.Errorf("trie: empty value for key %x", entry.Key)
		}
		if err := st.Update(entry.Key, entry.Value); err != nil {
			return common.Hash{}, err
		}
	}
	return st.Hash(), nil
}

// Chain folds a write-set root into the running ledger commitment.
func Chain(prev, batch common.Hash) common.Hash {
	return crypto.Keccak256Hash(prev.Bytes(), batch.Bytes())
}
