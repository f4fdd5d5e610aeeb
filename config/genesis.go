package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ecomledger/crypto"
)

// GenesisAllocation credits a custody account when a fresh ledger starts.
type GenesisAllocation struct {
	Account crypto.Handle
	Amount  uint64
}

type genesisFile struct {
	Allocations []struct {
		Account string `yaml:"account"`
		Amount  uint64 `yaml:"amount"`
	} `yaml:"allocations"`
}

// LoadGenesis reads YAML allocations. An empty path yields no allocations.
func LoadGenesis(path string) ([]GenesisAllocation, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return ParseGenesis(raw)
}

func ParseGenesis(raw []byte) ([]GenesisAllocation, error) {
	var doc genesisFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("genesis: decode: %w", err)
	}
	seen := make(map[crypto.Handle]struct{}, len(doc.Allocations))
	out := make([]GenesisAllocation, 0, len(doc.Allocations))
	for i, entry := range doc.Allocations {
		account, err := crypto.ParseHandle(entry.Account)
		if err != nil {
			return nil, fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		if entry.Amount == 0 {
			return nil, fmt.Errorf("genesis: allocation %d for %s has zero amount", i, account)
		}
		if _, dup := seen[account]; dup {
			return nil, fmt.Errorf("genesis: duplicate allocation for %s", account)
		}
		seen[account] = struct{}{}
		out = append(out, GenesisAllocation{Account: account, Amount: entry.Amount})
	}
	return out, nil
}
