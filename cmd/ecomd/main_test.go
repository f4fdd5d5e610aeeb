package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ecomledger/core"
	"ecomledger/crypto"
)

func TestOpenDatabase(t *testing.T) {
	db, err := openDatabase("memory", "")
	require.NoError(t, err)
	db.Close()

	db, err = openDatabase("leveldb", filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	db.Close()

	_, err = openDatabase("badger", "")
	require.Error(t, err)
}

func TestApplyGenesisFromFile(t *testing.T) {
	var account crypto.Handle
	account[0] = 0x42
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	contents := "allocations:\n  - account: " + account.String() + "\n    amount: 2500\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	db, err := openDatabase("memory", "")
	require.NoError(t, err)
	node, err := core.NewNode(db)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := context.Background()
	require.NoError(t, applyGenesis(ctx, node, path, logger))
	require.NoError(t, applyGenesis(ctx, node, path, logger), "restart must not mint twice")

	acc, err := node.Balance(account)
	require.NoError(t, err)
	require.Equal(t, uint64(2500), acc.Balance.Uint64())
}

func TestLookupSecret(t *testing.T) {
	t.Setenv("ECOM_TEST_SECRET", "  s3cret ")
	require.Equal(t, "s3cret", lookupSecret("ECOM_TEST_SECRET"))
	require.Empty(t, lookupSecret(""))
}
