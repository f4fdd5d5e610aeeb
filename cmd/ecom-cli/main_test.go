package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ecomledger/core"
	"ecomledger/crypto"
	"ecomledger/native/commerce"
	"ecomledger/rpc"
	"ecomledger/storage"
)

func stubPassphrase(t *testing.T, value string) {
	t.Helper()
	original := passphraseSource
	passphraseSource = func(bool) func() (string, error) {
		return func() (string, error) { return value, nil }
	}
	t.Cleanup(func() { passphraseSource = original })
}

func TestKeygenAndWhoami(t *testing.T) {
	stubPassphrase(t, "test-pass")
	path := filepath.Join(t.TempDir(), "wallet.json")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"keygen", "--out", path}, &stdout, &stderr), stderr.String())
	require.Contains(t, stdout.String(), "Handle: ecom1")

	stdout.Reset()
	require.Equal(t, 0, run([]string{"whoami", "--key", path}, &stdout, &stderr), stderr.String())
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	handle, err := crypto.ParseHandle(lines[0])
	require.NoError(t, err)
	require.Equal(t, handle.Hex(), lines[1])
}

func TestHandleAndAddressCommands(t *testing.T) {
	var owner crypto.Handle
	owner[31] = 9

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"handle", owner.Hex()}, &stdout, &stderr))
	require.Contains(t, stdout.String(), owner.String())

	stdout.Reset()
	require.Equal(t, 0, run([]string{"address", "product", owner.String(), "Widget"}, &stdout, &stderr))
	want, _ := commerce.ProductAddress(owner, "Widget")
	require.Contains(t, stdout.String(), want.String())

	require.Equal(t, 1, run([]string{"address", "product", owner.String()}, &stdout, &stderr))
	require.Equal(t, 1, run([]string{"address", "shipment", owner.String()}, &stdout, &stderr))
}

func TestGlobalRPCFlag(t *testing.T) {
	original := rpcEndpoint
	t.Cleanup(func() { rpcEndpoint = original })
	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:9000", "query", "m", "{}"})
	require.NoError(t, err)
	require.Equal(t, []string{"query", "m", "{}"}, rest)
	require.Equal(t, "http://node:9000", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}

func TestSubmitSignsAgainstNode(t *testing.T) {
	stubPassphrase(t, "test-pass")
	node, err := core.NewNode(storage.NewMemDB())
	require.NoError(t, err)
	srv := httptest.NewServer(rpc.NewServer(node, rpc.Config{}, nil).Handler())
	t.Cleanup(srv.Close)
	original := rpcEndpoint
	rpcEndpoint = srv.URL
	t.Cleanup(func() { rpcEndpoint = original })

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "seller.json")
	require.NoError(t, crypto.SaveToKeystore(path, key, "test-pass"))

	var stdout, stderr bytes.Buffer
	code := run([]string{"submit", "--key", path, "commerce_createProduct", `{"name":"Widget","price":500}`}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	var product struct {
		Address string `json:"address"`
		Seller  string `json:"seller"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &product))
	require.Equal(t, key.Handle().String(), product.Seller)

	refs, err := node.ListProducts(key.Handle())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, product.Address, refs[0].String())

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"query", "commerce_getProduct", `{"address":"` + key.Handle().String() + `"}`}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "AccountNotInitialized")
}
