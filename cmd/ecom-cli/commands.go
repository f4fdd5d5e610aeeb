package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"ecomledger/cmd/internal/passphrase"
	"ecomledger/crypto"
	"ecomledger/native/commerce"
)

// passphraseSource is replaced in tests.
var passphraseSource = func(confirm bool) func() (string, error) {
	src := passphrase.NewSource(keyPassEnv, "wallet keystore")
	if confirm {
		src = src.WithConfirmation()
	}
	return src.Get
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	pass, err := passphraseSource(true)()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error writing keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Keystore written to %s\nHandle: %s\n", *out, key.Handle())
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--key is required")
	}
	pass, err := passphraseSource(false)()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func runWhoami(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("whoami", stderr)
	keyFile := fs.String("key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	handle := key.Handle()
	fmt.Fprintf(stdout, "%s\n%s\n", handle, handle.Hex())
	return 0
}

func runHandle(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: ecom-cli handle HANDLE")
		return 1
	}
	handle, err := crypto.ParseHandle(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s\n%s\n", handle, handle.Hex())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage: ecom-cli address product|payment|cart-list|order OWNER [NAME]")
		return 1
	}
	owner, err := crypto.ParseHandle(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var (
		addr crypto.Handle
		bump uint8
	)
	switch args[0] {
	case "product":
		if len(args) != 3 {
			fmt.Fprintln(stderr, "Error: product address needs the product name")
			return 1
		}
		addr, bump = commerce.ProductAddress(owner, args[2])
	case "payment":
		addr, bump = commerce.PaymentAddress(owner)
	case "cart-list":
		addr, bump = commerce.CartListAddress(owner)
	case "order":
		addr, bump = commerce.OrderAddress(owner)
	default:
		fmt.Fprintf(stderr, "Unknown record kind: %s\n", args[0])
		return 1
	}
	fmt.Fprintf(stdout, "%s (bump %d)\n", addr, bump)
	return 0
}

func parseParams(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("params must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

func runQuery(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: ecom-cli query METHOD PARAMS_JSON")
		return 1
	}
	params, err := parseParams(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, rpcErr, err := rpcCall(args[0], []json.RawMessage{params})
	return printResult(stdout, stderr, result, rpcErr, err)
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("submit", stderr)
	keyFile := fs.String("key", "", "keystore file used to sign")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) != 2 {
		fmt.Fprintln(stderr, "Usage: ecom-cli submit --key FILE METHOD PARAMS_JSON")
		return 1
	}
	params, err := parseParams(rest[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	signed, err := signedParams(key, rest[0], params)
	if err != nil {
		fmt.Fprintf(stderr, "Error signing request: %v\n", err)
		return 1
	}
	result, rpcErr, err := rpcCall(rest[0], signed)
	return printResult(stdout, stderr, result, rpcErr, err)
}
