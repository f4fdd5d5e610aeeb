package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcURLEnv   = "ECOM_RPC_URL"
	rpcTokenEnv = "ECOM_RPC_TOKEN"
	keyPassEnv  = "ECOM_KEY_PASS"
)

var rpcEndpoint = defaultRPCEndpoint()

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "whoami":
		return runWhoami(args[1:], stdout, stderr)
	case "handle":
		return runHandle(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "query":
		return runQuery(args[1:], stdout, stderr)
	case "submit":
		return runSubmit(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: ecom-cli [--rpc URL] <command> [arguments]

Commands:
  keygen  --out FILE                      create an encrypted keystore
  whoami  --key FILE                      print the handle controlled by a keystore
  handle  HANDLE                          show the bech32 and hex forms of a handle
  address product|payment|cart-list|order OWNER [NAME]
                                          derive a record address
  query   METHOD PARAMS_JSON              call a read-only method
  submit  --key FILE METHOD PARAMS_JSON   sign and submit a mutating method

Environment:
  ECOM_RPC_URL    RPC endpoint (default http://localhost:8080)
  ECOM_RPC_TOKEN  bearer token when the node enforces JWT auth
  ECOM_KEY_PASS   keystore passphrase; prompted when unset`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}
