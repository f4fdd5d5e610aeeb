package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"ecomledger/crypto"
	"ecomledger/rpc"
)

var (
	cliNow  = time.Now
	rpcCall = callRPC
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func callRPC(method string, params []json.RawMessage) (json.RawMessage, *rpc.RPCError, error) {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(rpcEndpoint, "/")+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(os.Getenv(rpcTokenEnv)); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return decoded.Result, decoded.Error, nil
}

// signedParams attaches an envelope to the parameter object.
func signedParams(key *crypto.PrivateKey, method string, params json.RawMessage) ([]json.RawMessage, error) {
	env, err := rpc.SignEnvelope(key, method, params, cliNow().Unix())
	if err != nil {
		return nil, err
	}
	rawEnv, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return []json.RawMessage{params, rawEnv}, nil
}

func printResult(stdout, stderr io.Writer, result json.RawMessage, rpcErr *rpc.RPCError, err error) int {
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		if rpcErr.Data != nil {
			fmt.Fprintf(stderr, "Error %d %s: %v\n", rpcErr.Code, rpcErr.Message, rpcErr.Data)
		} else {
			fmt.Fprintf(stderr, "Error %d %s\n", rpcErr.Code, rpcErr.Message)
		}
		return 1
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(result))
		return 0
	}
	fmt.Fprintln(stdout, pretty.String())
	return 0
}
