package rpc

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ecomledger/crypto"
)

// Envelope authenticates a mutating call. It travels as the second entry of
// the params array, after the operation's parameter object.
type Envelope struct {
	Signer    crypto.Handle `json:"signer"`
	Timestamp int64         `json:"timestamp"`
	Signature string        `json:"signature"`
}

var (
	errEnvelopeMissing     = errors.New("signed envelope required")
	errSignerMismatch      = errors.New("signature does not match signer")
	errTimestampOutOfRange = errors.New("envelope timestamp outside accepted window")
)

// canonicalParams strips insignificant whitespace so the digest does not
// depend on how the client formatted the parameter object.
func canonicalParams(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("params are not valid JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// EnvelopeDigest is keccak256(method || compact params JSON || LE64(timestamp)).
func EnvelopeDigest(method string, params json.RawMessage, timestamp int64) ([]byte, error) {
	canonical, err := canonicalParams(params)
	if err != nil {
		return nil, err
	}
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(timestamp))
	return ethcrypto.Keccak256([]byte(method), canonical, ts[:]), nil
}

// SignEnvelope produces the envelope a client attaches to a mutating call.
func SignEnvelope(key *crypto.PrivateKey, method string, params json.RawMessage, timestamp int64) (*Envelope, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key required")
	}
	digest, err := EnvelopeDigest(method, params, timestamp)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &Envelope{Signer: key.Handle(), Timestamp: timestamp, Signature: "0x" + hex.EncodeToString(sig)}, nil
}

// verifyEnvelope checks the signature and the timestamp window and returns
// the authenticated signer.
func verifyEnvelope(method string, params json.RawMessage, env *Envelope, now time.Time, skew time.Duration) (crypto.Handle, error) {
	if env == nil || env.Signer.IsZero() || strings.TrimSpace(env.Signature) == "" {
		return crypto.Handle{}, errEnvelopeMissing
	}
	if skew > 0 {
		drift := now.Sub(time.Unix(env.Timestamp, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > skew {
			return crypto.Handle{}, errTimestampOutOfRange
		}
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil {
		return crypto.Handle{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	digest, err := EnvelopeDigest(method, params, env.Timestamp)
	if err != nil {
		return crypto.Handle{}, err
	}
	recovered, err := crypto.RecoverHandle(digest, sig)
	if err != nil {
		return crypto.Handle{}, err
	}
	if recovered != env.Signer {
		return crypto.Handle{}, errSignerMismatch
	}
	return recovered, nil
}
