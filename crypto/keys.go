package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// HandlePrefix is the human-readable part used when rendering handles as
// bech32 strings.
const HandlePrefix = "ecom"

// HandleLength is the byte width of actor handles, record addresses and
// custody account identifiers.
const HandleLength = 32

// Handle is a 32-byte public identifier. Actors are identified by the
// keccak256 digest of their public key; records and custody accounts reuse the
// same width so any party can refer to either without a lookup table.
type Handle [HandleLength]byte

// String renders the handle in bech32 form.
func (h Handle) String() string {
	conv, err := bech32.ConvertBits(h[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(HandlePrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex returns the 0x-prefixed hexadecimal form of the handle.
func (h Handle) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Handle) Bytes() []byte {
	out := make([]byte, HandleLength)
	copy(out, h[:])
	return out
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// HandleFromBytes copies exactly 32 bytes into a handle.
func HandleFromBytes(b []byte) (Handle, error) {
	var h Handle
	if len(b) != HandleLength {
		return h, fmt.Errorf("handle must be %d bytes long (got %d)", HandleLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHandle decodes either the bech32 or the 0x-prefixed hex form of a
// handle.
func ParseHandle(raw string) (Handle, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Handle{}, fmt.Errorf("handle required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		decoded, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return Handle{}, fmt.Errorf("invalid hex handle: %w", err)
		}
		return HandleFromBytes(decoded)
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != HandlePrefix {
		return Handle{}, fmt.Errorf("unexpected handle prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Handle{}, fmt.Errorf("error converting bits: %w", err)
	}
	return HandleFromBytes(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Handle returns the actor handle controlled by the key.
func (k *PrivateKey) Handle() Handle {
	return k.PubKey().Handle()
}

// Sign produces a 65-byte recoverable secp256k1 signature over a 32-byte
// digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes (got %d)", len(digest))
	}
	return crypto.Sign(digest, k.PrivateKey)
}

// Handle derives the actor handle from the uncompressed public key.
func (k *PublicKey) Handle() Handle {
	raw := crypto.FromECDSAPub(k.PublicKey)
	var h Handle
	copy(h[:], crypto.Keccak256(raw[1:]))
	return h
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// RecoverHandle returns the handle of the key that produced sig over digest.
func RecoverHandle(digest, sig []byte) (Handle, error) {
	if len(digest) != 32 {
		return Handle{}, fmt.Errorf("digest must be 32 bytes (got %d)", len(digest))
	}
	if len(sig) != crypto.SignatureLength {
		return Handle{}, fmt.Errorf("signature must be %d bytes (got %d)", crypto.SignatureLength, len(sig))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Handle{}, fmt.Errorf("recover signer: %w", err)
	}
	return (&PublicKey{pub}).Handle(), nil
}
