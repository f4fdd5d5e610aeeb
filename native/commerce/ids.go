package commerce

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"

	"ecomledger/crypto"
)

// IDLength is the width of record identifiers.
const IDLength = 16

const trackingDomain = "ecomledger order tracking v1"

// ID is an opaque 16-byte record identifier.
type ID [IDLength]byte

func (id ID) String() string { return hex.EncodeToString(id[:]) }

func (id ID) IsZero() bool { return id == ID{} }

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID decodes a 32-character hex identifier, with or without 0x.
func ParseID(raw string) (ID, error) {
	var id ID
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, wrap(ErrInvalidIdentifier, "decode %q: %v", raw, err)
	}
	if len(decoded) != IDLength {
		return id, wrap(ErrInvalidIdentifier, "identifier must be %d bytes (got %d)", IDLength, len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

func idInput(actor crypto.Handle, ts int64) []byte {
	buf := make([]byte, crypto.HandleLength+8)
	copy(buf, actor[:])
	binary.LittleEndian.PutUint64(buf[crypto.HandleLength:], uint64(ts))
	return buf
}

func truncate(digest []byte) (ID, error) {
	var id ID
	if len(digest) < IDLength {
		return id, fmt.Errorf("%w: digest length %d", ErrInvalidIdentifier, len(digest))
	}
	copy(id[:], digest[:IDLength])
	return id, nil
}

// GenerateID derives a record identifier from the actor handle and the
// operation timestamp: keccak256(handle || le64(ts)) truncated to 16 bytes.
// Identical inputs always produce identical identifiers.
func GenerateID(actor crypto.Handle, ts int64) (ID, error) {
	return truncate(ethcrypto.Keccak256(idInput(actor, ts)))
}

// GenerateTrackingID derives a shipment tracking identifier from the same
// inputs as GenerateID but in a separate blake3 derivation domain, so an
// order's tracking ID never repeats its order ID bytes.
func GenerateTrackingID(actor crypto.Handle, ts int64) (ID, error) {
	out := make([]byte, 32)
	blake3.DeriveKey(out, trackingDomain, idInput(actor, ts))
	return truncate(out)
}
