package crypto

import (
	"github.com/ethereum/go-ethereum/crypto"
)

var addressDomain = []byte("ecomledger/address")

// DeriveAddress computes the storage address of a record owned by owner from a
// fixed domain tag and a per-record discriminator. The returned verification
// byte is stored with the record so readers can confirm the address was
// derived from the seeds they expect.
func DeriveAddress(domain string, owner Handle, discriminator []byte) (Handle, uint8) {
	var addr Handle
	copy(addr[:], crypto.Keccak256(addressDomain, []byte(domain), owner[:], discriminator))
	return addr, verificationByte(addr)
}

// VerifyAddress reports whether addr and bump match the supplied seeds.
func VerifyAddress(addr Handle, bump uint8, domain string, owner Handle, discriminator []byte) bool {
	derived, expected := DeriveAddress(domain, owner, discriminator)
	return derived == addr && expected == bump
}

func verificationByte(addr Handle) uint8 {
	return crypto.Keccak256(addr[:])[0]
}
