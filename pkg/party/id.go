// Package party identifies game participants.
//
// Participants are known by their wallet address. Address derivation is the
// only place public keys appear; everything downstream works with the ID
// alone. Authentication of a caller against its claimed address happens
// upstream of this module.
package party

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// ID is a participant address: "0x" followed by 40 lowercase hex digits.
type ID string

// FromPubKey derives the address of a secp256k1 public key: the last 20
// bytes of the keccak-256 digest of the uncompressed point without its
// format prefix.
func FromPubKey(pk *secp256k1.PublicKey) ID {
	h := sha3.NewLegacyKeccak256()
	raw := pk.SerializeUncompressed()
	_, _ = h.Write(raw[1:])
	sum := h.Sum(nil)
	return ID("0x" + hex.EncodeToString(sum[12:]))
}

// Valid reports whether id is a well formed address.
func (id ID) Valid() bool {
	if len(id) != 42 || !strings.HasPrefix(string(id), "0x") {
		return false
	}
	for _, c := range id[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (id ID) String() string { return string(id) }

// Short returns a truncated address for log fields.
func (id ID) Short() string {
	if len(id) < 10 {
		return string(id)
	}
	return string(id[:10])
}
