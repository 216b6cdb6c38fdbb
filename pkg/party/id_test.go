package party

import (
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPubKey(t *testing.T) {
	k1, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	k2, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	a := FromPubKey(k1.PubKey())
	b := FromPubKey(k2.PubKey())

	assert.True(t, a.Valid(), "derived address should be well formed: %s", a)
	assert.True(t, b.Valid())
	assert.NotEqual(t, a, b, "distinct keys must yield distinct addresses")
	assert.Equal(t, a, FromPubKey(k1.PubKey()), "derivation must be deterministic")
}

func TestIDValid(t *testing.T) {
	tests := []struct {
		id ID
		ok bool
	}{
		{ID("0x" + strings.Repeat("a1", 20)), true},
		{ID("0x" + strings.Repeat("A1", 20)), false},
		{ID("0x" + strings.Repeat("z1", 20)), false},
		{ID("ab" + strings.Repeat("a1", 20)), false},
		{"0x1234", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.id.Valid(), "Valid(%q)", tt.id)
	}
}

func TestIDShort(t *testing.T) {
	id := ID("0x" + strings.Repeat("ab", 20))
	assert.Equal(t, "0xabababab", id.Short())
	assert.Equal(t, "0x12", ID("0x12").Short())
}
