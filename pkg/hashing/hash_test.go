package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnyHashRoundTrip(t *testing.T) {
	h, err := Sum(Sha256, []byte("hello"))
	require.NoError(t, err)

	s := h.String()
	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.True(t, h.Equal(parsed))
}

func TestAnyHashEqualityRequiresMatchingAlg(t *testing.T) {
	a := AnyHash{Alg: Sha256, Bytes: []byte{1, 2, 3}}
	b := AnyHash{Alg: "blake3", Bytes: []byte{1, 2, 3}}
	assert.False(t, a.Equal(b))
}

func TestParseRejectsUnknownAlgorithm(t *testing.T) {
	_, err := Parse("md5:abcd")
	assert.Error(t, err)
}

func TestLogIDsAreDeterministicAndDistinct(t *testing.T) {
	a1, err := PackageLogID(Sha256, "acme:widget")
	require.NoError(t, err)
	a2, err := PackageLogID(Sha256, "acme:widget")
	require.NoError(t, err)
	assert.True(t, a1.Equal(a2))

	b, err := PackageLogID(Sha256, "acme:other")
	require.NoError(t, err)
	assert.False(t, a1.Equal(b))

	op, err := OperatorLogID(Sha256)
	require.NoError(t, err)
	assert.False(t, a1.Equal(op))
}

func TestCanonicalMarshalSortsKeys(t *testing.T) {
	type payload struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	out, err := CanonicalMarshal(payload{B: 2, A: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}
