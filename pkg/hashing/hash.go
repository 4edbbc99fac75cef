// Package hashing provides content-addressed identifiers for the
// registry: tagged hashes, canonical encoding, and the derivations for
// LogId, RecordId and KeyId used throughout the validators and store.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// Alg identifies a supported hash algorithm. Every AnyHash is tagged
// with the algorithm that produced it so mismatched algorithms never
// compare equal even if the bytes happen to collide.
type Alg string

const (
	// Sha256 is the required baseline algorithm.
	Sha256 Alg = "sha256"
)

func (a Alg) valid() bool {
	return a == Sha256
}

// Valid reports whether a is a supported hash algorithm.
func (a Alg) Valid() bool {
	return a.valid()
}

// AnyHash is an algorithm-tagged digest. Its textual form is
// "<alg>:<lowercase-hex>".
type AnyHash struct {
	Alg   Alg
	Bytes []byte
}

// Equal reports whether two hashes have the same algorithm and bytes.
func (h AnyHash) Equal(o AnyHash) bool {
	if h.Alg != o.Alg || len(h.Bytes) != len(o.Bytes) {
		return false
	}
	for i := range h.Bytes {
		if h.Bytes[i] != o.Bytes[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether h carries no algorithm or bytes.
func (h AnyHash) IsZero() bool {
	return h.Alg == "" && len(h.Bytes) == 0
}

// String renders the textual form "<alg>:<hex>".
func (h AnyHash) String() string {
	if h.IsZero() {
		return ""
	}
	return string(h.Alg) + ":" + hex.EncodeToString(h.Bytes)
}

// MarshalJSON renders the textual form for wire encoding.
func (h AnyHash) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", h.String())), nil
}

// UnmarshalJSON parses the textual form.
func (h *AnyHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := jsonUnquote(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = AnyHash{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// jsonUnquote avoids importing encoding/json solely for a string literal.
func jsonUnquote(data []byte, out *string) error {
	var s string
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		s = string(data[1 : len(data)-1])
	} else if string(data) == "null" {
		*out = ""
		return nil
	} else {
		return fmt.Errorf("hashing: malformed hash literal %q", data)
	}
	*out = s
	return nil
}

// Parse parses the textual form "<alg>:<hex>" into an AnyHash.
func Parse(s string) (AnyHash, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return AnyHash{}, fmt.Errorf("hashing: invalid hash %q: missing algorithm tag", s)
	}
	alg := Alg(parts[0])
	if !alg.valid() {
		return AnyHash{}, fmt.Errorf("hashing: unsupported algorithm %q", parts[0])
	}
	b, err := hex.DecodeString(parts[1])
	if err != nil {
		return AnyHash{}, fmt.Errorf("hashing: invalid hash %q: %w", s, err)
	}
	return AnyHash{Alg: alg, Bytes: b}, nil
}

// Sum hashes data under alg and returns the tagged digest.
func Sum(alg Alg, data []byte) (AnyHash, error) {
	switch alg {
	case Sha256:
		sum := sha256.Sum256(data)
		return AnyHash{Alg: alg, Bytes: sum[:]}, nil
	default:
		return AnyHash{}, fmt.Errorf("hashing: unsupported algorithm %q", alg)
	}
}

// LogKind distinguishes the two log vocabularies.
type LogKind string

const (
	LogKindOperator LogKind = "operator"
	LogKindPackage  LogKind = "package"
)

// LogID derives the LogId: hash(canonical-kind-prefix || canonical-name).
// Logs are addressed exclusively by this value; the operator log has no
// name of its own and uses a fixed sentinel.
func LogID(alg Alg, kind LogKind, name string) (AnyHash, error) {
	prefix := "warg:log:" + string(kind) + ":"
	return Sum(alg, []byte(prefix+name))
}

const operatorSentinel = "<operator>"

// OperatorLogID derives the singleton operator log's identifier.
func OperatorLogID(alg Alg) (AnyHash, error) {
	return LogID(alg, LogKindOperator, operatorSentinel)
}

// PackageLogID derives a package log's identifier from its name.
func PackageLogID(alg Alg, name string) (AnyHash, error) {
	return LogID(alg, LogKindPackage, name)
}

// KeyID derives the KeyId: hash of a public key's canonical encoding.
func KeyID(alg Alg, pubKeyBytes []byte) (AnyHash, error) {
	return Sum(alg, pubKeyBytes)
}

// CanonicalMarshal serializes v as RFC 8785 (JCS) canonical JSON. This
// is the single canonicalization routine used for every hash and
// signature in the system: envelope content bytes, record ids, and key
// ids are only stable across hosts and Go versions because they all
// flow through this one function.
func CanonicalMarshal(v any) ([]byte, error) {
	raw, err := jcsMarshal(v)
	if err != nil {
		return nil, fmt.Errorf("hashing: canonicalization failed: %w", err)
	}
	return raw, nil
}

// jcsMarshal is split out so it's the only place that reaches encoding/json
// (through marshalJSON in json.go), keeping CanonicalMarshal's signature
// independent of the transform used.
func jcsMarshal(v any) ([]byte, error) {
	raw, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
