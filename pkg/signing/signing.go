// Package signing provides the cryptographic verifier and signer
// contracts the validators use to authenticate envelopes. The registry
// core only ever consumes these interfaces; the concrete Ed25519
// implementation here is the reference used by tests and the reference
// signing-key wallet of the publish client.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// PublicKey is an opaque public key together with the algorithm it was
// generated under. KeyID derives deterministically from Bytes.
type PublicKey struct {
	Alg   string
	Bytes []byte
}

// KeyID computes the hash-tagged identifier for this key.
func (k PublicKey) KeyID(alg hashing.Alg) (hashing.AnyHash, error) {
	return hashing.KeyID(alg, k.Bytes)
}

// Signature is an algorithm-tagged signature. It has no custom JSON
// encoding: encoding/json renders it as an object with an Alg string
// and base64 Bytes, not as an "<alg>:<hex>" string.
type Signature struct {
	Alg   string
	Bytes []byte
}

const AlgEd25519 = "ed25519"

// Verifier authenticates a signature over a message against a known
// public key. The registry's envelope layer is the only caller.
type Verifier interface {
	Verify(pub PublicKey, message []byte, sig Signature) bool
}

// Signer produces signatures for a single identity.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) (Signature, error)
}

// Ed25519Signer is the reference Signer implementation; Ed25519Verifier
// is the matching Verifier.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing: key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// NewEd25519SignerFromSeed derives a signer from a fixed 32-byte seed,
// used by tests that need deterministic keys.
func NewEd25519SignerFromSeed(seed []byte) *Ed25519Signer {
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

func (s *Ed25519Signer) PublicKey() PublicKey {
	return PublicKey{Alg: AlgEd25519, Bytes: append([]byte(nil), s.pub...)}
}

func (s *Ed25519Signer) Sign(message []byte) (Signature, error) {
	return Signature{Alg: AlgEd25519, Bytes: ed25519.Sign(s.priv, message)}, nil
}

// Ed25519Verifier verifies Ed25519 signatures statelessly.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(pub PublicKey, message []byte, sig Signature) bool {
	if pub.Alg != AlgEd25519 || sig.Alg != AlgEd25519 {
		return false
	}
	if len(pub.Bytes) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub.Bytes), message, sig.Bytes)
}
