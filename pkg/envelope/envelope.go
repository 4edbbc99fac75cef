// Package envelope implements the signed container every record is
// submitted in: canonical content bytes, the signer's key id, and a
// signature over those bytes. An envelope is immutable once
// constructed; nothing in this package or its callers mutates
// ContentBytes, KeyID, or Signature after New or Deserialize return.
package envelope

import (
	"encoding/json"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/valerr"
)

// Envelope pairs a record's canonical bytes with the signature over
// them and the key id that produced it.
type Envelope struct {
	ContentBytes []byte
	KeyID        hashing.AnyHash
	Signature    signing.Signature
}

// Serialize produces the canonical bytes a record body signs over.
func Serialize(body recordlog.Body) ([]byte, error) {
	return hashing.CanonicalMarshal(body)
}

// New canonicalizes body, signs it with signer, and derives the key id
// under alg.
func New(body recordlog.Body, alg hashing.Alg, signer signing.Signer) (*Envelope, error) {
	content, err := Serialize(body)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(content)
	if err != nil {
		return nil, err
	}
	keyID, err := signer.PublicKey().KeyID(alg)
	if err != nil {
		return nil, err
	}
	return &Envelope{ContentBytes: content, KeyID: keyID, Signature: sig}, nil
}

// Body decodes the envelope's content bytes into a record body,
// rejecting structurally malformed input before the typed decode.
func (e *Envelope) Body() (recordlog.Body, error) {
	var doc any
	if err := json.Unmarshal(e.ContentBytes, &doc); err != nil {
		return recordlog.Body{}, valerr.Malformed("envelope content is not valid JSON")
	}
	if err := compiledBodySchema().Validate(doc); err != nil {
		return recordlog.Body{}, valerr.Malformed("record body failed structural validation: " + err.Error())
	}
	var body recordlog.Body
	if err := json.Unmarshal(e.ContentBytes, &body); err != nil {
		return recordlog.Body{}, valerr.Malformed("record body does not match expected shape")
	}
	return body, nil
}

// KeyResolver looks up the public key registered for a key id under a
// particular log's current validator state; UnknownKey is returned via
// the bool when no such key is known.
type KeyResolver func(keyID hashing.AnyHash) (signing.PublicKey, bool)

// Verify resolves the envelope's signer and checks its signature,
// returning the resolved public key on success.
func Verify(e *Envelope, verifier signing.Verifier, resolve KeyResolver) (signing.PublicKey, error) {
	pub, ok := resolve(e.KeyID)
	if !ok {
		return signing.PublicKey{}, valerr.UnknownKey()
	}
	if !verifier.Verify(pub, e.ContentBytes, e.Signature) {
		return signing.PublicKey{}, valerr.InvalidSignature()
	}
	return pub, nil
}

// Marshal serializes an envelope (content bytes, key id, signature) for
// storage, distinct from Serialize which only produces the signed
// content bytes. Used by the SQL-backed stores to persist envelopes
// across restarts.
func Marshal(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// RecordID derives the content-addressed identifier of a submitted
// record from its envelope: the hash of the canonical content bytes
// together with the signature that authenticates them, so two
// identical bodies signed by different keys yield distinct ids.
func RecordID(e *Envelope, alg hashing.Alg) (hashing.AnyHash, error) {
	buf := make([]byte, 0, len(e.ContentBytes)+len(e.Signature.Bytes)+1)
	buf = append(buf, e.ContentBytes...)
	buf = append(buf, ':')
	buf = append(buf, e.Signature.Bytes...)
	return hashing.Sum(alg, buf)
}
