package signing

import (
	"fmt"
	"sync"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// KeyRing is a small in-memory signing-key wallet keyed by KeyId. It
// stands in for an external signing-key wallet: the core and
// validators never see it, but the publish client and tests need
// somewhere to hold keys across multiple operations against the same
// identity.
type KeyRing struct {
	mu      sync.RWMutex
	alg     hashing.Alg
	signers map[string]Signer // keyID.String() -> Signer
}

// NewKeyRing creates an empty keyring hashed under alg.
func NewKeyRing(alg hashing.Alg) *KeyRing {
	return &KeyRing{alg: alg, signers: make(map[string]Signer)}
}

// Add registers a signer, returning its derived KeyId.
func (k *KeyRing) Add(s Signer) (hashing.AnyHash, error) {
	id, err := s.PublicKey().KeyID(k.alg)
	if err != nil {
		return hashing.AnyHash{}, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signers[id.String()] = s
	return id, nil
}

// Get returns the signer registered for keyID, if any.
func (k *KeyRing) Get(keyID hashing.AnyHash) (Signer, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[keyID.String()]
	return s, ok
}

// MustGet panics if keyID isn't registered; for use in tests only.
func (k *KeyRing) MustGet(keyID hashing.AnyHash) Signer {
	s, ok := k.Get(keyID)
	if !ok {
		panic(fmt.Sprintf("signing: no key registered for %s", keyID))
	}
	return s
}
