package operator

import (
	"time"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/valerr"
)

type keyState struct {
	key         signing.PublicKey
	permissions map[Permission]bool
}

// state is the validator's full mutable view of an operator log. It is
// deep-copied on Snapshot so Rollback can restore it verbatim.
type state struct {
	initialized bool
	algorithm   hashing.Alg
	headID      hashing.AnyHash
	headTime    time.Time
	keys        map[string]keyState
}

func newState() *state {
	return &state{keys: make(map[string]keyState)}
}

func (s *state) clone() *state {
	out := &state{
		initialized: s.initialized,
		algorithm:   s.algorithm,
		headID:      s.headID,
		headTime:    s.headTime,
		keys:        make(map[string]keyState, len(s.keys)),
	}
	for id, ks := range s.keys {
		perms := make(map[Permission]bool, len(ks.permissions))
		for p, v := range ks.permissions {
			perms[p] = v
		}
		out.keys[id] = keyState{key: ks.key, permissions: perms}
	}
	return out
}

func (s *state) hasPermission(keyID hashing.AnyHash, perm Permission) bool {
	ks, ok := s.keys[keyID.String()]
	return ok && ks.permissions[perm]
}

// Snapshot is an opaque, restorable copy of validator state, supporting
// transactional validate/snapshot/rollback.
type Snapshot struct {
	s *state
}

// Validator enforces the operator log invariants: singleton genesis,
// uniform hash algorithm, hash-chain continuity, monotonic timestamps,
// and signer authorization.
type Validator struct {
	verifier signing.Verifier
	state    *state
}

// NewValidator creates an empty operator validator; the first record
// it accepts must be a genesis record.
func NewValidator(verifier signing.Verifier) *Validator {
	return &Validator{verifier: verifier, state: newState()}
}

// Snapshot captures the current state for later rollback.
func (v *Validator) Snapshot() Snapshot {
	return Snapshot{s: v.state.clone()}
}

// Rollback restores a previously captured snapshot, discarding any
// mutation since it was taken.
func (v *Validator) Rollback(snap Snapshot) {
	v.state = snap.s
}

// HeadID returns the record id this log currently points at; the zero
// value if the log has not yet been initialized.
func (v *Validator) HeadID() hashing.AnyHash {
	return v.state.headID
}

// Validate checks env against the current state and, on success,
// commits the resulting mutation. It never partially mutates state: on
// any error the validator is left exactly as it was before the call.
func (v *Validator) Validate(env *envelope.Envelope) error {
	body, err := env.Body()
	if err != nil {
		return err
	}
	if body.Kind != recordlog.KindOperator {
		return valerr.ProtocolViolation("envelope submitted to the operator log is not an operator record")
	}

	if v.state.initialized {
		if body.Prev == nil || !body.Prev.Equal(v.state.headID) {
			return valerr.RecordHashDoesNotMatch()
		}
		if body.Timestamp.Before(v.state.headTime) {
			return valerr.TimestampRegression()
		}
	} else if body.Prev != nil {
		return valerr.ProtocolViolation("the log's first record must not reference a prev")
	}

	entries, err := Decode(body.Entries)
	if err != nil {
		return err
	}

	var genesis Init
	isGenesis := !v.state.initialized
	if isGenesis {
		if len(entries) == 0 {
			return valerr.GenesisMissing()
		}
		first, ok := entries[0].(Init)
		if !ok {
			return valerr.GenesisMissing()
		}
		genesis = first
		if !genesis.HashAlg.Valid() {
			return valerr.Malformed("unknown hash algorithm in init entry")
		}
	}

	alg := v.state.algorithm
	if isGenesis {
		alg = genesis.HashAlg
	}

	for _, e := range entries {
		if revoke, ok := e.(RevokeFlat); ok {
			if revoke.KeyID.Alg != alg {
				return valerr.IncorrectHashAlgorithm()
			}
		}
	}

	if isGenesis {
		genesisKeyID, err := genesis.Key.KeyID(alg)
		if err != nil {
			return err
		}
		if !env.KeyID.Equal(genesisKeyID) {
			return valerr.GenesisWrongSigner()
		}
	}

	resolve := func(keyID hashing.AnyHash) (signing.PublicKey, bool) {
		if isGenesis {
			genesisKeyID, err := genesis.Key.KeyID(alg)
			if err == nil && keyID.Equal(genesisKeyID) {
				return genesis.Key, true
			}
			return signing.PublicKey{}, false
		}
		ks, ok := v.state.keys[keyID.String()]
		return ks.key, ok
	}
	if _, err := envelope.Verify(env, v.verifier, resolve); err != nil {
		return err
	}

	startIdx := 0
	if isGenesis {
		startIdx = 1
	}
	for _, e := range entries[startIdx:] {
		switch e.(type) {
		case Init:
			return valerr.ProtocolViolation("init entry only allowed as the sole entry of the log's first record")
		case GrantFlat, RevokeFlat:
			if !v.state.hasPermission(env.KeyID, PermissionKeyManagement) {
				return valerr.Unauthorized(string(PermissionKeyManagement))
			}
		}
	}

	next := v.state.clone()
	next.algorithm = alg
	if isGenesis {
		next.initialized = true
		genesisKeyID, _ := genesis.Key.KeyID(alg)
		next.keys[genesisKeyID.String()] = keyState{
			key: genesis.Key,
			permissions: map[Permission]bool{
				PermissionCommit:        true,
				PermissionKeyManagement: true,
			},
		}
	}
	for _, e := range entries[startIdx:] {
		switch ent := e.(type) {
		case GrantFlat:
			keyID, err := ent.Key.KeyID(alg)
			if err != nil {
				return err
			}
			ks, ok := next.keys[keyID.String()]
			if !ok {
				ks = keyState{key: ent.Key, permissions: map[Permission]bool{}}
			}
			for _, p := range ent.Permissions {
				ks.permissions[p] = true
			}
			next.keys[keyID.String()] = ks
		case RevokeFlat:
			ks, ok := next.keys[ent.KeyID.String()]
			if !ok {
				return valerr.RevokeUnknownKey(ent.KeyID.String())
			}
			for _, p := range ent.Permissions {
				delete(ks.permissions, p)
			}
			next.keys[ent.KeyID.String()] = ks
		}
	}

	recID, err := envelope.RecordID(env, alg)
	if err != nil {
		return err
	}
	next.headID = recID
	next.headTime = body.Timestamp

	v.state = next
	return nil
}
