package pkglog

import (
	"time"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkgversion"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/valerr"
)

type keyState struct {
	key         signing.PublicKey
	permissions map[Permission]bool
}

type releaseState struct {
	version       pkgversion.Version
	contentDigest hashing.AnyHash
	yanked        bool
}

// state is the validator's full mutable view of a package log.
type state struct {
	initialized bool
	algorithm   hashing.Alg
	headID      hashing.AnyHash
	headTime    time.Time
	keys        map[string]keyState
	releases    map[string]releaseState // version.String() -> state
}

func newState() *state {
	return &state{keys: make(map[string]keyState), releases: make(map[string]releaseState)}
}

func (s *state) clone() *state {
	out := &state{
		initialized: s.initialized,
		algorithm:   s.algorithm,
		headID:      s.headID,
		headTime:    s.headTime,
		keys:        make(map[string]keyState, len(s.keys)),
		releases:    make(map[string]releaseState, len(s.releases)),
	}
	for id, ks := range s.keys {
		perms := make(map[Permission]bool, len(ks.permissions))
		for p, v := range ks.permissions {
			perms[p] = v
		}
		out.keys[id] = keyState{key: ks.key, permissions: perms}
	}
	for v, rs := range s.releases {
		out.releases[v] = rs
	}
	return out
}

func (s *state) hasPermission(keyID hashing.AnyHash, perm Permission) bool {
	ks, ok := s.keys[keyID.String()]
	return ok && ks.permissions[perm]
}

// Snapshot is an opaque, restorable copy of validator state.
type Snapshot struct {
	s *state
}

// ReleaseState is the externally-visible state of one released
// version: either still released at its content digest, or yanked
// without losing that digest.
type ReleaseState struct {
	Version       pkgversion.Version
	ContentDigest hashing.AnyHash
	Yanked        bool
}

// Validator enforces the package log invariants: everything the
// operator validator enforces, plus release-version uniqueness and
// well-formed yanks.
type Validator struct {
	verifier signing.Verifier
	state    *state
}

// NewValidator creates an empty package validator.
func NewValidator(verifier signing.Verifier) *Validator {
	return &Validator{verifier: verifier, state: newState()}
}

func (v *Validator) Snapshot() Snapshot      { return Snapshot{s: v.state.clone()} }
func (v *Validator) Rollback(snap Snapshot)  { v.state = snap.s }
func (v *Validator) HeadID() hashing.AnyHash { return v.state.headID }
func (v *Validator) IsInitialized() bool     { return v.state.initialized }

// Releases returns the current state of every released version,
// keyed by its version string. A yanked version keeps its original
// content digest.
func (v *Validator) Releases() map[string]ReleaseState {
	out := make(map[string]ReleaseState, len(v.state.releases))
	for key, rs := range v.state.releases {
		out[key] = ReleaseState{Version: rs.version, ContentDigest: rs.contentDigest, Yanked: rs.yanked}
	}
	return out
}

// Validate checks env against the current state and, on success,
// commits the resulting mutation, returning the content digests
// introduced by any Release entries in the record. Content availability
// is not checked here: the core service works out which digests are
// still missing before the record is stored, and the data store only
// runs validation once none are.
func (v *Validator) Validate(env *envelope.Envelope) ([]hashing.AnyHash, error) {
	body, err := env.Body()
	if err != nil {
		return nil, err
	}
	if body.Kind != recordlog.KindPackage {
		return nil, valerr.ProtocolViolation("envelope submitted to a package log is not a package record")
	}

	if v.state.initialized {
		if body.Prev == nil || !body.Prev.Equal(v.state.headID) {
			return nil, valerr.RecordHashDoesNotMatch()
		}
		if body.Timestamp.Before(v.state.headTime) {
			return nil, valerr.TimestampRegression()
		}
	} else if body.Prev != nil {
		return nil, valerr.ProtocolViolation("the log's first record must not reference a prev")
	}

	entries, err := Decode(body.Entries)
	if err != nil {
		return nil, err
	}

	var genesis Init
	isGenesis := !v.state.initialized
	if isGenesis {
		if len(entries) == 0 {
			return nil, valerr.GenesisMissing()
		}
		first, ok := entries[0].(Init)
		if !ok {
			return nil, valerr.GenesisMissing()
		}
		genesis = first
		if !genesis.HashAlg.Valid() {
			return nil, valerr.Malformed("unknown hash algorithm in init entry")
		}
	}

	alg := v.state.algorithm
	if isGenesis {
		alg = genesis.HashAlg
	}

	for _, e := range entries {
		switch ent := e.(type) {
		case RevokeFlat:
			if ent.KeyID.Alg != alg {
				return nil, valerr.IncorrectHashAlgorithm()
			}
		case Release:
			if ent.ContentDigest.Alg != alg {
				return nil, valerr.IncorrectHashAlgorithm()
			}
		}
	}

	if isGenesis {
		genesisKeyID, err := genesis.Key.KeyID(alg)
		if err != nil {
			return nil, err
		}
		if !env.KeyID.Equal(genesisKeyID) {
			return nil, valerr.GenesisWrongSigner()
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
		return nil, err
	}

	startIdx := 0
	if isGenesis {
		startIdx = 1
	}
	for _, e := range entries[startIdx:] {
		switch ent := e.(type) {
		case Init:
			_ = ent
			return nil, valerr.ProtocolViolation("init entry only allowed as the sole entry of the log's first record")
		case GrantFlat, RevokeFlat:
			if !v.state.hasPermission(env.KeyID, PermissionKeyManagement) {
				return nil, valerr.Unauthorized(string(PermissionKeyManagement))
			}
		case Release, Yank:
			if !v.state.hasPermission(env.KeyID, PermissionCommit) {
				return nil, valerr.Unauthorized(string(PermissionCommit))
			}
		}
	}

	// Release-version uniqueness and yank-of-unreleased are checked
	// against the state as it stands before this record, and against
	// any releases introduced earlier in the SAME record.
	seenThisRecord := make(map[string]bool)
	for _, e := range entries[startIdx:] {
		switch ent := e.(type) {
		case Release:
			key := ent.Version.String()
			if _, ok := v.state.releases[key]; ok {
				return nil, valerr.ReleaseVersionReused(key)
			}
			if seenThisRecord[key] {
				return nil, valerr.ReleaseVersionReused(key)
			}
			seenThisRecord[key] = true
		case Yank:
			key := ent.Version.String()
			rs, ok := v.state.releases[key]
			if !ok && !seenThisRecord[key] {
				return nil, valerr.YankOfUnreleased(key)
			}
			if ok && rs.yanked {
				return nil, valerr.YankOfUnreleased(key)
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

	var introduced []hashing.AnyHash
	for _, e := range entries[startIdx:] {
		switch ent := e.(type) {
		case GrantFlat:
			keyID, err := ent.Key.KeyID(alg)
			if err != nil {
				return nil, err
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
				return nil, valerr.RevokeUnknownKey(ent.KeyID.String())
			}
			for _, p := range ent.Permissions {
				delete(ks.permissions, p)
			}
			next.keys[ent.KeyID.String()] = ks
		case Release:
			next.releases[ent.Version.String()] = releaseState{version: ent.Version, contentDigest: ent.ContentDigest}
			introduced = append(introduced, ent.ContentDigest)
		case Yank:
			rs := next.releases[ent.Version.String()]
			rs.version = ent.Version
			rs.yanked = true
			next.releases[ent.Version.String()] = rs
		}
	}

	recID, err := envelope.RecordID(env, alg)
	if err != nil {
		return nil, err
	}
	next.headID = recID
	next.headTime = body.Timestamp

	v.state = next
	return introduced, nil
}
