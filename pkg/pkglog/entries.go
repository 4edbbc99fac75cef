package pkglog

import (
	"encoding/json"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkgversion"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/valerr"
)

// Permission is a capability a key can hold against a package log.
type Permission string

const (
	PermissionCommit        Permission = "commit"
	PermissionKeyManagement Permission = "key-management"
)

// Entry is the package log's entry vocabulary.
type Entry interface {
	entryType() string
}

// Init must be the sole entry of the log's first record.
type Init struct {
	HashAlg hashing.Alg
	Key     signing.PublicKey
}

// GrantFlat adds permissions to a key, registering it if unknown.
type GrantFlat struct {
	Key         signing.PublicKey
	Permissions []Permission
}

// RevokeFlat removes permissions from an already-known key.
type RevokeFlat struct {
	KeyID       hashing.AnyHash
	Permissions []Permission
}

// Release publishes a version pointing at a content digest. The
// content digest is opaque to the validator; the content oracle
// resolves whether it actually exists.
type Release struct {
	Version       pkgversion.Version
	ContentDigest hashing.AnyHash
}

// Yank withdraws a previously released version without removing it
// from the log.
type Yank struct {
	Version pkgversion.Version
}

func (Init) entryType() string       { return "init" }
func (GrantFlat) entryType() string  { return "grant-flat" }
func (RevokeFlat) entryType() string { return "revoke-flat" }
func (Release) entryType() string    { return "release" }
func (Yank) entryType() string       { return "yank" }

type wireInit struct {
	HashAlg hashing.Alg `json:"hash_alg"`
	KeyAlg  string      `json:"key_alg"`
	KeyData []byte      `json:"key_data"`
}

type wireGrantFlat struct {
	KeyAlg      string       `json:"key_alg"`
	KeyData     []byte       `json:"key_data"`
	Permissions []Permission `json:"permissions"`
}

type wireRevokeFlat struct {
	KeyID       string       `json:"key_id"`
	Permissions []Permission `json:"permissions"`
}

type wireRelease struct {
	Version       string `json:"version"`
	ContentDigest string `json:"content_digest"`
}

type wireYank struct {
	Version string `json:"version"`
}

// Encode converts entries into their wire envelopes in order.
func Encode(entries []Entry) ([]recordlog.EntryEnvelope, error) {
	out := make([]recordlog.EntryEnvelope, 0, len(entries))
	for _, e := range entries {
		var env recordlog.EntryEnvelope
		var err error
		switch v := e.(type) {
		case Init:
			env, err = recordlog.EncodeEntry("init", wireInit{HashAlg: v.HashAlg, KeyAlg: v.Key.Alg, KeyData: v.Key.Bytes})
		case GrantFlat:
			env, err = recordlog.EncodeEntry("grant-flat", wireGrantFlat{KeyAlg: v.Key.Alg, KeyData: v.Key.Bytes, Permissions: v.Permissions})
		case RevokeFlat:
			env, err = recordlog.EncodeEntry("revoke-flat", wireRevokeFlat{KeyID: v.KeyID.String(), Permissions: v.Permissions})
		case Release:
			env, err = recordlog.EncodeEntry("release", wireRelease{Version: v.Version.String(), ContentDigest: v.ContentDigest.String()})
		case Yank:
			env, err = recordlog.EncodeEntry("yank", wireYank{Version: v.Version.String()})
		default:
			return nil, valerr.Malformed("unknown package entry type")
		}
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Decode converts wire envelopes back into typed entries.
func Decode(envelopes []recordlog.EntryEnvelope) ([]Entry, error) {
	return recordlog.DecodeEntries(envelopes, decodeOne)
}

func decodeOne(env recordlog.EntryEnvelope) (Entry, error) {
	switch env.Type {
	case "init":
		var w wireInit
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, valerr.Malformed("malformed init entry")
		}
		return Init{HashAlg: w.HashAlg, Key: signing.PublicKey{Alg: w.KeyAlg, Bytes: w.KeyData}}, nil
	case "grant-flat":
		var w wireGrantFlat
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, valerr.Malformed("malformed grant-flat entry")
		}
		return GrantFlat{Key: signing.PublicKey{Alg: w.KeyAlg, Bytes: w.KeyData}, Permissions: w.Permissions}, nil
	case "revoke-flat":
		var w wireRevokeFlat
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, valerr.Malformed("malformed revoke-flat entry")
		}
		keyID, err := hashing.Parse(w.KeyID)
		if err != nil {
			return nil, valerr.Malformed("malformed revoke-flat key id")
		}
		return RevokeFlat{KeyID: keyID, Permissions: w.Permissions}, nil
	case "release":
		var w wireRelease
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, valerr.Malformed("malformed release entry")
		}
		version, err := pkgversion.Parse(w.Version)
		if err != nil {
			return nil, valerr.Malformed("malformed release version")
		}
		digest, err := hashing.Parse(w.ContentDigest)
		if err != nil {
			return nil, valerr.Malformed("malformed release content digest")
		}
		return Release{Version: version, ContentDigest: digest}, nil
	case "yank":
		var w wireYank
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, valerr.Malformed("malformed yank entry")
		}
		version, err := pkgversion.Parse(w.Version)
		if err != nil {
			return nil, valerr.Malformed("malformed yank version")
		}
		return Yank{Version: version}, nil
	default:
		return nil, valerr.Malformed("unknown package entry type: " + env.Type)
	}
}
