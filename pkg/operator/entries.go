package operator

import (
	"encoding/json"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/valerr"
)

// Permission is a capability a key can hold against an operator log.
type Permission string

const (
	PermissionCommit        Permission = "commit"
	PermissionKeyManagement Permission = "key-management"
)

// Entry is the operator log's entry vocabulary.
type Entry interface {
	entryType() string
}

// Init must be the sole entry of the log's first record. It fixes the
// log's hash algorithm and its first key, implicitly holding every
// permission.
type Init struct {
	HashAlg hashing.Alg
	Key     signing.PublicKey
}

// GrantFlat adds permissions to a key, registering it first if unknown.
type GrantFlat struct {
	Key         signing.PublicKey
	Permissions []Permission
}

// RevokeFlat removes permissions from an already-known key.
type RevokeFlat struct {
	KeyID       hashing.AnyHash
	Permissions []Permission
}

func (Init) entryType() string       { return "init" }
func (GrantFlat) entryType() string  { return "grant-flat" }
func (RevokeFlat) entryType() string { return "revoke-flat" }

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
		default:
			return nil, valerr.Malformed("unknown operator entry type")
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
	default:
		return nil, valerr.Malformed("unknown operator entry type: " + env.Type)
	}
}
