// Package recordlog holds the wire shape shared by the operator log and
// package log: a record is a previous-hash link, a timestamp, a log
// protocol version, and an ordered list of entries. The entry payloads
// themselves are opaque at this layer — operator and pkglog decode them
// into their own entry vocabularies — so a record's wire form carries
// entries as type-tagged envelopes rather than concrete Go types.
package recordlog

import (
	"encoding/json"
	"time"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// Kind distinguishes an operator record from a package record so a
// record can be rejected outright if submitted against the wrong log.
type Kind string

const (
	KindOperator Kind = "operator"
	KindPackage  Kind = "package"
)

// EntryEnvelope is the wire form of a single entry: a type tag plus its
// raw JSON payload. Concrete entry vocabularies (operator.Entry,
// pkglog.Entry) marshal to and from this shape.
type EntryEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Body is the canonical, signed content of a record: what gets hashed
// and signed is the canonical JSON encoding of this struct.
type Body struct {
	Kind      Kind             `json:"kind"`
	Prev      *hashing.AnyHash `json:"prev,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   uint32           `json:"version"`
	Entries   []EntryEnvelope  `json:"entries"`
}

// EncodeEntry marshals a concrete entry value under the given type tag.
func EncodeEntry(entryType string, v any) (EntryEnvelope, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return EntryEnvelope{}, err
	}
	return EntryEnvelope{Type: entryType, Data: raw}, nil
}

// DecodeEntries applies decode to every entry envelope in order,
// collecting the typed results. decode is supplied by the caller
// (operator or pkglog) since only it knows its own entry vocabulary.
func DecodeEntries[E any](envelopes []EntryEnvelope, decode func(EntryEnvelope) (E, error)) ([]E, error) {
	out := make([]E, 0, len(envelopes))
	for _, env := range envelopes {
		e, err := decode(env)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
