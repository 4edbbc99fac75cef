package operator

import (
	"time"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/recordlog"
)

// NewBody assembles a signable operator record body.
func NewBody(prev *hashing.AnyHash, timestamp time.Time, version uint32, entries []Entry) (recordlog.Body, error) {
	wire, err := Encode(entries)
	if err != nil {
		return recordlog.Body{}, err
	}
	return recordlog.Body{
		Kind:      recordlog.KindOperator,
		Prev:      prev,
		Timestamp: timestamp,
		Version:   version,
		Entries:   wire,
	}, nil
}
