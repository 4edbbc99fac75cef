// Package content defines the content-digest oracle the core consumes
// to decide whether a package record's referenced content has actually
// been uploaded. Blob storage and upload itself stay out of scope;
// this package only answers existence checks.
package content

import (
	"context"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// Source describes where a release's content can be found; it is
// opaque to the validator and core, which only care about the digest.
type Source struct {
	Digest hashing.AnyHash
	URL    string
}

// Oracle answers whether content addressed by digest currently exists
// in whatever backing store it wraps.
type Oracle interface {
	Exists(ctx context.Context, digest hashing.AnyHash) (bool, error)
}
