// Package publish implements the client-side view of a pending
// publish: a batch of Init/Release/Yank entries held locally and
// submitted atomically, signed once as a single record.
package publish

import (
	"fmt"
	"sync"
	"time"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/envelope"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/pkglog"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/signing"
)

// PendingPublish is the batch held in client storage: the package it
// targets, the head it will chain from, and the entries accumulated
// so far.
type PendingPublish struct {
	Package string
	Head    *hashing.AnyHash
	Entries []pkglog.Entry
}

// Batch holds at most one PendingPublish at a time for a single
// client identity.
type Batch struct {
	mu      sync.Mutex
	pending *PendingPublish
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Enqueue adds entry to the batch targeting pkg, chained from head.
// head is only consulted when starting a new batch; later calls must
// target the same package or Enqueue fails without mutating the
// batch.
func (b *Batch) Enqueue(pkg string, head *hashing.AnyHash, entry pkglog.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		b.pending = &PendingPublish{Package: pkg, Head: head}
	}
	if b.pending.Package != pkg {
		return fmt.Errorf("publish: pending batch targets package %q, cannot enqueue for %q", b.pending.Package, pkg)
	}
	if _, ok := entry.(pkglog.Init); ok && b.hasInit() {
		return fmt.Errorf("publish: batch already initializes %q", pkg)
	}

	b.pending.Entries = append(b.pending.Entries, entry)
	return nil
}

func (b *Batch) hasInit() bool {
	for _, e := range b.pending.Entries {
		if _, ok := e.(pkglog.Init); ok {
			return true
		}
	}
	return false
}

// Pending returns a copy of the current batch, or false if empty.
func (b *Batch) Pending() (PendingPublish, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return PendingPublish{}, false
	}
	entries := make([]pkglog.Entry, len(b.pending.Entries))
	copy(entries, b.pending.Entries)
	return PendingPublish{Package: b.pending.Package, Head: b.pending.Head, Entries: entries}, true
}

// Abort discards the pending batch, if any.
func (b *Batch) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Sign assembles the batch into a single record body, signs it, and
// clears the batch — submission is atomic: either this call returns
// an envelope ready to transmit, or the batch is left untouched for a
// retry.
func (b *Batch) Sign(timestamp time.Time, version uint32, alg hashing.Alg, signer signing.Signer) (*envelope.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return nil, fmt.Errorf("publish: no pending batch to submit")
	}

	body, err := pkglog.NewBody(b.pending.Head, timestamp, version, b.pending.Entries)
	if err != nil {
		return nil, err
	}
	env, err := envelope.New(body, alg, signer)
	if err != nil {
		return nil, err
	}
	b.pending = nil
	return env, nil
}
