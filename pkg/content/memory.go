package content

import (
	"context"
	"sync"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// MemoryOracle is an in-memory Oracle used by tests and the
// single-node entrypoint in place of a real blob backend.
type MemoryOracle struct {
	mu      sync.RWMutex
	present map[string]bool
}

// NewMemoryOracle creates an empty oracle; nothing exists until Mark
// is called.
func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{present: make(map[string]bool)}
}

// Mark records digest as uploaded.
func (o *MemoryOracle) Mark(digest hashing.AnyHash) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.present[digest.String()] = true
}

func (o *MemoryOracle) Exists(ctx context.Context, digest hashing.AnyHash) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.present[digest.String()], nil
}
