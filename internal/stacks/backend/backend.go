// Package backend defines the storage contract Stacks persists through.
// A backend is an opaque key/value blob store; Stacks owns the meaning of
// the keys and the byte layout of the values (see the stacks package's
// codec.go for the wire format).
package backend

import "context"

// Backend is the minimal persistence contract Stacks requires: load the
// full key/value set, save a full replacement of it, and release resources.
// Save is expected to replace the prior contents atomically from the
// caller's point of view — a crash mid-save must not leave a partially
// written store that Load then silently accepts.
type Backend interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Save(ctx context.Context, records map[string][]byte) error
	Close() error
}
