// Package netid provides the network-level entity identifier and its
// session-scoped allocator.
package netid

import "sync/atomic"

// ID is a 32-bit network identifier, unique for the lifetime of a
// session and never reused once minted.
type ID uint32

// Allocator mints unique, monotonically increasing IDs. The zero value
// is ready to use and starts at 1, reserving 0 as "no identifier".
type Allocator struct {
	next atomic.Uint32
}

// NewAllocator returns an Allocator ready to mint IDs starting at 1.
func NewAllocator() *Allocator {
	a := &Allocator{}
	a.next.Store(0)
	return a
}

// Next mints and returns the next unused ID.
func (a *Allocator) Next() ID {
	return ID(a.next.Add(1))
}
