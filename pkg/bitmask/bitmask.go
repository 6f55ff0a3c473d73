// Package bitmask implements the fundamental encoding unit for sparse
// per-entity data: a bit-vector of presence paired with a dense vector
// of the present values.
package bitmask

import (
	"fmt"

	"github.com/opd-ai/replicate/pkg/netid"
)

// BitMask pairs a presence vector with the dense values it carries.
// The i-th set bit in Mask corresponds to the i-th entry in Values.
// Mask length is fixed at construction; Join and the delta codec both
// depend on popcount(Mask) == len(Values) holding at every observable
// point.
type BitMask[T any] struct {
	Mask   []bool
	Values []T
}

// New returns an empty BitMask sized for n entities, no bits set.
func New[T any](n int) BitMask[T] {
	return BitMask[T]{Mask: make([]bool, n)}
}

// Popcount returns the number of set bits.
func (b BitMask[T]) Popcount() int {
	n := 0
	for _, set := range b.Mask {
		if set {
			n++
		}
	}
	return n
}

// CheckInvariant reports whether popcount(Mask) == len(Values). A
// BitMask failing this check is a codec bug, not a runtime condition;
// callers on the hot path should panic rather than propagate it.
func (b BitMask[T]) CheckInvariant() error {
	if got, want := len(b.Values), b.Popcount(); got != want {
		return fmt.Errorf("bitmask: popcount %d != len(values) %d", want, got)
	}
	return nil
}

// MaskedEntityIDs enumerates the NetIds whose bit is set, in mask
// order. entitiesID must have the same length as Mask; the j-th entry
// of Values corresponds to the j-th set bit, and a set bit at mask
// position i corresponds to entitiesID[i].
func (b BitMask[T]) MaskedEntityIDs(entitiesID []netid.ID) []netid.ID {
	out := make([]netid.ID, 0, len(b.Values))
	for i, set := range b.Mask {
		if set && i < len(entitiesID) {
			out = append(out, entitiesID[i])
		}
	}
	return out
}

// AddValue appends one value and sets a new trailing bit, growing the
// mask by one position.
func (b *BitMask[T]) AddValue(v T) {
	b.Mask = append(b.Mask, true)
	b.Values = append(b.Values, v)
}

// AddAbsent grows the mask by one unset position without a value,
// recording "this entity does not carry the component".
func (b *BitMask[T]) AddAbsent() {
	b.Mask = append(b.Mask, false)
}

// Join merges two masks of identical length: for each index where
// self has a value, self's value is kept; else where other has a
// value, other's is taken; remaining indices stay unset. Fails if the
// two masks differ in length.
func (b BitMask[T]) Join(other BitMask[T]) (BitMask[T], error) {
	if len(b.Mask) != len(other.Mask) {
		return BitMask[T]{}, fmt.Errorf("bitmask: join length mismatch %d != %d", len(b.Mask), len(other.Mask))
	}

	out := BitMask[T]{Mask: make([]bool, len(b.Mask))}
	bi, oi := 0, 0
	for i := range b.Mask {
		switch {
		case b.Mask[i]:
			out.Mask[i] = true
			out.Values = append(out.Values, b.Values[bi])
		case other.Mask[i]:
			out.Mask[i] = true
			out.Values = append(out.Values, other.Values[oi])
		}
		if b.Mask[i] {
			bi++
		}
		if other.Mask[i] {
			oi++
		}
	}
	return out, nil
}

// MustJoin is Join but panics on length mismatch. Used on internal
// codec paths that have already validated equal length, where a
// mismatch would indicate a broken invariant rather than a recoverable
// runtime condition.
func (b BitMask[T]) MustJoin(other BitMask[T]) BitMask[T] {
	out, err := b.Join(other)
	if err != nil {
		panic(err)
	}
	return out
}

// ValueAt returns the value at mask position i and whether the bit is
// set there. It is O(i) because Values is dense; callers iterating the
// whole mask should prefer ranging with an explicit cursor instead.
func (b BitMask[T]) ValueAt(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(b.Mask) || !b.Mask[i] {
		return zero, false
	}
	idx := 0
	for j := 0; j < i; j++ {
		if b.Mask[j] {
			idx++
		}
	}
	return b.Values[idx], true
}
