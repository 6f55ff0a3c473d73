// Package components holds the replicated component types used by the
// reference packet schema: Position (a compact numeric delta) and
// Color (a "changed / unchanged" unit delta). Both satisfy
// delta.Deltaer.
package components

import "math"

// Position is a 2D integer position component.
type Position struct {
	X, Y int32
}

// DeltaPosition is a compact signed-byte offset. When the true
// per-axis difference does not fit in an int8, Delta reports ok=false
// so the codec falls back to sending the full Position value.
type DeltaPosition struct {
	DX, DY int8
}

// Delta computes other - p as a pair of int8 offsets. It fails
// (ok=false) when either axis overflows the representable [-128, 127]
// range, matching spec.md's "Overflow fallback" scenario.
func (p Position) Delta(other Position) (DeltaPosition, bool) {
	dx := int64(other.X) - int64(p.X)
	dy := int64(other.Y) - int64(p.Y)
	if !fitsInt8(dx) || !fitsInt8(dy) {
		return DeltaPosition{}, false
	}
	return DeltaPosition{DX: int8(dx), DY: int8(dy)}, true
}

// Apply reconstructs the new Position by adding the offset to p.
func (p Position) Apply(d DeltaPosition) Position {
	return Position{X: p.X + int32(d.DX), Y: p.Y + int32(d.DY)}
}

func fitsInt8(v int64) bool {
	return v >= math.MinInt8 && v <= math.MaxInt8
}

// Color is an RGBA color component. It chooses DeltaType = Unit: the
// only meaningful signal worth transmitting as a "delta" is "this
// value did not change at all". Any actual change is reported as
// ok=false, which pushes the codec to fall back to sending the full
// new value in the snapshot's new-mask instead of a delta-mask entry.
type Color struct {
	R, G, B, A uint8
}

// Unit carries no information beyond its own presence in a delta mask.
type Unit struct{}

// Delta succeeds with a Unit only when other is identical to c;
// otherwise it reports ok=false so the caller sends the full value.
func (c Color) Delta(other Color) (Unit, bool) {
	if c == other {
		return Unit{}, true
	}
	return Unit{}, false
}

// Apply returns c unchanged: a Unit delta, by construction, only ever
// described "no change".
func (c Color) Apply(d Unit) Color {
	return c
}
