// Package replicator builds outbound replication.WorldSnapshot values
// from the live engine.World, implementing spec.md §4.4: enumerate
// every NetId-bearing entity first (that order is authoritative for
// the packet), then walk each registered component.
package replicator

import (
	"github.com/opd-ai/replicate/pkg/components"
	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/netid"
	"github.com/opd-ai/replicate/pkg/replication"
)

// Replicator snapshots a World into the generated WorldSnapshot shape.
// It is a thin accessor binding: the enumeration and bit-packing logic
// lives in the generated NewWorldSnapshotFromWorld, grounded on the
// teacher's DeltaEncoder.CaptureSnapshot.
type Replicator struct {
	ToNetID     func(engine.Entity) (netid.ID, bool)
	GetPosition func(engine.Entity) (components.Position, bool)
	GetColor    func(engine.Entity) (components.Color, bool)
}

// New returns a Replicator reading NetId off componentNetID and the
// two demo components off componentPosition/componentColor.
func New(store *engine.World, componentNetID, componentPosition, componentColor engine.ComponentID) *Replicator {
	toNetID := func(e engine.Entity) (netid.ID, bool) {
		c, ok := store.Get(e, componentNetID)
		if !ok {
			return 0, false
		}
		id, ok := c.(netid.ID)
		return id, ok
	}
	getPosition := func(e engine.Entity) (components.Position, bool) {
		c, ok := store.Get(e, componentPosition)
		if !ok {
			return components.Position{}, false
		}
		v, ok := c.(components.Position)
		return v, ok
	}
	getColor := func(e engine.Entity) (components.Color, bool) {
		c, ok := store.Get(e, componentColor)
		if !ok {
			return components.Color{}, false
		}
		v, ok := c.(components.Color)
		return v, ok
	}
	return &Replicator{ToNetID: toNetID, GetPosition: getPosition, GetColor: getColor}
}

// Snapshot implements spec.md §4.4 for the store this Replicator was
// bound to.
func (r *Replicator) Snapshot(store *engine.World, frame uint32) replication.WorldSnapshot {
	return replication.NewWorldSnapshotFromWorld(store, r.ToNetID, frame, r.GetPosition, r.GetColor)
}
