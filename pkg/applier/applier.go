// Package applier reconstructs local entity state from a received
// replication.WorldSnapshot, implementing spec.md §4.5's four-step
// ordering: create entities, then per-component update, then delete.
// The ordering matters because a field may reference an entity
// created in the same pass.
package applier

import (
	"github.com/opd-ai/replicate/pkg/bitmask"
	"github.com/opd-ai/replicate/pkg/client"
	"github.com/opd-ai/replicate/pkg/components"
	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/netid"
	"github.com/opd-ai/replicate/pkg/replication"
)

// Applier attaches component values onto the local World under the
// ComponentIDs it was configured with. It is grounded on the
// teacher's DeltaDecoder.ApplyDelta create-then-merge-then-delete
// sequencing in pkg/network/delta.go, retargeted onto the generated,
// typed replication.WorldSnapshot.
type Applier struct {
	ComponentPosition engine.ComponentID
	ComponentColor    engine.ComponentID
}

// New returns an Applier that writes Position/Color values under the
// given ComponentIDs.
func New(componentPosition, componentColor engine.ComponentID) *Applier {
	return &Applier{ComponentPosition: componentPosition, ComponentColor: componentColor}
}

// ApplyTo implements spec.md §4.5 against store, using and updating
// netIDMap as the binding between wire NetIds and local entities.
func (a *Applier) ApplyTo(store *engine.World, netIDMap *client.NetIDMap, snap replication.WorldSnapshot) {
	present := make(map[netid.ID]bool, len(snap.EntitiesID))
	for _, id := range snap.EntitiesID {
		present[id] = true
		if _, ok := netIDMap.Entity(id); !ok {
			e := store.CreateEntity()
			netIDMap.Bind(id, e)
		}
	}

	applyField(store, netIDMap, snap.EntitiesID, snap.Positions, a.ComponentPosition)
	applyField(store, netIDMap, snap.EntitiesID, snap.Colors, a.ComponentColor)

	for _, id := range netIDMap.IDs() {
		if present[id] {
			continue
		}
		if e, ok := netIDMap.Entity(id); ok {
			store.DeleteEntity(e)
			netIDMap.Unbind(id)
		}
	}
}

// applyField walks a single field's masked enumeration, attaching a
// value where the local entity lacks the component and overwriting
// where it already carries one. Components present locally on
// entities not covered by the snapshot are left untouched, per
// spec.md §4.5 step 3.
func applyField[T interface{ components.Position | components.Color }](store *engine.World, netIDMap *client.NetIDMap, entitiesID []netid.ID, mask bitmask.BitMask[T], compID engine.ComponentID) {
	vi := 0
	for i, id := range entitiesID {
		if i >= len(mask.Mask) || !mask.Mask[i] {
			continue
		}
		v := mask.Values[vi]
		vi++

		e, ok := netIDMap.Entity(id)
		if !ok {
			continue
		}
		if store.Has(e, compID) {
			store.Set(e, compID, v)
		} else {
			store.Attach(e, compID, v)
		}
	}
}
