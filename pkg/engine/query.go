package engine

import (
	"sort"

	"github.com/opd-ai/replicate/pkg/netid"
)

// EntityIterator provides ordered iteration over query results. Entities
// are sorted by Entity value so that two queries run against the same
// World state always walk entities in the same order: the replicator
// depends on a stable traversal order to line up current and previous
// BitMask entries by position.
type EntityIterator struct {
	entities []Entity
	index    int
}

// Next advances to the next entity and returns true if available.
func (it *EntityIterator) Next() bool {
	it.index++
	return it.index < len(it.entities)
}

// Entity returns the current entity.
func (it *EntityIterator) Entity() Entity {
	if it.index < 0 || it.index >= len(it.entities) {
		return 0
	}
	return it.entities[it.index]
}

// Reset rewinds the iterator to before its first element.
func (it *EntityIterator) Reset() {
	it.index = -1
}

// Len returns the total number of entities in the iterator.
func (it *EntityIterator) Len() int {
	return len(it.entities)
}

func newEntityIterator(entities []Entity) *EntityIterator {
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	return &EntityIterator{entities: entities, index: -1}
}

// Query returns an iterator over entities whose archetype carries every
// bit in componentIDs, in ascending Entity order.
func (w *World) Query(componentIDs ...ComponentID) *EntityIterator {
	var queryMask uint64
	for _, id := range componentIDs {
		if id < 64 {
			queryMask |= 1 << uint64(id)
		}
	}

	w.mu.RLock()
	matched := make([]Entity, 0, len(w.archetypes))
	for e, archetype := range w.archetypes {
		if archetype&queryMask == queryMask {
			matched = append(matched, e)
		}
	}
	w.mu.RUnlock()

	return newEntityIterator(matched)
}

// QueryNetIDs returns the NetId of every entity matching componentIDs,
// in the same ascending-Entity order Query would produce, and the
// parallel Entity slice. toNetID reads an entity's NetId component;
// an entity lacking one is skipped.
func (w *World) QueryNetIDs(toNetID func(Entity) (netid.ID, bool), componentIDs ...ComponentID) ([]netid.ID, []Entity) {
	it := w.Query(componentIDs...)
	ids := make([]netid.ID, 0, it.Len())
	entities := make([]Entity, 0, it.Len())
	for it.Next() {
		e := it.Entity()
		id, ok := toNetID(e)
		if !ok {
			continue
		}
		ids = append(ids, id)
		entities = append(entities, e)
	}
	return ids, entities
}
