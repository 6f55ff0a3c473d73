// Package client holds the state a replication client owns between
// receiving server datagrams and the next local tick: the NetId<->
// Entity binding, the jitter buffer, the snapshot cache, and the ack
// record.
package client

import (
	"sync"

	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/netid"
)

// NetIDMap is the bidirectional binding between wire NetIds and local
// entities that the Applier consults and updates on every ApplyTo
// call. It is the client-side counterpart of spec.md §4.5's
// "netid_map".
type NetIDMap struct {
	mu       sync.RWMutex
	toEntity map[netid.ID]engine.Entity
	toNetID  map[engine.Entity]netid.ID
}

// NewNetIDMap returns an empty binding.
func NewNetIDMap() *NetIDMap {
	return &NetIDMap{
		toEntity: make(map[netid.ID]engine.Entity),
		toNetID:  make(map[engine.Entity]netid.ID),
	}
}

// Entity returns the local entity bound to id, if any.
func (m *NetIDMap) Entity(id netid.ID) (engine.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.toEntity[id]
	return e, ok
}

// NetID returns the wire id bound to e, if any.
func (m *NetIDMap) NetID(e engine.Entity) (netid.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.toNetID[e]
	return id, ok
}

// Bind records that id refers to e, replacing any prior binding for
// either side.
func (m *NetIDMap) Bind(id netid.ID, e engine.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oldEntity, ok := m.toEntity[id]; ok {
		delete(m.toNetID, oldEntity)
	}
	if oldID, ok := m.toNetID[e]; ok {
		delete(m.toEntity, oldID)
	}
	m.toEntity[id] = e
	m.toNetID[e] = id
}

// Unbind removes the binding for id, if present.
func (m *NetIDMap) Unbind(id netid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.toEntity[id]; ok {
		delete(m.toEntity, id)
		delete(m.toNetID, e)
	}
}

// IDs returns a snapshot of every NetId currently bound. The Applier
// diffs this against an incoming snapshot's EntitiesID to find
// entities that must be deleted.
func (m *NetIDMap) IDs() []netid.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]netid.ID, 0, len(m.toEntity))
	for id := range m.toEntity {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of bound entities.
func (m *NetIDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toEntity)
}
