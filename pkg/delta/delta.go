// Package delta implements the per-component diff/apply codec: given
// a current and a snapshot BitMask of the same component type, it
// partitions the current entries into "newly present" (full value) and
// "changed" (compact diff), and provides the inverse that reconstructs
// a full BitMask from (snapshot, new, delta).
package delta

import (
	"fmt"

	"github.com/opd-ai/replicate/pkg/bitmask"
	"github.com/opd-ai/replicate/pkg/netid"
)

// Deltaer is the pair every replicated component type must implement.
// Delta computes the change from self to other; ok=false means "not
// representable, send the full value instead" (e.g. a numeric diff
// that overflows its wire type). Apply applies such a delta to self:
// for d, ok := a.Delta(b) with ok, a.Apply(d) reconstructs b.
type Deltaer[Self any, D any] interface {
	Delta(other Self) (d D, ok bool)
	Apply(d D) Self
}

// Diff partitions current (with ordering currentIDs) against snapshot
// (with ordering snapshotIDs) per spec: entities present in both get a
// compact delta in deltaMask at the position they hold in current;
// entities new to current (absent from snapshot, or whose Delta call
// reports not-representable) get their full value in newMask at that
// same position. Both returned masks have length == len(currentIDs).
func Diff[T Deltaer[T, D], D any](current, snapshot bitmask.BitMask[T], currentIDs, snapshotIDs []netid.ID) (newMask bitmask.BitMask[T], deltaMask bitmask.BitMask[D]) {
	snapshotIndex := indexByID(snapshotIDs)
	snapshotVersionAt := func(id netid.ID) (T, bool) {
		i, ok := snapshotIndex[id]
		if !ok {
			var zero T
			return zero, false
		}
		return snapshot.ValueAt(i)
	}

	newMask = bitmask.New[T](len(currentIDs))
	deltaMask = bitmask.New[D](len(currentIDs))

	for i, id := range currentIDs {
		curVal, present := current.ValueAt(i)
		if !present {
			newMask.Mask[i] = false
			deltaMask.Mask[i] = false
			continue
		}

		baseVal, existed := snapshotVersionAt(id)
		if !existed {
			newMask.Mask[i] = true
			newMask.Values = append(newMask.Values, curVal)
			continue
		}

		d, ok := baseVal.Delta(curVal)
		if !ok {
			// Diff not representable: fall back to full value.
			newMask.Mask[i] = true
			newMask.Values = append(newMask.Values, curVal)
			continue
		}

		deltaMask.Mask[i] = true
		deltaMask.Values = append(deltaMask.Values, d)
	}

	return newMask, deltaMask
}

// Apply reconstructs a full BitMask of T from a snapshot BitMask (with
// ordering snapshotIDs) and a delta produced by Diff (newMask,
// deltaMask, both with ordering deltaIDs). Every NetId set in
// deltaMask must be present in the snapshot; its absence is a codec
// invariant violation (the sender guaranteed a valid base) and Apply
// returns an error rather than silently producing a wrong value.
func Apply[T Deltaer[T, D], D any](snapshot bitmask.BitMask[T], snapshotIDs []netid.ID, newMask bitmask.BitMask[T], deltaMask bitmask.BitMask[D], deltaIDs []netid.ID) (bitmask.BitMask[T], error) {
	snapshotIndex := indexByID(snapshotIDs)

	reconstructed := bitmask.New[T](len(deltaIDs))
	for i, id := range deltaIDs {
		if !deltaMask.Mask[i] {
			continue
		}
		d, _ := deltaMask.ValueAt(i)

		baseIdx, ok := snapshotIndex[id]
		if !ok {
			return bitmask.BitMask[T]{}, fmt.Errorf("delta: apply references netid %d absent from snapshot", id)
		}
		baseVal, ok := snapshot.ValueAt(baseIdx)
		if !ok {
			return bitmask.BitMask[T]{}, fmt.Errorf("delta: apply references netid %d unset in snapshot mask", id)
		}

		reconstructed.Mask[i] = true
		reconstructed.Values = append(reconstructed.Values, baseVal.Apply(d))
	}

	joined, err := reconstructed.Join(newMask)
	if err != nil {
		return bitmask.BitMask[T]{}, fmt.Errorf("delta: apply join: %w", err)
	}
	return joined, nil
}

func indexByID(ids []netid.ID) map[netid.ID]int {
	idx := make(map[netid.ID]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}
