package bitmask

import (
	"reflect"
	"testing"

	"github.com/opd-ai/replicate/pkg/netid"
)

func TestAddValueMaintainsInvariant(t *testing.T) {
	var b BitMask[int]
	b.AddValue(10)
	b.AddAbsent()
	b.AddValue(30)

	if err := b.CheckInvariant(); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
	if got, want := b.Popcount(), 2; got != want {
		t.Errorf("Popcount() = %d, want %d", got, want)
	}
}

func TestMaskedEntityIDs(t *testing.T) {
	var b BitMask[string]
	b.AddValue("a")
	b.AddAbsent()
	b.AddValue("c")

	ids := []netid.ID{1, 2, 3}
	got := b.MaskedEntityIDs(ids)
	want := []netid.ID{1, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MaskedEntityIDs() = %v, want %v", got, want)
	}
}

func TestJoinDisjointMasksUnion(t *testing.T) {
	var a, b BitMask[int]
	// a has bit 0 and 2 set; b has bit 1 set. Disjoint.
	a.AddValue(1)
	a.AddAbsent()
	a.AddValue(3)

	b.AddAbsent()
	b.AddValue(2)
	b.AddAbsent()

	joined, err := a.Join(b)
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if err := joined.CheckInvariant(); err != nil {
		t.Fatalf("joined invariant broken: %v", err)
	}

	wantMask := []bool{true, true, true}
	if !reflect.DeepEqual(joined.Mask, wantMask) {
		t.Errorf("joined.Mask = %v, want %v", joined.Mask, wantMask)
	}
	wantValues := []int{1, 2, 3}
	if !reflect.DeepEqual(joined.Values, wantValues) {
		t.Errorf("joined.Values = %v, want %v", joined.Values, wantValues)
	}
}

func TestJoinPrefersSelfOnOverlap(t *testing.T) {
	var a, b BitMask[int]
	a.AddValue(100)
	b.AddValue(200)

	joined, err := a.Join(b)
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if joined.Values[0] != 100 {
		t.Errorf("Join() did not prefer self's value: got %d, want 100", joined.Values[0])
	}
}

func TestJoinLengthMismatchFails(t *testing.T) {
	var a, b BitMask[int]
	a.AddValue(1)
	a.AddValue(2)
	b.AddValue(1)

	if _, err := a.Join(b); err == nil {
		t.Fatal("Join() with mismatched lengths: expected error, got nil")
	}
}

func TestMustJoinPanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustJoin() with mismatched lengths: expected panic")
		}
	}()
	var a, b BitMask[int]
	a.AddValue(1)
	a.MustJoin(b)
}

func TestValueAt(t *testing.T) {
	var b BitMask[string]
	b.AddAbsent()
	b.AddValue("x")
	b.AddAbsent()
	b.AddValue("y")

	if v, ok := b.ValueAt(1); !ok || v != "x" {
		t.Errorf("ValueAt(1) = %q, %v, want %q, true", v, ok, "x")
	}
	if v, ok := b.ValueAt(3); !ok || v != "y" {
		t.Errorf("ValueAt(3) = %q, %v, want %q, true", v, ok, "y")
	}
	if _, ok := b.ValueAt(0); ok {
		t.Errorf("ValueAt(0) on unset bit: expected ok=false")
	}
	if _, ok := b.ValueAt(99); ok {
		t.Errorf("ValueAt(99) out of range: expected ok=false")
	}
}
