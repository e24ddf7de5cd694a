package prm

import (
	"testing"

	"github.com/suprax-arch/ooosim/internal/freelist"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PHYSICAL-REGISTER METADATA TESTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// WHAT WE'RE TESTING:
// ──────────────────
// The ready/unmapped/usage ledger, and in particular the reclaim-onto-
// free-list edge that fires whenever usage reaches zero while a
// register is unmapped (from either direction: DecUsage landing on an
// already-unmapped register, or Unmap landing on an already-zero-usage
// one).
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestNew_AllReadyAndUnmapped(t *testing.T) {
	fl := freelist.New(0, 4)
	p := New(4, fl)

	for pr := PRID(0); pr < 4; pr++ {
		if !p.IsReady(pr) {
			t.Errorf("p%d: expected ready at init", pr)
		}
		if !p.IsUnmapped(pr) {
			t.Errorf("p%d: expected unmapped at init", pr)
		}
		if p.Usage(pr) != 0 {
			t.Errorf("p%d: expected zero usage at init", pr)
		}
	}
}

func TestSetReady_ClearReady(t *testing.T) {
	fl := freelist.New(0, 4)
	p := New(4, fl)

	p.ClearReady(0)
	if p.IsReady(0) {
		t.Fatal("p0 should not be ready after ClearReady")
	}
	p.SetReady(0)
	if !p.IsReady(0) {
		t.Fatal("p0 should be ready after SetReady")
	}
}

func TestIncDecUsage_RoundTrip(t *testing.T) {
	fl := freelist.New(0, 4)
	p := New(4, fl)

	// p0 is mapped (not on the free list) so dec-to-zero must not reclaim it.
	p.Map(0)
	p.IncUsage(0)
	p.IncUsage(0)
	if p.Usage(0) != 2 {
		t.Fatalf("usage = %d, want 2", p.Usage(0))
	}

	p.DecUsage(0)
	if p.Usage(0) != 1 {
		t.Fatalf("usage = %d, want 1", p.Usage(0))
	}
}

func TestDecUsage_UnderflowAborts(t *testing.T) {
	fl := freelist.New(0, 4)
	p := New(4, fl)

	defer func() {
		if recover() == nil {
			t.Fatal("decrementing usage below zero should abort")
		}
	}()
	p.DecUsage(0)
}

func TestDecUsage_ReclaimsWhenUnmappedHitsZero(t *testing.T) {
	// WHY: a register that is already unmapped becomes eligible for
	// reuse the instant nothing inflight still references it.
	fl := freelist.New(0, 4)
	fl.Pop() // p0 leaves the free list so Push(p0) below isn't a duplicate
	p := New(4, fl)

	p.IncUsage(0) // unmapped stays true (default) — simulates a retired write awaiting drain

	p.DecUsage(0)

	if !fl.IsFull() {
		t.Fatal("p0 should have been pushed back onto the free list")
	}
}

func TestUnmap_ReclaimsWhenUsageAlreadyZero(t *testing.T) {
	fl := freelist.New(0, 4)
	fl.Pop() // p0 leaves the free list
	p := New(4, fl)
	p.Map(0) // usage 0, now mapped: simulates a freshly-renamed dest reg

	p.Unmap(0)

	if !p.IsUnmapped(0) {
		t.Fatal("p0 should be unmapped")
	}
	if !fl.IsFull() {
		t.Fatal("p0 should have been reclaimed onto the free list immediately")
	}
}

func TestUnmap_DoesNotReclaimWhileUsagePositive(t *testing.T) {
	fl := freelist.New(0, 4)
	fl.Pop() // p0 leaves the free list
	p := New(4, fl)
	p.Map(0)
	p.IncUsage(0)

	p.Unmap(0)

	if fl.IsFull() {
		t.Fatal("p0 still has live references, must not be reclaimed yet")
	}

	p.DecUsage(0)
	if !fl.IsFull() {
		t.Fatal("p0 should be reclaimed once its last reference drains")
	}
}

func TestMap_ClearsUnmappedBit(t *testing.T) {
	fl := freelist.New(0, 4)
	p := New(4, fl)

	p.Map(2)
	if p.IsUnmapped(2) {
		t.Fatal("p2 should no longer be unmapped after Map")
	}
}
