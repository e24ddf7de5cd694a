package freelist

import "testing"

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FREE LIST TESTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// WHAT WE'RE TESTING:
// ──────────────────
// The free list is the ring buffer supplying fresh physical registers to
// destination renaming. Its only subtlety is the head==tail ambiguity
// between empty and full, resolved here with phase bits.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestNew_FullAtInit(t *testing.T) {
	// WHAT: A freshly constructed free list holds exactly `capacity` entries.
	// WHY: every non-architectural physical register starts out free.
	fl := New(4, 4)

	if !fl.IsFull() {
		t.Fatal("free list should be full at init")
	}
	if fl.Count() != 4 {
		t.Fatalf("expected count 4, got %d", fl.Count())
	}
}

func TestPop_DrainsInOrder(t *testing.T) {
	fl := New(4, 4)

	for i, want := range []PRID{4, 5, 6, 7} {
		got, ok := fl.Pop()
		if !ok {
			t.Fatalf("pop %d: unexpected empty", i)
		}
		if got != want {
			t.Errorf("pop %d: want %d got %d", i, want, got)
		}
	}
	if !fl.IsEmpty() {
		t.Fatal("free list should be empty after draining all entries")
	}
}

func TestPop_EmptyReturnsFalse(t *testing.T) {
	fl := New(0, 1)
	fl.Pop()

	if _, ok := fl.Pop(); ok {
		t.Fatal("pop on empty free list should report !ok, not a PRID")
	}
}

func TestPush_ThenPop_RoundTrip(t *testing.T) {
	fl := New(4, 4)
	pr, _ := fl.Pop() // p4

	fl.Push(pr)

	if fl.Count() != 4 {
		t.Fatalf("expected count back to 4 after push, got %d", fl.Count())
	}
	if !fl.IsFull() {
		t.Fatal("pushing the only missing entry back should refill the list")
	}
}

func TestPush_DuplicateAborts(t *testing.T) {
	// WHY: a duplicate push means the free list and usage counters drifted.
	fl := New(4, 4)
	fl.Pop() // p4 leaves; p5,p6,p7 remain resident

	defer func() {
		if recover() == nil {
			t.Fatal("pushing a PRID still resident on the free list should abort")
		}
	}()
	fl.Push(5)
}

func TestPush_OntoFullAborts(t *testing.T) {
	fl := New(4, 4)

	defer func() {
		if recover() == nil {
			t.Fatal("pushing onto a full free list should abort")
		}
	}()
	fl.Push(99)
}

func TestCount_AcrossWraparound(t *testing.T) {
	fl := New(0, 4)

	// Drain three, refill two — the refills land at slots 0 and 1 behind a
	// head at slot 3, so the live range wraps.
	a, _ := fl.Pop()
	b, _ := fl.Pop()
	_, _ = fl.Pop()
	fl.Push(a)
	fl.Push(b)

	if fl.Count() != 3 {
		t.Fatalf("expected count 3 after drain-3/refill-2, got %d", fl.Count())
	}
}

func TestRestoreToTail_LeavesRingFull(t *testing.T) {
	fl := New(0, 4)
	fl.Pop()
	fl.Pop()

	fl.RestoreToTail()

	if !fl.IsFull() {
		t.Fatal("RestoreToTail should leave the ring full")
	}
}
