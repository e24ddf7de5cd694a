// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Free List — ring buffer of reclaimable physical register identifiers
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// DESIGN:
// ──────
// A circular array with head/tail indices and a phase bit each, so that
//
//	empty ⟺ head == tail && headPhase == tailPhase
//	full  ⟺ head == tail && headPhase != tailPhase
//
// Destination renaming pops the head; reclamation (PRM.unmap, when usage
// hits zero) pushes onto the tail. Capacity is fixed at construction to
// P − L and the list starts full: every non-architectural PRID begins
// free.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package freelist

import "github.com/suprax-arch/ooosim/internal/coreerr"

// PRID is a physical register identifier, an integer in [0, P).
type PRID = uint64

// FreeList is the ring buffer of reclaimable physical register IDs.
type FreeList struct {
	slots     []PRID
	capacity  uint64
	head      uint64
	tail      uint64
	headPhase bool
	tailPhase bool
}

// New builds a free list pre-populated with the identity range
// [base, base+capacity), full at construction: every non-architectural
// physical register starts out free.
func New(base PRID, capacity uint64) *FreeList {
	fl := &FreeList{
		slots:     make([]PRID, capacity),
		capacity:  capacity,
		headPhase: false,
		tailPhase: true, // head==tail, phases differ ⇒ full
	}
	for i := uint64(0); i < capacity; i++ {
		fl.slots[i] = base + i
	}
	return fl
}

// IsEmpty reports head==tail with matching phases.
func (fl *FreeList) IsEmpty() bool {
	return fl.head == fl.tail && fl.headPhase == fl.tailPhase
}

// IsFull reports head==tail with differing phases.
func (fl *FreeList) IsFull() bool {
	return fl.head == fl.tail && fl.headPhase != fl.tailPhase
}

// Count returns the number of PRIDs currently held. Away from the
// empty/full extremes this is tail−head (phases equal) or
// tail−head+capacity (phases differ); the opposite sign in either
// branch is an invariant violation and aborts the simulator.
func (fl *FreeList) Count() uint64 {
	switch {
	case fl.IsFull():
		return fl.capacity
	case fl.IsEmpty():
		return 0
	case fl.headPhase == fl.tailPhase:
		if fl.tail < fl.head {
			coreerr.Abort("freelist.Count", "head %d ahead of tail %d with equal phases", fl.head, fl.tail)
		}
		return fl.tail - fl.head
	default:
		if fl.head < fl.tail {
			coreerr.Abort("freelist.Count", "tail %d ahead of head %d with differing phases", fl.tail, fl.head)
		}
		return fl.tail - fl.head + fl.capacity
	}
}

// Pop removes and returns the head PRID. The second return is false if
// the list is empty — the caller (renamer.rename_dest) must have
// consulted stall_reg first, so reaching an empty pop here means the
// pipeline and renamer have drifted out of sync.
func (fl *FreeList) Pop() (PRID, bool) {
	if fl.IsEmpty() {
		return 0, false
	}
	pr := fl.slots[fl.head]
	fl.head++
	if fl.head == fl.capacity {
		fl.head = 0
		fl.headPhase = !fl.headPhase
	}
	return pr, true
}

// Push appends pr to the tail. Pushing onto a full list, or pushing a
// PRID already present, is a structural-invariant violation and aborts
// the simulator.
func (fl *FreeList) Push(pr PRID) {
	if fl.IsFull() {
		coreerr.Abort("freelist.Push", "push onto full free list: p%d", pr)
	}
	if fl.contains(pr) {
		coreerr.Abort("freelist.Push", "duplicate push: p%d already on free list", pr)
	}
	fl.slots[fl.tail] = pr
	fl.tail++
	if fl.tail == fl.capacity {
		fl.tail = 0
		fl.tailPhase = !fl.tailPhase
	}
}

// RestoreToTail sets head := tail and flips the head phase to the
// complement of the tail phase, leaving the ring full. Nothing else in
// this module calls it: the renamer's Squash restores free-list
// membership through unmap and usage reclamation instead.
func (fl *FreeList) RestoreToTail() {
	fl.head = fl.tail
	fl.headPhase = !fl.tailPhase
}

func (fl *FreeList) contains(pr PRID) bool {
	if fl.IsEmpty() {
		return false
	}
	i := fl.head
	for {
		if fl.slots[i] == pr {
			return true
		}
		i++
		if i == fl.capacity {
			i = 0
		}
		if i == fl.tail {
			break
		}
	}
	return false
}
