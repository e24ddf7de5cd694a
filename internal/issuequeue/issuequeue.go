// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Issue queue — wakeup/select scheduler for the pipeline's schedule stage
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// Bitmap-tracked operand readiness plus a lowest-slot-first, CLZ-style select,
// the same two building blocks a bounded out-of-order scheduler always
// needs: "which ops could issue this cycle" and "of those, which one
// actually does." Each entry additionally carries the checkpoint ID its
// instruction was renamed under, so a misprediction or exception can
// invalidate exactly the entries downstream of the rollback point via
// Squash, instead of tracking per-branch shadow state.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package issuequeue

import (
	"math/bits"

	"github.com/suprax-arch/ooosim/internal/checkpoint"
)

// windowSize bounds the scheduler to a fixed, deterministically-timed
// instruction window. Slot index does not track age: Dispatch reuses the
// first free slot, so a newer entry can sit below an older one.
const windowSize = 32

// PRID is a physical register identifier.
type PRID = uint64

// CID is a checkpoint identifier.
type CID = checkpoint.CID

// SquashMask is the per-checkpoint invalidation predicate rollback produces.
type SquashMask = checkpoint.SquashMask

// entry is one in-flight instruction awaiting issue.
type entry struct {
	valid  bool
	issued bool
	src1   PRID
	src2   PRID
	dest   PRID
	hasSrc [2]bool
	cid    CID
}

// scoreboard tracks operand readiness as one bit per physical register.
// Bounding physical-register count to 64 keeps this a single machine
// word; configurations needing more would widen it to a []uint64.
type scoreboard uint64

func (s scoreboard) isReady(pr PRID) bool { return pr < 64 && (s>>pr)&1 != 0 }
func (s *scoreboard) markReady(pr PRID) {
	if pr < 64 {
		*s |= 1 << pr
	}
}
func (s *scoreboard) markPending(pr PRID) {
	if pr < 64 {
		*s &^= 1 << pr
	}
}

// IssueQueue is the bounded scheduling window.
type IssueQueue struct {
	slots [windowSize]entry
	ready scoreboard
}

// New builds an empty issue queue with every physical register initially
// marked ready (the reset state of an empty pipeline).
func New(nPhysRegs uint64) *IssueQueue {
	q := &IssueQueue{}
	for pr := PRID(0); pr < nPhysRegs && pr < 64; pr++ {
		q.ready.markReady(pr)
	}
	return q
}

// Dispatch installs a new entry in the first free slot. hasSrc1/hasSrc2
// mark which source operands actually need to become ready (an
// instruction may have zero, one, or two register sources). It returns
// false if the window is full; the pipeline's dispatch stage must have
// already checked occupancy before calling.
func (q *IssueQueue) Dispatch(src1, src2, dest PRID, hasSrc1, hasSrc2 bool, cid CID) (slot uint8, ok bool) {
	for i := range q.slots {
		if !q.slots[i].valid {
			q.slots[i] = entry{
				valid:  true,
				src1:   src1,
				src2:   src2,
				dest:   dest,
				hasSrc: [2]bool{hasSrc1, hasSrc2},
				cid:    cid,
			}
			return uint8(i), true
		}
	}
	return 0, false
}

// MarkReady and MarkPending expose the scoreboard to writeback (a
// completing instruction marks its destination ready) and dispatch (a
// freshly renamed destination starts out pending).
func (q *IssueQueue) MarkReady(pr PRID)   { q.ready.markReady(pr) }
func (q *IssueQueue) MarkPending(pr PRID) { q.ready.markPending(pr) }

// readyBitmap reports which valid, not-yet-issued slots have every
// required source operand ready.
func (q *IssueQueue) readyBitmap() uint32 {
	var bitmap uint32
	for i := range q.slots {
		e := &q.slots[i]
		if !e.valid || e.issued {
			continue
		}
		src1OK := !e.hasSrc[0] || q.ready.isReady(e.src1)
		src2OK := !e.hasSrc[1] || q.ready.isReady(e.src2)
		if src1OK && src2OK {
			bitmap |= 1 << uint(i)
		}
	}
	return bitmap
}

// Select picks the lowest-index ready slot, mirroring the teacher
// scheduler's CLZ-based priority encode over a ready bitmap, and marks
// it issued so it is not selected again before it completes. Because
// slots are reused, lowest index is not necessarily oldest.
func (q *IssueQueue) Select() (slot uint8, ok bool) {
	bitmap := q.readyBitmap()
	if bitmap == 0 {
		return 0, false
	}
	i := bits.TrailingZeros32(bitmap)
	q.slots[i].issued = true
	return uint8(i), true
}

// Complete retires slot i from the window once its result has been
// written back, returning the destination it was producing so the
// caller can decide whether to mark it ready on the scoreboard (it
// already will have been, via MarkReady, by the time this is called).
func (q *IssueQueue) Complete(slot uint8) (dest PRID) {
	dest = q.slots[slot].dest
	q.slots[slot] = entry{}
	return dest
}

// Squash invalidates every resident entry whose checkpoint ID is set in
// mask — the selective-squash discipline the renamer's rollback drives.
func (q *IssueQueue) Squash(mask SquashMask) {
	for i := range q.slots {
		if q.slots[i].valid && mask.Test(q.slots[i].cid) {
			q.slots[i] = entry{}
		}
	}
}

// Flush discards every resident entry unconditionally.
func (q *IssueQueue) Flush() {
	for i := range q.slots {
		q.slots[i] = entry{}
	}
}
