// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Checkpoint Buffer — FIFO ring of structural speculation anchors
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// Exactly one entry — the head — is the committed architectural state;
// every successor is a resumable prior speculation point. Squash and
// rollback operate at checkpoint granularity (checkpointed processor
// recovery, CPR), not per-instruction, which is what lets this ring stay
// small (tens of entries) instead of growing with the instruction
// window.
//
// Same head/tail + phase-bit ring encoding as the free list, so empty
// and full remain distinguishable at head==tail.
//
// This type only owns the ring's structural bookkeeping (snapshots,
// counters, flags, head/tail arithmetic). It deliberately knows nothing
// about the physical-register usage ledger — the renamer (RCR layer)
// is what increments/decrements usage counts when it snapshots into or
// squashes out of an entry here.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package checkpoint

import "github.com/suprax-arch/ooosim/internal/coreerr"

// CID is a checkpoint identifier, in [0, C); also an index into the ring.
type CID = uint64

// PRID is a physical register identifier.
type PRID = uint64

// entry is one frozen speculation anchor.
type entry struct {
	rmt      []PRID
	unmapped []bool

	loads       uint64
	stores      uint64
	branches    uint64
	uncompleted uint64

	amo       bool
	csr       bool
	exception bool
}

func (e *entry) reset() {
	e.loads, e.stores, e.branches, e.uncompleted = 0, 0, 0, 0
	e.amo, e.csr, e.exception = false, false, false
}

// CheckpointBuffer is the FIFO ring of structural speculation anchors.
type CheckpointBuffer struct {
	entries   []entry
	capacity  uint64
	head      uint64
	tail      uint64
	headPhase bool
	tailPhase bool
}

// New builds an empty ring of the given capacity. The caller (the
// renamer, at construction) is expected to immediately call Checkpoint
// once to install the pre-existing initial checkpoint at the head.
func New(capacity uint64) *CheckpointBuffer {
	return &CheckpointBuffer{
		entries:  make([]entry, capacity),
		capacity: capacity,
	}
}

func (cb *CheckpointBuffer) isEmpty() bool {
	return cb.head == cb.tail && cb.headPhase == cb.tailPhase
}

func (cb *CheckpointBuffer) isFull() bool {
	return cb.head == cb.tail && cb.headPhase != cb.tailPhase
}

// FreeCount returns C − used (cb_free_count).
func (cb *CheckpointBuffer) FreeCount() uint64 {
	switch {
	case cb.isFull():
		return 0
	case cb.isEmpty():
		return cb.capacity
	case cb.headPhase == cb.tailPhase:
		return cb.capacity - (cb.tail - cb.head)
	default:
		return cb.capacity - (cb.tail - cb.head + cb.capacity)
	}
}

// StallCheckpoint reports whether n new checkpoints would not fit.
func (cb *CheckpointBuffer) StallCheckpoint(n uint64) bool {
	return cb.FreeCount() < n
}

// Checkpoint snapshots rmtSnapshot/unmappedSnapshot into the tail slot,
// zeroes its counters and flags, and advances the tail. The caller must
// increment physical-register usage for every PRID in rmtSnapshot
// itself — that is an RCR-level (renamer) responsibility, not this
// ring's.
func (cb *CheckpointBuffer) Checkpoint(rmtSnapshot []PRID, unmappedSnapshot []bool) {
	if cb.isFull() {
		coreerr.Abort("checkpoint.Checkpoint", "checkpoint buffer is full")
	}
	x := cb.tail
	cb.entries[x].rmt = append([]PRID(nil), rmtSnapshot...)
	cb.entries[x].unmapped = append([]bool(nil), unmappedSnapshot...)
	cb.entries[x].reset()

	cb.tail++
	if cb.tail == cb.capacity {
		cb.tail = 0
		cb.tailPhase = !cb.tailPhase
	}
}

// GetCheckpointID attributes one instruction to the nearest prior
// (newest installed) checkpoint — tail−1 mod C — incrementing the
// relevant counters and setting the amo/csr flags, and unconditionally
// incrementing the uncompleted-instruction counter.
func (cb *CheckpointBuffer) GetCheckpointID(load, store, branch, amo, csr bool) CID {
	var cid CID
	if cb.tail == 0 {
		cid = cb.capacity - 1
	} else {
		cid = cb.tail - 1
	}

	e := &cb.entries[cid]
	if load {
		e.loads++
	}
	if store {
		e.stores++
	}
	if branch {
		e.branches++
	}
	e.amo = amo
	e.csr = csr
	e.uncompleted++

	return cid
}

// SetComplete decrements the uncompleted-instruction counter of cid.
func (cb *CheckpointBuffer) SetComplete(cid CID) {
	if cb.entries[cid].uncompleted == 0 {
		coreerr.Abort("checkpoint.SetComplete", "uncompleted counter underflow at cid=%d", cid)
	}
	cb.entries[cid].uncompleted--
}

// SetException marks cid's exception flag.
func (cb *CheckpointBuffer) SetException(cid CID) {
	cb.entries[cid].exception = true
}

// Precommit reports whether the head checkpoint is ready to begin bulk
// commit: its uncompleted counter is zero, and either a newer
// checkpoint exists or the head is itself flagged as an exception. On
// success it returns the head's CID and a copy of its counters/flags.
func (cb *CheckpointBuffer) Precommit() (cid CID, loads, stores, branches uint64, amo, csr, exception, ok bool) {
	if cb.isEmpty() {
		coreerr.Abort("checkpoint.Precommit", "precommit on empty checkpoint buffer")
	}
	cid = cb.head
	e := &cb.entries[cid]
	loads, stores, branches = e.loads, e.stores, e.branches
	amo, csr, exception = e.amo, e.csr, e.exception

	nextCID := (cid + 1) % cb.capacity
	ok = e.uncompleted == 0 && (cb.IsValid(nextCID) || e.exception)
	return
}

// FreeCheckpoint resets the head's counters/flags and advances head. At
// least one newer checkpoint must remain — the ring is never left
// empty between committed states.
func (cb *CheckpointBuffer) FreeCheckpoint() {
	used := cb.capacity - cb.FreeCount()
	if used <= 1 {
		coreerr.Abort("checkpoint.FreeCheckpoint", "no newer checkpoint to retire into")
	}
	cb.entries[cb.head].reset()

	cb.head++
	if cb.head == cb.capacity {
		cb.head = 0
		cb.headPhase = !cb.headPhase
	}
}

// IsValid reports whether cid lies within the live window [head, tail)
// modulo C.
func (cb *CheckpointBuffer) IsValid(cid CID) bool {
	if cb.isFull() {
		return true
	}
	if cb.isEmpty() {
		return false
	}
	if cb.headPhase == cb.tailPhase {
		return cid >= cb.head && cid < cb.tail
	}
	return cid >= cb.head || cid < cb.tail
}

// Head / Tail expose the ring pointers for the renamer's rollback logic.
func (cb *CheckpointBuffer) Head() CID { return cb.head }
func (cb *CheckpointBuffer) Tail() CID { return cb.tail }

// Capacity returns C, the fixed ring size.
func (cb *CheckpointBuffer) Capacity() uint64 { return cb.capacity }

// EntryCounters exposes cid's inflight load/store/branch counts, used
// by rollback to tally what a squashed checkpoint range was carrying.
func (cb *CheckpointBuffer) EntryCounters(cid CID) (loads, stores, branches uint64) {
	e := &cb.entries[cid]
	return e.loads, e.stores, e.branches
}

// SnapshotRMT / SnapshotUnmapped expose an entry's frozen state; the
// renamer uses these to restore RMT/unmapped[] during rollback and to
// decrement usage for squashed checkpoints.
func (cb *CheckpointBuffer) SnapshotRMT(cid CID) []PRID      { return cb.entries[cid].rmt }
func (cb *CheckpointBuffer) SnapshotUnmapped(cid CID) []bool { return cb.entries[cid].unmapped }

// ResetEntry clears cid's counters and flags in place (used when a
// rollback retracts the tail: the checkpoint being rolled back into is
// reset, and so is whatever now-empty slot becomes the new tail).
func (cb *CheckpointBuffer) ResetEntry(cid CID) {
	cb.entries[cid].reset()
}

// RetractTailTo moves the tail back to newTail, flipping the tail phase
// each time the index wraps past capacity−1 → 0, exactly mirroring the
// forward Checkpoint() wraparound in reverse. Used by rollback to
// discard every checkpoint created after the rollback target.
func (cb *CheckpointBuffer) RetractTailTo(newTail CID) {
	for cb.tail != newTail {
		if cb.tail == 0 {
			cb.tail = cb.capacity - 1
		} else {
			cb.tail--
		}
		if cb.tail == cb.capacity-1 {
			cb.tailPhase = !cb.tailPhase
		}
	}
}

// SquashMask is a per-CID predicate: bit c is set iff downstream stages
// must invalidate any inflight instruction whose checkpoint ID is c.
// A plain bool slice rather than a fixed-width integer bitmask, so the
// checkpoint count is never artificially capped by a register width.
type SquashMask struct {
	bits []bool
}

// Test reports whether cid is set in the mask.
func (m SquashMask) Test(cid CID) bool { return m.bits[cid] }

// GenerateSquashMask walks (i+1) mod C from rc (exclusive) until tail
// (exclusive), marking every CID strictly between them. Split out of
// the renamer's rollback because it depends only on ring arithmetic,
// not on physical-register usage.
func (cb *CheckpointBuffer) GenerateSquashMask(rc CID) SquashMask {
	mask := SquashMask{bits: make([]bool, cb.capacity)}
	i := (rc + 1) % cb.capacity
	for i != cb.tail {
		mask.bits[i] = true
		i = (i + 1) % cb.capacity
	}
	return mask
}
