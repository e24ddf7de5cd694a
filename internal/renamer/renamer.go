// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Renamer — composes the free list, rename map table, register metadata,
// and checkpoint buffer behind the single operation set the pipeline calls.
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// Everything interesting about out-of-order correctness lives in how
// these four leaf structures stay mutually consistent: a destination
// rename pops a PRID off the free list and maps it; a checkpoint
// freezes the current mapping and raises usage for everything it
// freezes; a rollback restores a frozen mapping and lowers usage for
// everything that gets discarded along the way. None of the leaf types
// know about each other — this is the layer that wires them.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package renamer

import (
	"github.com/suprax-arch/ooosim/internal/checkpoint"
	"github.com/suprax-arch/ooosim/internal/coreerr"
	"github.com/suprax-arch/ooosim/internal/freelist"
	"github.com/suprax-arch/ooosim/internal/prm"
	"github.com/suprax-arch/ooosim/internal/rmt"
)

// LRID is a logical (architectural) register identifier.
type LRID = uint64

// PRID is a physical register identifier.
type PRID = uint64

// CID is a checkpoint identifier.
type CID = checkpoint.CID

// SquashMask is the per-CID invalidation predicate rollback produces.
type SquashMask = checkpoint.SquashMask

// Renamer is the composed rename/commit/rollback protocol.
type Renamer struct {
	fl  *freelist.FreeList
	rmt *rmt.RenameMapTable
	prm *prm.PhysRegFile
	cb  *checkpoint.CheckpointBuffer

	nPhysRegs uint64
	values    []uint64
}

// New builds a renamer for nLogRegs logical registers, nPhysRegs
// physical registers, and a checkpoint buffer of capacity nCheckpoints.
// At construction, logical register i maps to physical register i,
// those L registers are marked mapped with usage 1, the remainder sit
// on the free list, and one checkpoint capturing exactly that state is
// installed at the checkpoint buffer's head.
func New(nLogRegs, nPhysRegs, nCheckpoints uint64) *Renamer {
	if nPhysRegs <= nLogRegs {
		coreerr.Abort("renamer.New", "n_phys_regs (%d) must exceed n_log_regs (%d)", nPhysRegs, nLogRegs)
	}

	fl := freelist.New(nLogRegs, nPhysRegs-nLogRegs)
	table := rmt.New(nLogRegs)
	regs := prm.New(nPhysRegs, fl)

	for lr := LRID(0); lr < nLogRegs; lr++ {
		pr := table.Read(lr)
		regs.Map(pr)
		regs.IncUsage(pr)
	}

	cb := checkpoint.New(nCheckpoints)
	cb.Checkpoint(table.Snapshot(), regs.SnapshotUnmapped())

	return &Renamer{
		fl:        fl,
		rmt:       table,
		prm:       regs,
		cb:        cb,
		nPhysRegs: nPhysRegs,
		values:    make([]uint64, nPhysRegs),
	}
}

// StallReg reports whether n destination renames cannot proceed this cycle.
func (r *Renamer) StallReg(n uint64) bool { return r.fl.Count() < n }

// StallCheckpoint reports whether n new checkpoints cannot be installed this cycle.
func (r *Renamer) StallCheckpoint(n uint64) bool { return r.cb.StallCheckpoint(n) }

// RenameSource looks up lr's current physical register and marks one
// more inflight reference to it; the consumer decrements that
// reference with Read or DecUsage once the operand is consumed.
func (r *Renamer) RenameSource(lr LRID) PRID {
	pr := r.rmt.Read(lr)
	r.prm.IncUsage(pr)
	return pr
}

// RenameDest pops a fresh physical register for lr, retires lr's prior
// occupant, and installs the new mapping. The caller must have already
// consulted StallReg — an empty free list here is a structural bug,
// not a pipeline stall condition, and aborts.
func (r *Renamer) RenameDest(lr LRID) PRID {
	old := r.rmt.Read(lr)

	pr, ok := r.fl.Pop()
	if !ok {
		coreerr.Abort("renamer.RenameDest", "free list empty renaming lr=%d; caller skipped stall_reg", lr)
	}

	r.rmt.Write(lr, pr)
	r.prm.Map(pr)
	r.prm.IncUsage(pr) // the inflight writer's own reference
	r.prm.Unmap(old)   // reclaims old iff its usage has also reached zero

	return pr
}

// Read returns pr's stored value and consumes one inflight reference.
func (r *Renamer) Read(pr PRID) uint64 {
	v := r.values[pr]
	r.prm.DecUsage(pr)
	return v
}

// Write stores v into pr and consumes one inflight reference.
func (r *Renamer) Write(pr PRID, v uint64) {
	r.values[pr] = v
	r.prm.DecUsage(pr)
}

// IsReady / SetReady / ClearReady pass straight through to the register
// metadata ledger.
func (r *Renamer) IsReady(pr PRID) bool { return r.prm.IsReady(pr) }
func (r *Renamer) SetReady(pr PRID)     { r.prm.SetReady(pr) }
func (r *Renamer) ClearReady(pr PRID)   { r.prm.ClearReady(pr) }

// IncUsage / DecUsage expose the raw usage ledger to callers that hold
// a physical register reference outside of rename/read/write — e.g. a
// pipeline register snapshotting its own operands at dispatch.
func (r *Renamer) IncUsage(pr PRID) { r.prm.IncUsage(pr) }
func (r *Renamer) DecUsage(pr PRID) { r.prm.DecUsage(pr) }

// Checkpoint freezes the current RMT and unmapped-bit vector into the
// checkpoint buffer's tail slot, raising usage for every physical
// register in the frozen mapping so that a future rollback restoring a
// stale mapping only ever ages usage back down to what it already was.
func (r *Renamer) Checkpoint() {
	rmtSnap := r.rmt.Snapshot()
	unmappedSnap := r.prm.SnapshotUnmapped()
	for _, pr := range rmtSnap {
		r.prm.IncUsage(pr)
	}
	r.cb.Checkpoint(rmtSnap, unmappedSnap)
}

// GetCheckpointID attributes one instruction to the nearest prior
// checkpoint, tallying its load/store/branch/amo/csr classification.
func (r *Renamer) GetCheckpointID(load, store, branch, amo, csr bool) CID {
	return r.cb.GetCheckpointID(load, store, branch, amo, csr)
}

// SetComplete / SetException / IsCheckpointValid pass through to the
// checkpoint buffer.
func (r *Renamer) SetComplete(cid CID)          { r.cb.SetComplete(cid) }
func (r *Renamer) SetException(cid CID)         { r.cb.SetException(cid) }
func (r *Renamer) IsCheckpointValid(cid CID) bool { return r.cb.IsValid(cid) }

// Precommit reports whether the head checkpoint is ready to begin bulk
// commit, returning its identity and frozen counters/flags on success.
func (r *Renamer) Precommit() (cid CID, loads, stores, branches uint64, amo, csr, exception, ok bool) {
	return r.cb.Precommit()
}

// FreeCheckpoint retires the head checkpoint once retire has drained
// every counter it was carrying.
func (r *Renamer) FreeCheckpoint() { r.cb.FreeCheckpoint() }

// Commit consumes one architectural register of the head checkpoint:
// the physical register the head's frozen RMT held for lr loses the
// reference that checkpoint was keeping alive on its behalf.
func (r *Renamer) Commit(lr LRID) {
	headRMT := r.cb.SnapshotRMT(r.cb.Head())
	r.prm.DecUsage(headRMT[lr])
}

// Rollback restores the renamer to the state frozen at cid (or the
// checkpoint immediately after it, if next is true), releases usage
// for everything only the discarded checkpoints were keeping alive,
// and retracts the checkpoint buffer's tail to just past the
// restoration point. It returns the squash mask the pipeline uses to
// invalidate inflight instructions, plus the summed load/store/branch
// counts the discarded checkpoints were carrying.
func (r *Renamer) Rollback(cid CID, next bool) (mask SquashMask, totalLoads, totalStores, totalBranches uint64) {
	capacity := r.cb.Capacity()

	rc := cid
	if next {
		rc = (cid + 1) % capacity
	}
	if !r.cb.IsValid(rc) {
		coreerr.Abort("renamer.Rollback", "rollback target cid=%d is not a valid checkpoint", rc)
	}

	rmtSnap := r.cb.SnapshotRMT(rc)
	r.rmt.Restore(rmtSnap)

	unmappedSnap := r.cb.SnapshotUnmapped(rc)
	for pr := PRID(0); pr < r.nPhysRegs; pr++ {
		want, have := unmappedSnap[pr], r.prm.IsUnmapped(pr)
		switch {
		case want && !have:
			r.prm.Unmap(pr)
		case !want && have:
			r.prm.Map(pr)
		}
	}

	mask = r.cb.GenerateSquashMask(rc)

	tail := r.cb.Tail()
	for i := (rc + 1) % capacity; i != tail; i = (i + 1) % capacity {
		loads, stores, branches := r.cb.EntryCounters(i)
		totalLoads += loads
		totalStores += stores
		totalBranches += branches

		for _, pr := range r.cb.SnapshotRMT(i) {
			r.prm.DecUsage(pr)
		}
	}

	r.cb.ResetEntry(rc)
	r.cb.RetractTailTo((rc + 1) % capacity)
	if newTail := (rc + 1) % capacity; !r.cb.IsValid(newTail) {
		r.cb.ResetEntry(newTail)
	}

	return mask, totalLoads, totalStores, totalBranches
}

// Squash performs a total rollback to the oldest live checkpoint,
// invalidating everything renamed since. Equivalent to
// Rollback(cb_head, next=false).
func (r *Renamer) Squash() (mask SquashMask, totalLoads, totalStores, totalBranches uint64) {
	return r.Rollback(r.cb.Head(), false)
}
