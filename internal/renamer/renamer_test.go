package renamer

import "testing"

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RENAMER TESTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// WHAT WE'RE TESTING:
// ──────────────────
// The composed rename/commit/rollback protocol against the concrete
// scenarios it has to get right: a basic rename round-trip, checkpoint
// + rollback, single-register commit, branch misprediction recovery,
// and the boundary/invariant behaviors that make the whole thing safe
// to reclaim registers aggressively.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// newRenamer4x8x4 builds L=4, P=8, C=4 — the configuration the walk-through
// scenarios below are built around.
func newRenamer4x8x4() *Renamer {
	return New(4, 8, 4)
}

func TestNew_InitialState(t *testing.T) {
	r := newRenamer4x8x4()

	for lr := LRID(0); lr < 4; lr++ {
		if got := r.rmt.Read(lr); got != PRID(lr) {
			t.Errorf("rmt[%d] = %d, want %d", lr, got, lr)
		}
	}
	if r.fl.Count() != 4 {
		t.Fatalf("free list count = %d, want 4", r.fl.Count())
	}
	if r.StallReg(4) {
		t.Fatal("stall_reg(4) should be false, exactly P-L entries are free")
	}
	if !r.StallReg(5) {
		t.Fatal("stall_reg(5) should be true, only 4 entries are free")
	}
}

func TestS1_BasicRenameRoundTrip(t *testing.T) {
	r := newRenamer4x8x4()

	srcPR := r.RenameSource(1)
	if srcPR != 1 {
		t.Fatalf("source rename of lr=1 = p%d, want p1", srcPR)
	}
	if r.prm.Usage(1) != 2 { // 1 from the initial checkpoint snapshot + 1 from this source read
		t.Fatalf("usage[1] = %d, want 2", r.prm.Usage(1))
	}

	dstPR := r.RenameDest(0)
	if dstPR != 4 {
		t.Fatalf("dest rename of lr=0 = p%d, want p4 (first free entry)", dstPR)
	}

	if got := r.rmt.Read(0); got != 4 {
		t.Fatalf("rmt[0] = %d, want 4", got)
	}
	if !r.prm.IsUnmapped(0) {
		t.Fatal("p0 should be unmapped after its occupant lr=0 was renamed away")
	}
	if r.prm.IsUnmapped(4) {
		t.Fatal("p4 should be mapped after being renamed into lr=0")
	}
	if r.fl.Count() != 3 {
		t.Fatalf("free list count = %d, want 3 after one dest rename", r.fl.Count())
	}
}

func TestS2_CheckpointAndRollback(t *testing.T) {
	r := newRenamer4x8x4()
	r.RenameDest(0) // rmt[0] = p4

	r.Checkpoint() // checkpoint mid: rmt=[4,1,2,3]
	midCID := r.cb.Tail() - 1

	r.RenameDest(1) // rmt[1] = p5, unmaps old pr=1 (not yet reclaimed: still checkpoint-referenced)

	r.Checkpoint() // checkpoint newer: rmt=[4,5,2,3]
	newerCID := r.cb.Tail() - 1

	mask, _, _, _ := r.Rollback(midCID, false)

	if got := r.rmt.Read(0); got != 4 {
		t.Fatalf("rmt[0] after rollback = %d, want 4 (preserved from the checkpointed state)", got)
	}
	if got := r.rmt.Read(1); got != 1 {
		t.Fatalf("rmt[1] after rollback = %d, want 1 (restored)", got)
	}
	if mask.Test(midCID) {
		t.Fatal("the rollback target itself must not be squashed")
	}
	if !mask.Test(newerCID) {
		t.Fatal("squash mask should mark the checkpoint installed after the rollback target")
	}

	// p5 was renamed in by the now-squashed instruction; once the pipeline's
	// selective squash drains its inflight destination reference (the one
	// part Rollback itself does not own), it becomes reclaimable.
	if r.prm.Usage(5) != 1 {
		t.Fatalf("usage[5] = %d, want 1 (only the inflight write reference remains)", r.prm.Usage(5))
	}
	r.DecUsage(5)
	if r.prm.Usage(5) != 0 || !r.prm.IsUnmapped(5) {
		t.Fatal("p5 should now be unmapped with zero usage")
	}
	if r.fl.Count() == 0 {
		t.Fatal("p5 should have been reclaimed onto the free list")
	}
}

func TestS3_CommitOneRegister(t *testing.T) {
	r := newRenamer4x8x4()
	r.RenameDest(0) // rmt[0] = p4

	r.Checkpoint() // snapshots rmt=[4,1,2,3]; head's frozen rmt[0] is still p0 (old value), usage[0] stays 1

	usageBefore := r.prm.Usage(0)
	r.Commit(0)
	if r.prm.Usage(0) != usageBefore-1 {
		t.Fatalf("usage[0] = %d, want %d after commit", r.prm.Usage(0), usageBefore-1)
	}

	if got := r.rmt.Read(0); got != 4 {
		t.Fatal("commit must not mutate the live RMT")
	}
}

func TestS5_MispredictionRecovery(t *testing.T) {
	// WHY: the checkpoint opened immediately after a mispredicted branch
	// (C, here) is the rollback's restore target — its own wrong-path
	// counts are discarded by resetting it, not by marking its squash
	// bit. Only checkpoints strictly newer than that (D) are marked for
	// squash, and only their counts are summed into the totals.
	r := newRenamer4x8x4() // capacity 4: head, B, C, D exactly fill the ring

	r.Checkpoint() // B installed
	bID := r.cb.Tail() - 1
	r.GetCheckpointID(false, false, true, false, false) // the branch itself, attributed to B

	r.Checkpoint() // C installed: the interval opened right after the branch
	cID := r.cb.Tail() - 1
	r.GetCheckpointID(true, true, false, false, false) // wrong-path load+store, mistakenly attributed to C

	r.Checkpoint() // D installed: a further wrong-path speculative interval
	dID := (r.cb.Tail() + r.cb.Capacity() - 1) % r.cb.Capacity()
	r.GetCheckpointID(true, false, true, false, false) // wrong-path load+branch, attributed to D

	mask, loads, stores, branches := r.Rollback(bID, true)

	if mask.Test(bID) {
		t.Fatal("B, older than the restore point, must not be squashed")
	}
	if mask.Test(cID) {
		t.Fatal("C is the restore target itself; its wrong-path counts are reset, not squash-masked")
	}
	if !mask.Test(dID) {
		t.Fatal("D, strictly newer than the restore target, must be squashed")
	}
	if loads != 1 || stores != 0 || branches != 1 {
		t.Fatalf("totals = (loads=%d stores=%d branches=%d), want (1,0,1) from D alone", loads, stores, branches)
	}
}

func TestS6_ExceptionUnblocksPrecommitWithNoNewerCheckpoint(t *testing.T) {
	r := newRenamer4x8x4()

	cid, _, _, _, _, _, _, ok := r.Precommit()
	if ok {
		t.Fatal("precommit should be false: only one checkpoint exists and it has no exception")
	}

	r.SetException(cid)
	_, _, _, _, _, _, exception, ok := r.Precommit()
	if !ok || !exception {
		t.Fatal("an exception on the sole checkpoint should unblock precommit")
	}

	r.Squash()
	if r.cb.FreeCount() != r.cb.Capacity()-1 {
		t.Fatal("after a total squash exactly one checkpoint should remain live")
	}
}

func TestBoundary_StallCheckpoint(t *testing.T) {
	r := newRenamer4x8x4()
	C := r.cb.Capacity()

	if !r.StallCheckpoint(C) {
		t.Fatal("stall_checkpoint(C) should be true: one checkpoint already occupies the ring")
	}
	if r.StallCheckpoint(C - 1) {
		t.Fatal("stall_checkpoint(C-1) should be false")
	}
}

func TestBoundary_RenameDestOnLastFreeEntryThenStalls(t *testing.T) {
	r := New(4, 5, 4) // exactly one free physical register

	if r.StallReg(1) {
		t.Fatal("one entry is free, stall_reg(1) should be false")
	}
	r.RenameDest(0)

	if !r.StallReg(1) {
		t.Fatal("free list is now empty, stall_reg(1) should be true")
	}
}

func TestI1_ReclaimedRegisterReturnsToFreeList(t *testing.T) {
	// WHY: p0's usage stays at 1 (the still-live initial checkpoint's
	// snapshot reference) after the first rename unmaps it, so it must
	// NOT be reclaimed yet — only once that last reference drains does
	// it reappear on the free list.
	r := newRenamer4x8x4()

	r.RenameDest(0) // rmt[0] = p4; p0 unmapped but usage=1 (checkpoint snapshot), stays off FL
	if r.fl.Count() != 3 {
		t.Fatalf("free list count = %d, want 3 (p0 not yet reclaimable)", r.fl.Count())
	}

	r.Write(4, 123) // drains the inflight write's reference on p4, now usage[4]=0 but still mapped

	r.RenameDest(0) // rmt[0] = p5; unmaps p4, whose usage is now 0 -> reclaimed onto FL
	if r.fl.Count() != 3 {
		t.Fatalf("free list count = %d, want 3 (one popped for p5, one reclaimed for p4)", r.fl.Count())
	}
	if r.prm.Usage(4) != 0 || !r.prm.IsUnmapped(4) {
		t.Fatal("p4 should be unmapped with zero usage after being reclaimed")
	}
}

func TestR1_CheckpointThenImmediateRollbackIsNoop(t *testing.T) {
	r := newRenamer4x8x4()
	before := append([]PRID(nil), snapshotRMT(r)...)

	r.Checkpoint()
	cid := r.cb.Head() + 1 // the checkpoint just installed is the new tail-1
	r.Rollback(cid, false)

	after := snapshotRMT(r)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("rmt[%d] = %d after no-op rollback, want %d", i, after[i], before[i])
		}
	}
}

func TestR3_CommitAllThenFreeCheckpointAdvancesHead(t *testing.T) {
	r := newRenamer4x8x4()
	r.Checkpoint()
	headBefore := r.cb.Head()

	for lr := LRID(0); lr < 4; lr++ {
		r.Commit(lr)
	}
	r.FreeCheckpoint()

	if r.cb.Head() == headBefore {
		t.Fatal("free_checkpoint should have advanced the head")
	}
}

func snapshotRMT(r *Renamer) []PRID {
	out := make([]PRID, 4)
	for lr := LRID(0); lr < 4; lr++ {
		out[lr] = r.rmt.Read(lr)
	}
	return out
}
