// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Physical-Register Metadata — the ready/unmapped/usage ledger
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// Three parallel arrays indexed by PRID — no ownership graph needed,
// just plain arrays indexed by a small integer. This is the component
// that makes aggressive, correct reclamation possible: a register is
// safely reclaimable iff no RMT slot holds it (unmapped=1) and nothing
// inflight references it (usage=0).
// Coupling reclamation to the usage-reaches-zero-while-unmapped edge
// (in dec_usage and unmap below) avoids needing a per-checkpoint
// explicit free list.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package prm

import (
	"github.com/suprax-arch/ooosim/internal/coreerr"
	"github.com/suprax-arch/ooosim/internal/freelist"
)

// PRID is a physical register identifier, in [0, P).
type PRID = uint64

// PhysRegFile is the ready/unmapped/usage ledger for every physical register.
type PhysRegFile struct {
	ready    []bool
	unmapped []bool
	usage    []uint64
	fl       *freelist.FreeList
}

// New builds the metadata arrays for nPhysRegs registers, all ready and
// unmapped with zero usage — consistent with an empty pipeline. fl is
// the free list that unmap/dec_usage push reclaimed PRIDs onto.
func New(nPhysRegs uint64, fl *freelist.FreeList) *PhysRegFile {
	p := &PhysRegFile{
		ready:    make([]bool, nPhysRegs),
		unmapped: make([]bool, nPhysRegs),
		usage:    make([]uint64, nPhysRegs),
		fl:       fl,
	}
	for i := range p.ready {
		p.ready[i] = true
		p.unmapped[i] = true
	}
	return p
}

// IsReady / SetReady / ClearReady expose the ready bit; the renamer
// layer exposes thin pass-throughs of these for the pipeline to call.
func (p *PhysRegFile) IsReady(pr PRID) bool   { return p.ready[pr] }
func (p *PhysRegFile) SetReady(pr PRID)       { p.ready[pr] = true }
func (p *PhysRegFile) ClearReady(pr PRID)     { p.ready[pr] = false }
func (p *PhysRegFile) IsUnmapped(pr PRID) bool { return p.unmapped[pr] }
func (p *PhysRegFile) Usage(pr PRID) uint64   { return p.usage[pr] }

// IncUsage adds one live reference to pr.
func (p *PhysRegFile) IncUsage(pr PRID) {
	p.usage[pr]++
}

// DecUsage removes one live reference from pr. Decrementing below zero
// is a structural-invariant violation and aborts. If usage reaches zero
// while pr is unmapped, pr is immediately reclaimed onto the free list.
func (p *PhysRegFile) DecUsage(pr PRID) {
	if p.usage[pr] == 0 {
		coreerr.Abort("prm.DecUsage", "usage underflow on p%d", pr)
	}
	p.usage[pr]--
	if p.unmapped[pr] {
		p.reclaimIfFree(pr)
	}
}

// Map clears the unmapped bit: pr is now held by some RMT/checkpoint
// slot. The caller (renamer.rename_dest, rollback) must have already
// popped pr off the free list, or have verified it is not currently
// free — Map itself does not scan the free list to check.
func (p *PhysRegFile) Map(pr PRID) {
	p.unmapped[pr] = false
}

// Unmap sets the unmapped bit. If usage is already zero, pr is
// immediately pushed onto the free list; FreeList.Push aborts if pr
// was somehow already resident there.
func (p *PhysRegFile) Unmap(pr PRID) {
	p.unmapped[pr] = true
	p.reclaimIfFree(pr)
}

// SnapshotUnmapped returns a copy of the unmapped-bit vector, suitable
// for storing in a checkpoint buffer entry.
func (p *PhysRegFile) SnapshotUnmapped() []bool {
	cp := make([]bool, len(p.unmapped))
	copy(cp, p.unmapped)
	return cp
}

// Size returns P, the number of physical registers tracked.
func (p *PhysRegFile) Size() uint64 {
	return uint64(len(p.ready))
}

func (p *PhysRegFile) reclaimIfFree(pr PRID) {
	if p.unmapped[pr] && p.usage[pr] == 0 {
		p.fl.Push(pr)
	}
}
