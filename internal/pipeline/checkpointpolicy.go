// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Checkpoint insertion policy
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// Four rules, checked in order, deciding whether the rename stage opens
// a checkpoint before and/or after the instruction it is currently
// renaming. Kept as a pure function of explicit classification inputs
// rather than tied to any particular opcode encoding: the trimmed ISA
// this simulator runs has no AMO or CSR instructions at all, so rule 1
// would otherwise never be exercised by anything short of a synthetic
// test.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package pipeline

import "github.com/suprax-arch/ooosim/internal/golden"

// decideCheckpoint implements the four insertion rules against a
// running since-last-checkpoint counter. before requests a checkpoint
// be opened ahead of the instruction being renamed (isolating it into
// a fresh interval); after requests one be closed behind it.
func decideCheckpoint(sinceLast, maxInstr uint64, amo, csr, willExcept bool, predictedNextPC, actualNextPC uint64) (before, after bool) {
	switch {
	case amo || csr:
		before = sinceLast != 0
		after = true
	case actualNextPC != predictedNextPC || sinceLast == maxInstr:
		after = true
	case willExcept:
		before = sinceLast != 0
	}
	return before, after
}

// classify reports which operand fields an instruction of this opcode
// reads and writes, in the same shape the renamer's rename_rsrc/
// rename_rdst calls expect. CMP and BEQ carry no renamed destination:
// BEQ's condition comes from the most recent CMP via the oracle, not
// from a physical register.
func classify(opcode uint8) (hasSrc1, hasSrc2, hasDest bool) {
	switch opcode {
	case golden.OpTRAP, golden.OpBEQ:
		return false, false, false
	case golden.OpCMP:
		return true, true, false
	case golden.OpMOVS:
		return true, true, false
	case golden.OpMOVL:
		return true, false, true
	case golden.OpADDI, golden.OpMOVI:
		return true, false, true
	case golden.OpNOT:
		return true, false, true
	default:
		return true, true, true
	}
}

func isLoad(opcode uint8) bool   { return opcode == golden.OpMOVL }
func isStore(opcode uint8) bool  { return opcode == golden.OpMOVS }
func isBranch(opcode uint8) bool { return opcode == golden.OpBEQ }
