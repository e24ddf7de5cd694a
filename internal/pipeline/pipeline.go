// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Machine — the cycle-stepped pipeline wiring fetch, rename, dispatch,
// schedule/execute, and retire together
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// Step() runs exactly one cycle through every stage, in order, each a
// plain method call — no goroutines, no channels, no preemption.
// "Superscalar" width is modeled by looping up to a configured count
// per stage.
//
// Two independent instances of the functional reference are wired in,
// serving genuinely different roles: lookahead is consulted during
// rename, stepping forward exactly once per instruction in program
// order (the same order rename itself processes), to answer "what
// will this instruction actually do" for the checkpoint-insertion
// policy and eventual branch resolution. checker is consulted only at
// retire, independently re-deriving what already-committed state
// should be and comparing it against what the speculative pipeline
// produced. Using one instance for both would require it to be in two
// places in program order at once.
//
// Branch condition codes (the result of the most recent CMP) are kept
// as ordinary sequential machine state here, not renamed or
// checkpointed — the same simplification golden.Golden itself makes.
// A rollback landing between a CMP and its BEQ can leave this state
// stale; this is a bounded, documented gap rather than a full
// condition-code renaming scheme, consistent with the trimmed ISA's
// scope.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/suprax-arch/ooosim/internal/checkpoint"
	"github.com/suprax-arch/ooosim/internal/config"
	"github.com/suprax-arch/ooosim/internal/coreerr"
	"github.com/suprax-arch/ooosim/internal/fetchunit"
	"github.com/suprax-arch/ooosim/internal/golden"
	"github.com/suprax-arch/ooosim/internal/issuequeue"
	"github.com/suprax-arch/ooosim/internal/renamer"
	"github.com/suprax-arch/ooosim/internal/telemetry"
)

type retireState int

const (
	stateIdle retireState = iota
	stateBulkCommit
	stateFinalize
)

// payloadSlot is one in-flight instruction's decoded and renamed state,
// addressed by the payload buffer's ring index.
type payloadSlot struct {
	valid bool
	pc    uint64
	instr golden.Instruction
	cid   checkpoint.CID

	hasSrc       [2]bool
	srcPR        [2]renamer.PRID
	srcConsumed  [2]bool
	hasDest      bool
	destPR       renamer.PRID
	destConsumed bool

	issued    bool
	issueSlot uint8

	predictedNextPC uint64
	actualNextPC    uint64
	willExcept      bool

	destValue uint64
	destValid bool
}

type bulkCommitProgress struct {
	cid                                                checkpoint.CID
	loadsRemaining, storesRemaining, branchesRemaining uint64
	regsRemaining                                      uint64
	amo, csr                                           bool
	resumePC                                           uint64
}

// Machine is the composed, cycle-stepped pipeline.
type Machine struct {
	cfg config.Config

	mem       *golden.Memory
	fetch     *fetchunit.FetchUnit
	rename    *renamer.Renamer
	iq        *issuequeue.IssueQueue
	lookahead *golden.Golden
	checker   *golden.Golden
	payload   *PayloadBuffer

	slots          []payloadSlot
	issueSlotOwner map[uint8]uint64

	renameCursor   uint64
	dispatchCursor uint64
	sinceLast      uint64

	state retireState
	bc    bulkCommitProgress

	flags uint8

	cycles     uint64
	retired    uint64
	rollbacks  uint64
	exceptions uint64

	log *zap.SugaredLogger
}

// New builds a machine whose speculative datapath uses mem and whose
// two functional-reference instances each get their own clone of it, reset to
// cfg.ResetPC with traps vectoring to cfg.TrapVector. log may be nil,
// in which case diagnostics are discarded.
func New(cfg config.Config, mem *golden.Memory, log *zap.SugaredLogger) *Machine {
	if log == nil {
		log = telemetry.NewNop()
	}
	return &Machine{
		cfg:            cfg,
		mem:            mem,
		fetch:          fetchunit.New(cfg.ResetPC),
		rename:         renamer.New(cfg.NLogRegs, cfg.NPhysRegs, cfg.NCheckpoints),
		iq:             issuequeue.New(cfg.NPhysRegs),
		lookahead:      golden.New(mem.Clone(), cfg.ResetPC, cfg.TrapVector),
		checker:        golden.New(mem.Clone(), cfg.ResetPC, cfg.TrapVector),
		payload:        NewPayloadBuffer(cfg.NActive),
		slots:          make([]payloadSlot, cfg.NActive),
		issueSlotOwner: make(map[uint8]uint64),
		log:            log,
	}
}

// Mismatches returns every divergence the retire-time checker has
// recorded so far.
func (m *Machine) Mismatches() []string { return m.checker.Mismatches() }

// Cycles returns the number of Step calls executed so far.
func (m *Machine) Cycles() uint64 { return m.cycles }

// Stats reports a summary line in the same spirit as the teacher's own
// end-of-run statistics block: cycle count, instructions retired,
// rollbacks taken, and exceptions handled.
func (m *Machine) Stats() string {
	ipc := float64(0)
	if m.cycles > 0 {
		ipc = float64(m.retired) / float64(m.cycles)
	}
	return fmt.Sprintf(
		"cycles=%d retired=%d ipc=%.3f rollbacks=%d exceptions=%d",
		m.cycles, m.retired, ipc, m.rollbacks, m.exceptions,
	)
}

// Step runs exactly one cycle: fetch, rename, dispatch, schedule and
// execute, then retire.
func (m *Machine) Step() {
	m.cycles++
	m.stepFetch()
	m.stepRename()
	m.stepDispatch()
	m.stepSchedule()
	m.stepRetire()
}

// stepFetch pulls up to cfg.FetchWidth instructions into fresh payload
// slots, consulting the branch predictor for conditional branches and
// advancing (or redirecting) the fetch PC accordingly.
func (m *Machine) stepFetch() {
	for i := uint64(0); i < m.cfg.FetchWidth; i++ {
		if !m.fetch.Active() {
			return
		}
		index, ok := m.payload.Push()
		if !ok {
			return
		}

		pc := m.fetch.NextPC()
		word := m.mem.Fetch16(pc)
		instr := golden.Decode(word)

		slot := &m.slots[index]
		*slot = payloadSlot{valid: true, pc: pc, instr: instr}

		if isBranch(instr.Opcode) {
			taken, _ := m.fetch.Predict(pc)
			if taken {
				slot.predictedNextPC = pc + 2*uint64(int64(instr.Imm))
				m.fetch.Flush(slot.predictedNextPC)
			} else {
				slot.predictedNextPC = pc + 2
				m.fetch.Advance()
			}
		} else {
			slot.predictedNextPC = pc + 2
			m.fetch.Advance()
		}
	}
}

// renameCandidate is one instruction's checkpoint-insertion verdict,
// computed against a scratch copy of the lookahead oracle during the
// bundle dry run and replayed, unchanged, during the commit pass.
type renameCandidate struct {
	index                     uint64
	hasSrc1, hasSrc2, hasDest bool
	actualNextPC              uint64
	willExcept                bool
	before, after             bool
}

// stepRename performs the dry run the rename stage owes the whole
// candidate bundle before touching any renamer state: a scratch clone
// of the lookahead oracle is advanced through up to cfg.DispatchWidth
// instructions to tally how many checkpoints and destination
// registers the bundle as a whole would need, exactly as the
// checkpoint-insertion policy would decide for each instruction in
// turn. Only if both stall_checkpoint and stall_reg report the tally
// fits does any instruction in the bundle actually get renamed — a
// partial rename of the bundle never happens, matching atomic bundle
// rename. On success, the scratch oracle (now advanced exactly through
// the committed instructions) becomes the new authoritative lookahead.
func (m *Machine) stepRename() {
	scratch := m.lookahead.Clone()
	sinceLast := m.sinceLast

	var bundle []renameCandidate
	needCkpt, needDst := uint64(0), uint64(0)

	cursor := m.renameCursor
	for i := uint64(0); i < m.cfg.DispatchWidth; i++ {
		if cursor == m.payload.Tail() {
			break
		}
		slot := &m.slots[cursor]
		if !slot.valid {
			break
		}

		hasSrc1, hasSrc2, hasDest := classify(slot.instr.Opcode)
		_, _, actualNextPC, willExcept := scratch.Advance()

		before, after := decideCheckpoint(sinceLast, m.cfg.MaxInstrBetweenCheckpoints, false, false, willExcept, slot.predictedNextPC, actualNextPC)
		if before {
			needCkpt++
			sinceLast = 0
		}
		if after {
			needCkpt++
			sinceLast = 0
		} else {
			sinceLast++
		}
		if hasDest {
			needDst++
		}

		bundle = append(bundle, renameCandidate{
			index: cursor, hasSrc1: hasSrc1, hasSrc2: hasSrc2, hasDest: hasDest,
			actualNextPC: actualNextPC, willExcept: willExcept, before: before, after: after,
		})
		cursor = (cursor + 1) % m.cfg.NActive
	}

	if len(bundle) == 0 {
		return
	}
	if m.rename.StallCheckpoint(needCkpt) || m.rename.StallReg(needDst) {
		return
	}

	for _, c := range bundle {
		slot := &m.slots[c.index]
		slot.actualNextPC = c.actualNextPC
		slot.willExcept = c.willExcept

		if c.before {
			m.rename.Checkpoint()
		}

		if c.hasSrc1 {
			slot.srcPR[0] = m.rename.RenameSource(uint64(slot.instr.Src1))
			slot.hasSrc[0] = true
		}
		if c.hasSrc2 {
			slot.srcPR[1] = m.rename.RenameSource(uint64(slot.instr.Src2))
			slot.hasSrc[1] = true
		}
		if c.hasDest {
			slot.destPR = m.rename.RenameDest(uint64(slot.instr.Dst))
			slot.hasDest = true
		}

		cid := m.rename.GetCheckpointID(isLoad(slot.instr.Opcode), isStore(slot.instr.Opcode), isBranch(slot.instr.Opcode), false, false)
		slot.cid = cid
		if c.willExcept {
			m.rename.SetException(cid)
		}

		if c.after {
			m.rename.Checkpoint()
		}
	}

	m.lookahead = scratch
	m.sinceLast = sinceLast
	m.renameCursor = cursor
}

// stepDispatch installs already-renamed instructions into the issue
// queue, marking destination registers as pending until their
// producer writes back.
func (m *Machine) stepDispatch() {
	for i := uint64(0); i < m.cfg.DispatchWidth; i++ {
		if m.dispatchCursor == m.renameCursor {
			return
		}
		slot := &m.slots[m.dispatchCursor]

		src1, src2 := renamer.PRID(0), renamer.PRID(0)
		if slot.hasSrc[0] {
			src1 = slot.srcPR[0]
		}
		if slot.hasSrc[1] {
			src2 = slot.srcPR[1]
		}
		dest := renamer.PRID(0)
		if slot.hasDest {
			dest = slot.destPR
		}

		issueSlot, ok := m.iq.Dispatch(src1, src2, dest, slot.hasSrc[0], slot.hasSrc[1], slot.cid)
		if !ok {
			return
		}
		slot.issued = true
		slot.issueSlot = issueSlot
		m.issueSlotOwner[issueSlot] = m.dispatchCursor
		if slot.hasDest {
			m.iq.MarkPending(slot.destPR)
		}

		m.dispatchCursor = (m.dispatchCursor + 1) % m.cfg.NActive
	}
}

// stepSchedule selects ready instructions from the issue queue,
// executes them against the renamed physical registers, and writes
// the result back. A branch whose resolved outcome differs from the
// fetch unit's prediction triggers the full selective-squash recovery.
func (m *Machine) stepSchedule() {
	for i := uint64(0); i < m.cfg.IssueWidth; i++ {
		issueSlot, ok := m.iq.Select()
		if !ok {
			return
		}
		index, known := m.issueSlotOwner[issueSlot]
		if !known {
			coreerr.Abort("pipeline.stepSchedule", "issue slot %d has no owning payload entry", issueSlot)
		}
		delete(m.issueSlotOwner, issueSlot)
		slot := &m.slots[index]

		var a, b uint64
		if slot.hasSrc[0] {
			a = m.rename.Read(slot.srcPR[0])
			slot.srcConsumed[0] = true
		}
		if slot.hasSrc[1] {
			b = m.rename.Read(slot.srcPR[1])
			slot.srcConsumed[1] = true
		}
		if slot.instr.Opcode == golden.OpADDI || slot.instr.Opcode == golden.OpMOVI {
			b = uint64(int64(slot.instr.Imm))
		}

		var value uint64
		var valid bool
		switch slot.instr.Opcode {
		case golden.OpMOVL:
			value, valid = m.mem.Load(a), true
		case golden.OpMOVS:
			m.mem.Store(a, b)
		case golden.OpCMP:
			m.flags = golden.CmpOutcome(a, b)
		case golden.OpBEQ, golden.OpTRAP:
			// resolved entirely via the lookahead oracle at rename time
		default:
			value, valid = golden.ExecuteALU(slot.instr.Opcode, a, b)
		}

		if slot.hasDest {
			m.rename.Write(slot.destPR, value)
			slot.destConsumed = true
			m.iq.MarkReady(slot.destPR)
		}
		m.iq.Complete(issueSlot)
		m.rename.SetComplete(slot.cid)

		slot.destValue, slot.destValid = value, valid

		if isBranch(slot.instr.Opcode) {
			m.resolveBranch(index, slot)
		}
	}
}

// resolveBranch compares the branch's oracle-known outcome against
// what fetch predicted, training the predictor unconditionally and
// performing the spec's selective-squash recovery when they disagree.
func (m *Machine) resolveBranch(index uint64, slot *payloadSlot) {
	actualTaken := slot.actualNextPC != slot.pc+2
	m.fetch.Mispredict(slot.pc, actualTaken, slot.actualNextPC)
	if slot.actualNextPC == slot.predictedNextPC {
		return
	}

	mask, _, _, _ := m.rename.Rollback(slot.cid, true)
	m.sinceLast = 0
	m.iq.Squash(mask)
	m.squashPayloadAfter(index, mask)
	m.rollbacks++
	m.log.Debugw("branch misprediction recovery",
		"pc", slot.pc, "predicted", slot.predictedNextPC, "actual", slot.actualNextPC, "cid", slot.cid)
}

// squashPayloadAfter releases every inflight register reference a
// squashed instruction was still holding and retracts the payload
// buffer's tail to just past the mispredicted branch.
func (m *Machine) squashPayloadAfter(branchIndex uint64, mask checkpoint.SquashMask) {
	next := (branchIndex + 1) % m.cfg.NActive
	for i := next; i != m.payload.Tail(); i = (i + 1) % m.cfg.NActive {
		slot := &m.slots[i]
		if !slot.valid || !mask.Test(slot.cid) {
			continue
		}
		if slot.hasSrc[0] && !slot.srcConsumed[0] {
			m.rename.DecUsage(slot.srcPR[0])
		}
		if slot.hasSrc[1] && !slot.srcConsumed[1] {
			m.rename.DecUsage(slot.srcPR[1])
		}
		if slot.hasDest && !slot.destConsumed {
			m.rename.DecUsage(slot.destPR)
		}
		if slot.issued {
			delete(m.issueSlotOwner, slot.issueSlot)
		}
		slot.valid = false
	}
	m.payload.Rollback(next)
	if m.renameCursorPast(next) {
		m.renameCursor = next
	}
	if m.dispatchCursorPast(next) {
		m.dispatchCursor = next
	}
}

// renameCursorPast and dispatchCursorPast report whether the respective
// cursor lies at or beyond the given ring position (counting forward
// from the payload head), meaning that cursor must be retracted to
// avoid processing a slot that was just discarded.
func (m *Machine) renameCursorPast(retractTo uint64) bool {
	return m.between(m.payload.Head(), m.renameCursor, retractTo)
}

func (m *Machine) dispatchCursorPast(retractTo uint64) bool {
	return m.between(m.payload.Head(), m.dispatchCursor, retractTo)
}

// between reports whether x lies outside the half-open ring interval
// [lo, hi) going forward from lo, i.e. at or past hi, used to detect a
// cursor that has run past a newly retracted tail.
func (m *Machine) between(lo, x, hi uint64) bool {
	ringSize := m.cfg.NActive
	norm := func(v uint64) uint64 { return (v - lo + ringSize) % ringSize }
	return norm(x) >= norm(hi)
}

// stepRetire drives the IDLE/BULK_COMMIT/FINALIZE state machine.
func (m *Machine) stepRetire() {
	switch m.state {
	case stateIdle:
		m.retireIdle()
	case stateBulkCommit:
		m.retireBulkCommit()
	case stateFinalize:
		m.retireFinalize()
	}
}

func (m *Machine) retireIdle() {
	cid, loads, stores, branches, amo, csr, exception, ok := m.rename.Precommit()
	if !ok {
		return
	}

	if exception {
		pc := m.fetch.NextPC()
		if !m.payload.Empty() {
			pc = m.slots[m.payload.Head()].pc
		}
		m.checker.TakeTrap(m.cfg.TrapVector, pc)
		mask, _, _, _ := m.rename.Squash()
		m.iq.Squash(mask)
		m.payload.Clear()
		m.fetch.Flush(m.cfg.TrapVector)
		m.renameCursor, m.dispatchCursor = 0, 0
		m.sinceLast = 0
		m.exceptions++
		m.log.Infow("exception taken, total squash", "pc", pc, "trap_vector", m.cfg.TrapVector, "cid", cid)
		return
	}

	m.bc = bulkCommitProgress{
		cid:               cid,
		loadsRemaining:    loads,
		storesRemaining:   stores,
		branchesRemaining: branches,
		regsRemaining:     m.cfg.NLogRegs,
		amo:               amo,
		csr:               csr,
	}
	m.state = stateBulkCommit
}

func (m *Machine) retireBulkCommit() {
	drained := uint64(0)
	for drained < m.cfg.RetireWidth && (m.bc.loadsRemaining > 0 || m.bc.storesRemaining > 0 || m.bc.branchesRemaining > 0 || m.bc.regsRemaining > 0) {
		switch {
		case m.bc.loadsRemaining > 0:
			m.bc.loadsRemaining--
		case m.bc.storesRemaining > 0:
			m.bc.storesRemaining--
		case m.bc.branchesRemaining > 0:
			m.fetch.Commit()
			m.bc.branchesRemaining--
		default:
			lr := m.cfg.NLogRegs - m.bc.regsRemaining
			m.rename.Commit(lr)
			m.bc.regsRemaining--
		}
		drained++
	}

	if m.bc.loadsRemaining == 0 && m.bc.storesRemaining == 0 && m.bc.branchesRemaining == 0 && m.bc.regsRemaining == 0 {
		m.rename.FreeCheckpoint()
		m.state = stateFinalize
	}
}

func (m *Machine) retireFinalize() {
	drained := uint64(0)
	exhausted := false
	for drained < m.cfg.RetireWidth {
		if m.payload.Head() == m.payload.Tail() {
			exhausted = true
			break
		}
		headIdx := m.payload.Head()
		slot := &m.slots[headIdx]
		if !slot.valid || slot.cid != m.bc.cid {
			exhausted = true
			break
		}

		m.payload.Pop()
		if ok := m.checker.Check(slot.pc, slot.destValue, slot.destValid); !ok {
			m.log.Errorw("retired instruction diverged from the functional reference", "pc", slot.pc)
			coreerr.Abort("pipeline.retireFinalize", "retired instruction at pc=%#x diverged from the functional reference", slot.pc)
		}
		m.retired++
		slot.valid = false
		drained++
	}

	if exhausted {
		if m.bc.amo || m.bc.csr {
			m.fetch.Flush(m.bc.resumePC)
		}
		m.state = stateIdle
	}
}
