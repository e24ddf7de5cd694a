// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Collaborator capability interfaces
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// The renamer core owns nothing outside its own four structures; every
// neighboring pipeline stage is reached only through one of these small
// method vocabularies, never by reaching into a concrete type. This is
// what lets internal/renamer and internal/pipeline be exercised against
// hand-written stubs in tests as readily as against the concrete
// adaptations in internal/issuequeue, internal/fetchunit, and
// internal/golden.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package collab

import "github.com/suprax-arch/ooosim/internal/checkpoint"

// SquashMask is the per-checkpoint invalidation predicate a rollback produces.
type SquashMask = checkpoint.SquashMask

// FetchUnit is the instruction-supply and branch-prediction collaborator.
type FetchUnit interface {
	// Flush discards any in-flight fetch state and resumes fetching at pc.
	Flush(pc uint64)
	// Mispredict records the resolution of a predicted branch, training
	// the predictor and redirecting fetch if the outcome differed.
	Mispredict(tag uint64, taken bool, target uint64)
	// Commit notifies the unit that the oldest in-flight branch has retired.
	Commit()
	// Active reports whether fetch is currently supplying instructions
	// (false while stalled, e.g. waiting out a serializing instruction).
	Active() bool
}

// LSU is the load/store-queue collaborator.
type LSU interface {
	// Commit notifies the queue that the oldest load or store (or
	// atomic, counted as both) has retired.
	Commit(isLoad, isAMO bool)
	// Train records a completed load's ordering outcome for the
	// memory-disambiguation predictor.
	Train(isLoad bool)
	// Restore resets the queue's head/tail indices (and their phase
	// bits) to those recorded at the time a given instruction dispatched.
	Restore(lqIndex uint64, lqPhase bool, sqIndex uint64, sqPhase bool)
	// Flush discards all in-flight queue entries.
	Flush()
}

// IssueQueue is the instruction scheduler collaborator.
type IssueQueue interface {
	// Squash invalidates every entry whose checkpoint ID is set in mask.
	Squash(mask SquashMask)
	// Flush discards every entry unconditionally.
	Flush()
}

// PayloadBuffer holds decoded, in-flight instructions keyed by program order.
type PayloadBuffer interface {
	// Pop removes and returns the oldest entry's index, if any remain.
	Pop() (index uint64, ok bool)
	// Rollback invalidates the entry at index (and, by the caller's
	// convention, everything younger than it).
	Rollback(index uint64)
	// Clear discards every entry.
	Clear()
	// Head and Tail report the buffer's current ring indices.
	Head() uint64
	Tail() uint64
}

// TrapMachinery delivers an architectural exception to the surrounding
// functional reference.
type TrapMachinery interface {
	TakeTrap(trap uint64, pc uint64)
}

// Checker is invoked once per retired instruction to compare simulated
// state against the functional reference. A false return means
// retirement committed something the reference disagrees with — a
// structural bug in the simulator itself, never an architectural fault.
type Checker interface {
	Check(pc uint64, destValue uint64, destValid bool) bool
}
