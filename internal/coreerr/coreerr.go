// Package coreerr defines the structural-invariant-violation panic used
// throughout the renamer core. These can never trigger in a
// correctly-coupled pipeline; when one does, the simulator aborts rather
// than continuing on inconsistent state.
package coreerr

import "fmt"

// CoreError marks a structural invariant violation: free-list
// underflow/overflow, duplicate push, usage underflow, an invalid
// rollback target, and the like. It is always fatal.
type CoreError struct {
	Op  string
	Msg string
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Abort panics with a CoreError built from op and the formatted message.
// Callers at the top of the process (cmd/ooosim) recover this, log it,
// and exit non-zero; nothing below that boundary is expected to recover.
func Abort(op, format string, args ...any) {
	panic(&CoreError{Op: op, Msg: fmt.Sprintf(format, args...)})
}
