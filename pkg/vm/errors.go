// Package vm — error handling and stack traces.
package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one call frame's context for a stack trace.
type StackFrame struct {
	Name       string
	SourceLine int
}

// Trace is handed to reporter.Uncaught as the untyped `state` payload
// (§6's reporter contract keeps this package-specific to avoid a
// pkg/reporter -> pkg/vm import cycle). It carries enough of the call
// stack to print a trace from the driver.
type Trace struct {
	Frames []StackFrame
}

func (t *Trace) String() string {
	var b strings.Builder
	for i := len(t.Frames) - 1; i >= 0; i-- {
		f := t.Frames[i]
		fmt.Fprintf(&b, "  at %s", f.Name)
		if f.SourceLine > 0 {
			fmt.Fprintf(&b, " [line %d]", f.SourceLine)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// FatalError is §7 error kind 5: stack overflow, corrupted bytecode,
// allocation failure. Never catchable by voxl `try`.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string { return e.Message }

func newFatal(format string, args ...interface{}) *FatalError {
	return &FatalError{Message: fmt.Sprintf(format, args...)}
}
