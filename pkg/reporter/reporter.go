// Package reporter defines the error-reporter contract (§6): the one
// external collaborator every stage of the pipeline talks to instead
// of formatting diagnostics itself.
//
// The core (scanner, parser, compiler, VM) never prints ANSI colors,
// never writes to stdout/stderr directly, and never decides on a
// message format — it calls one of these five entry points and lets
// the embedding application (a CLI, a test harness, an editor
// integration) decide how to render it. This keeps the core reusable
// outside a terminal.
package reporter

import "github.com/kristofer/voxl/pkg/srcmap"

// Reporter receives diagnostics from every stage of the pipeline.
type Reporter interface {
	// ScannerError reports an illegal character, unterminated string,
	// or bad \u escape found at the given byte range.
	ScannerError(sm *srcmap.SourceMap, start, end int, msg string)

	// ParserError reports an unexpected token or missing punctuation.
	ParserError(sm *srcmap.SourceMap, start, end int, msg string)

	// CompilerError reports a redeclaration, illegal break/ret
	// placement, or other static compile-time violation.
	CompilerError(sm *srcmap.SourceMap, start, end int, msg string)

	// VMError reports a fatal VM error (§7 kind 5): stack overflow,
	// corrupted bytecode, allocation failure. Never recoverable.
	VMError(msg string)

	// Uncaught reports an exception Value that propagated past every
	// handler, carrying enough of the VM's state to print a stack
	// trace. state is intentionally untyped here to avoid an import
	// cycle with pkg/vm; callers type-assert to *vm.Trace.
	Uncaught(value interface{}, state interface{})
}

// Discard is a Reporter that does nothing; useful for tests that only
// care about the returned error value, not formatted output.
type Discard struct{}

func (Discard) ScannerError(*srcmap.SourceMap, int, int, string)   {}
func (Discard) ParserError(*srcmap.SourceMap, int, int, string)    {}
func (Discard) CompilerError(*srcmap.SourceMap, int, int, string)  {}
func (Discard) VMError(string)                                    {}
func (Discard) Uncaught(value interface{}, state interface{})     {}
