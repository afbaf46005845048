package main

import (
	"fmt"
	"os"

	"github.com/kristofer/voxl/pkg/srcmap"
)

// terminalReporter is cmd/voxl's pkg/reporter.Reporter: every
// diagnostic gets one "file:line:col: message" line on stderr, plus a
// printed source excerpt for scanner/parser/compiler errors and a
// stack trace for an uncaught exception. It counts errors so main can
// decide the process exit code.
type terminalReporter struct {
	errorCount int
}

func (r *terminalReporter) report(sm *srcmap.SourceMap, start, end int, kind, msg string) {
	r.errorCount++
	pos := sm.LineOf(start)
	fmt.Fprintf(os.Stderr, "%s:%d:%d: %s: %s\n", sm.Filename, pos.Line, pos.Column, kind, msg)
	if line := sm.TextOfLine(pos.Line); line != "" {
		fmt.Fprintf(os.Stderr, "    %s\n", line)
	}
}

func (r *terminalReporter) ScannerError(sm *srcmap.SourceMap, start, end int, msg string) {
	r.report(sm, start, end, "scan error", msg)
}

func (r *terminalReporter) ParserError(sm *srcmap.SourceMap, start, end int, msg string) {
	r.report(sm, start, end, "parse error", msg)
}

func (r *terminalReporter) CompilerError(sm *srcmap.SourceMap, start, end int, msg string) {
	r.report(sm, start, end, "compile error", msg)
}

func (r *terminalReporter) VMError(msg string) {
	r.errorCount++
	fmt.Fprintf(os.Stderr, "voxl: fatal: %s\n", msg)
}

func (r *terminalReporter) Uncaught(value interface{}, state interface{}) {
	r.errorCount++
	fmt.Fprintf(os.Stderr, "voxl: uncaught exception: %v\n", value)
	if tracer, ok := state.(fmt.Stringer); ok {
		fmt.Fprint(os.Stderr, tracer.String())
	}
}

func (r *terminalReporter) HadError() bool { return r.errorCount > 0 }
