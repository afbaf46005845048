// Package compiler lowers a parsed AST into bytecode (C7, §4.7): a
// single pass that resolves scopes and upvalues, emits control-flow
// jumps, desugars try/catch/finally into the two-level TryBegin
// handler shape, and compiles class/impl/use forms.
package compiler

import (
	"fmt"
	"path"
	"strings"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/ast"
	"github.com/kristofer/voxl/pkg/bytecode"
	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/srcmap"
	"github.com/kristofer/voxl/pkg/token"
	"github.com/kristofer/voxl/pkg/value"
)

type localVar struct {
	name     string
	depth    int
	captured bool
}

type upvalueDesc struct {
	index   int
	isLocal bool
}

type loopRecord struct {
	startPC     int
	scopeDepth  int
	localsCount int
	breakJumps  []int

	// finallyCount is len(openFinally) when the loop began: break and
	// continue replay only the finally blocks opened inside the loop.
	finallyCount int
}

// funcState is per-function compile-time state, threaded in a stack
// mirroring the nesting of fn/lambda declarations (§4.7).
type funcState struct {
	enclosing *funcState

	chunk    *bytecode.Chunk
	fn       *value.Obj // FunctionObj being built
	isMethod bool

	locals     []localVar
	scopeDepth int
	upvalues   []upvalueDesc

	loops []loopRecord

	// openFinally holds the Block node of every finally currently in
	// scope, innermost last, so break/continue/ret can replay them
	// (§4.7's "kept as a second bytecode blob and appended wherever
	// control leaves a protected scope").
	openFinally  []*ast.Node
	finallyDepth int
}

// Compiler compiles one Program into a module-level Function.
type Compiler struct {
	a   *alloc.Allocator
	sm  *srcmap.SourceMap
	rep reporter.Reporter

	fs *funcState

	hadError bool
}

func New(a *alloc.Allocator, sm *srcmap.SourceMap, rep reporter.Reporter) *Compiler {
	return &Compiler{a: a, sm: sm, rep: rep}
}

func (c *Compiler) HadError() bool { return c.hadError }

func (c *Compiler) errorf(n *ast.Node, format string, args ...interface{}) {
	c.hadError = true
	msg := fmt.Sprintf(format, args...)
	start, end := 0, 0
	if n != nil {
		start, end = n.Start, n.End
	}
	c.rep.CompilerError(c.sm, start, end, msg)
}

func (c *Compiler) line(n *ast.Node) uint32 {
	if n == nil {
		return 0
	}
	return uint32(c.sm.LineOf(n.Start).Line)
}

// CompileModule compiles prog as a module's top-level code: a Function
// Obj of arity 0 whose body ends with ModuleSetLoaded so the loader
// can mark the module loaded the instant its top level finishes.
func (c *Compiler) CompileModule(prog *ast.Program, moduleName string) (*value.Obj, error) {
	name := c.a.InternString(moduleName)
	fn := c.a.NewFunction(name, 0, 0)
	fn.Chunk = &bytecode.Chunk{}

	c.fs = &funcState{chunk: fn.Chunk, fn: fn}
	c.beginScope()
	c.addLocal(nil, "") // reserved slot 0, see compileFunction
	for _, stmt := range prog.Statements {
		c.compileStmt(stmt)
	}
	fn.Chunk.EmitByte(bytecode.ModuleSetLoaded, 0)
	fn.Chunk.EmitByte(bytecode.LoadNull, 0)
	fn.Chunk.EmitByte(bytecode.Return, 0)
	fn.UpvalueCount = len(c.fs.upvalues)

	if c.hadError {
		return nil, fmt.Errorf("compilation failed")
	}
	return fn, nil
}

// --- scope management ---

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope(line uint32) {
	fs := c.fs
	fs.scopeDepth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		last := fs.locals[len(fs.locals)-1]
		slot := len(fs.locals) - 1
		if last.captured {
			fs.chunk.EmitU8(bytecode.CloseUpvalue, byte(slot), line)
		} else {
			fs.chunk.EmitByte(bytecode.PopStack, line)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

// unwindTo emits pop/close instructions for every local above toDepth
// without mutating fs.locals — used to replay scope exit for
// break/continue/return, which jump out of several live scopes at
// once but leave the compile-time bookkeeping untouched since normal
// control flow may still fall through the same scopes later.
func (c *Compiler) unwindTo(toDepth int, line uint32) {
	fs := c.fs
	for i := len(fs.locals) - 1; i >= 0 && fs.locals[i].depth > toDepth; i-- {
		if fs.locals[i].captured {
			fs.chunk.EmitU8(bytecode.CloseUpvalue, byte(i), line)
		} else {
			fs.chunk.EmitByte(bytecode.PopStack, line)
		}
	}
}

func (c *Compiler) addLocal(n *ast.Node, name string) int {
	fs := c.fs
	for i := len(fs.locals) - 1; i >= 0 && fs.locals[i].depth == fs.scopeDepth; i-- {
		if fs.locals[i].name == name {
			c.errorf(n, "variable %q already declared in this scope", name)
			return i
		}
	}
	fs.locals = append(fs.locals, localVar{name: name, depth: fs.scopeDepth})
	return len(fs.locals) - 1
}

// resolveLocal looks up name in fs's own locals only.
func resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

// resolveUpvalue implements §4.7's walk-from-defining-function-outward
// upvalue insertion algorithm.
func resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if slot := resolveLocal(fs.enclosing, name); slot != -1 {
		fs.enclosing.locals[slot].captured = true
		return addUpvalue(fs, slot, true)
	}
	if up := resolveUpvalue(fs.enclosing, name); up != -1 {
		return addUpvalue(fs, up, false)
	}
	return -1
}

func addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueDesc{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

// --- variable load/store ---

func (c *Compiler) compileLoadName(n *ast.Node, name string) {
	line := c.line(n)
	fs := c.fs
	if slot := resolveLocal(fs, name); slot != -1 {
		fs.chunk.Emit(bytecode.GetLocal, uint32(slot), line)
		return
	}
	if slot := resolveUpvalue(fs, name); slot != -1 {
		fs.chunk.Emit(bytecode.GetUpvalue, uint32(slot), line)
		return
	}
	idx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(name)))
	fs.chunk.Emit(bytecode.GetGlobal, idx, line)
}

func (c *Compiler) compileStoreName(n *ast.Node, name string) {
	line := c.line(n)
	if len(name) > 0 && name[0] == '$' && name != "$" {
		c.errorf(n, "cannot assign to reserved name %q", name)
	}
	fs := c.fs
	if slot := resolveLocal(fs, name); slot != -1 {
		fs.chunk.Emit(bytecode.SetLocal, uint32(slot), line)
		return
	}
	if slot := resolveUpvalue(fs, name); slot != -1 {
		fs.chunk.Emit(bytecode.SetUpvalue, uint32(slot), line)
		return
	}
	idx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(name)))
	fs.chunk.Emit(bytecode.SetGlobal, idx, line)
}

// declareVariable binds name to the value currently on TOS: a new
// local slot inside any function scope, a CreateGlobal at true module
// top level.
func (c *Compiler) declareVariable(n *ast.Node, name string) {
	line := c.line(n)
	fs := c.fs
	if fs.enclosing == nil && fs.scopeDepth == 1 {
		idx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(name)))
		fs.chunk.Emit(bytecode.CreateGlobal, idx, line)
		return
	}
	c.addLocal(n, name)
}

// --- jumps ---

func (c *Compiler) emitJump(op bytecode.Op, line uint32) int {
	return c.fs.chunk.Emit(op, 0, line)
}

func (c *Compiler) patchJumpHere(offset int) {
	c.fs.chunk.PatchU32(offset+1, uint32(len(c.fs.chunk.Code)))
}

func (c *Compiler) emitLoopBack(startPC int, line uint32) {
	c.fs.chunk.Emit(bytecode.JumpBack, uint32(startPC), line)
}

// --- statements ---

func (c *Compiler) compileStmt(n *ast.Node) {
	switch n.Kind {
	case ast.ExprStmt:
		c.compileExpr(n.A)
		c.fs.chunk.EmitByte(bytecode.PopStack, c.line(n))
	case ast.VarDecl:
		c.compileVarDecl(n)
	case ast.Block:
		c.beginScope()
		for _, s := range n.List {
			c.compileStmt(s)
		}
		c.endScope(c.line(n))
	case ast.FuncDecl:
		c.compileFuncDecl(n)
	case ast.ReturnStmt:
		c.compileReturn(n)
	case ast.IfStmt:
		c.compileIf(n)
	case ast.LoopStmt:
		c.compileLoop(n)
	case ast.WhileStmt:
		c.compileWhile(n)
	case ast.BreakStmt:
		c.compileBreak(n)
	case ast.ContinueStmt:
		c.compileContinue(n)
	case ast.ClassDecl:
		c.compileClassDecl(n)
	case ast.ImplDecl:
		c.compileImplDecl(n)
	case ast.TryStmt:
		c.compileTry(n)
	case ast.ThrowStmt:
		c.compileExpr(n.A)
		c.fs.chunk.EmitByte(bytecode.Throw, c.line(n))
	case ast.MatchStmt:
		c.compileMatch(n)
	case ast.UseStmt:
		c.compileUse(n)
	default:
		c.errorf(n, "compiler: unsupported statement kind %d", n.Kind)
	}
}

func (c *Compiler) compileVarDecl(n *ast.Node) {
	line := c.line(n)
	for i, name := range n.List {
		init := n.Pairs[i].Value
		if init != nil {
			c.compileExpr(init)
		} else {
			c.fs.chunk.EmitByte(bytecode.LoadNull, line)
		}
		c.declareVariable(n, name.Name)
	}
}

func (c *Compiler) compileReturn(n *ast.Node) {
	if c.fs.finallyDepth > 0 {
		c.errorf(n, "'ret' is not allowed inside finally")
	}
	line := c.line(n)
	if n.A != nil {
		c.compileExpr(n.A)
	} else {
		c.fs.chunk.EmitByte(bytecode.LoadNull, line)
	}
	c.replayOpenFinally(0, line)
	c.fs.chunk.EmitByte(bytecode.Return, line)
}

func (c *Compiler) compileIf(n *ast.Node) {
	line := c.line(n)
	c.compileExpr(n.A)
	elseJump := c.emitJump(bytecode.JumpIfFalseAndPop, line)
	c.compileStmt(n.B)
	if n.C != nil {
		endJump := c.emitJump(bytecode.Jump, line)
		c.patchJumpHere(elseJump)
		c.compileStmt(n.C)
		c.patchJumpHere(endJump)
	} else {
		c.patchJumpHere(elseJump)
	}
}

func (c *Compiler) compileLoop(n *ast.Node) {
	fs := c.fs
	line := c.line(n)
	startPC := len(fs.chunk.Code)
	fs.loops = append(fs.loops, loopRecord{startPC: startPC, scopeDepth: fs.scopeDepth, localsCount: len(fs.locals), finallyCount: len(fs.openFinally)})
	c.compileStmt(n.A)
	c.emitLoopBack(startPC, line)
	c.finishLoop()
}

func (c *Compiler) compileWhile(n *ast.Node) {
	fs := c.fs
	line := c.line(n)
	startPC := len(fs.chunk.Code)
	fs.loops = append(fs.loops, loopRecord{startPC: startPC, scopeDepth: fs.scopeDepth, localsCount: len(fs.locals), finallyCount: len(fs.openFinally)})
	c.compileExpr(n.A)
	exitJump := c.emitJump(bytecode.JumpIfFalseAndPop, line)
	c.compileStmt(n.B)
	c.emitLoopBack(startPC, line)
	c.patchJumpHere(exitJump)
	c.finishLoop()
}

func (c *Compiler) finishLoop() {
	fs := c.fs
	rec := fs.loops[len(fs.loops)-1]
	for _, j := range rec.breakJumps {
		c.patchJumpHere(j)
	}
	fs.loops = fs.loops[:len(fs.loops)-1]
}

func (c *Compiler) compileBreak(n *ast.Node) {
	fs := c.fs
	if len(fs.loops) == 0 {
		c.errorf(n, "'break' outside a loop")
		return
	}
	if fs.finallyDepth > 0 {
		c.errorf(n, "'break' is not allowed inside finally")
		return
	}
	line := c.line(n)
	rec := fs.loops[len(fs.loops)-1]
	c.unwindTo(rec.scopeDepth, line)
	c.replayOpenFinally(rec.finallyCount, line)
	j := c.emitJump(bytecode.Jump, line)
	fs.loops[len(fs.loops)-1].breakJumps = append(fs.loops[len(fs.loops)-1].breakJumps, j)
}

func (c *Compiler) compileContinue(n *ast.Node) {
	fs := c.fs
	if len(fs.loops) == 0 {
		c.errorf(n, "'continue' outside a loop")
		return
	}
	if fs.finallyDepth > 0 {
		c.errorf(n, "'continue' is not allowed inside finally")
		return
	}
	line := c.line(n)
	rec := fs.loops[len(fs.loops)-1]
	c.unwindTo(rec.scopeDepth, line)
	c.replayOpenFinally(rec.finallyCount, line)
	c.emitLoopBack(rec.startPC, line)
}

// replayOpenFinally inline-compiles, innermost first, every open
// finally block at index stopAt or above: `ret` passes 0 and leaves
// every protected region; break/continue pass their loop's
// finallyCount and leave only the regions opened inside that loop.
func (c *Compiler) replayOpenFinally(stopAt int, line uint32) {
	fs := c.fs
	for i := len(fs.openFinally) - 1; i >= stopAt; i-- {
		fs.finallyDepth++
		c.compileStmt(fs.openFinally[i])
		fs.finallyDepth--
	}
}

// --- functions & closures ---

func (c *Compiler) compileFuncDecl(n *ast.Node) {
	fnObj, upvals := c.compileFunction(n, n.Name, n.Params, n.A, false)
	c.emitClosure(fnObj, upvals, c.line(n))
	c.declareVariable(n, n.Name)
}

// compileFunction compiles params+body into a fresh Function Obj and
// returns the upvalue descriptors the caller must pass to emitClosure
// (emitted into the *enclosing* chunk, not this one).
func (c *Compiler) compileFunction(n *ast.Node, name string, params []string, body *ast.Node, isMethod bool) (*value.Obj, []upvalueDesc) {
	nameObj := c.a.InternString(name)
	arity := len(params)
	if isMethod {
		arity++ // implicit leading $
	}
	fnObj := c.a.NewFunction(nameObj, arity, 0)
	fnObj.Chunk = &bytecode.Chunk{}

	parent := c.fs
	c.fs = &funcState{enclosing: parent, chunk: fnObj.Chunk, fn: fnObj, isMethod: isMethod}
	c.beginScope()
	// Slot 0 always corresponds to the VM's call-frame window base,
	// which the Call convention points at the callable's own stack
	// slot (or, for a BoundFunction, the receiver written there in its
	// place) — so every function reserves it, named "$" for methods
	// and anonymous (unreferenceable) otherwise.
	if isMethod {
		c.addLocal(n, "$")
	} else {
		c.addLocal(n, "")
	}
	for _, p := range params {
		c.addLocal(n, p)
	}
	if body != nil {
		for _, s := range body.List {
			c.compileStmt(s)
		}
	}
	line := c.line(n)
	c.fs.chunk.EmitByte(bytecode.LoadNull, line)
	c.fs.chunk.EmitByte(bytecode.Return, line)

	fnObj.UpvalueCount = len(c.fs.upvalues)
	upvals := c.fs.upvalues
	c.fs = parent

	return fnObj, upvals
}

func (c *Compiler) emitClosure(fnObj *value.Obj, upvals []upvalueDesc, line uint32) {
	fs := c.fs
	idx := fs.chunk.AddConstant(value.ObjVal(fnObj))
	fs.chunk.Emit(bytecode.GetConstant, idx, line)
	fs.chunk.EmitU8(bytecode.Closure, byte(len(upvals)), line)
	for _, u := range upvals {
		isLocal := byte(0)
		if u.isLocal {
			isLocal = 1
		}
		fs.chunk.Code = append(fs.chunk.Code, byte(u.index), isLocal)
		fs.chunk.Lines = append(fs.chunk.Lines, line, line)
	}
}

func (c *Compiler) compileLambda(n *ast.Node) {
	fnObj, upvals := c.compileFunction(n, "<lambda>", n.Params, n.A, false)
	c.emitClosure(fnObj, upvals, c.line(n))
}

// --- classes ---

func (c *Compiler) classScopeOK(n *ast.Node) bool {
	if c.fs.enclosing != nil || c.fs.scopeDepth != 1 {
		c.errorf(n, "class/impl may only appear at module scope")
		return false
	}
	return true
}

func (c *Compiler) compileClassDecl(n *ast.Node) {
	if !c.classScopeOK(n) {
		return
	}
	line := c.line(n)
	fs := c.fs
	nameIdx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(n.Name)))
	fs.chunk.Emit(bytecode.GetConstant, nameIdx, line)
	fs.chunk.EmitByte(bytecode.CreateClass, line)

	if n.SuperName != "" {
		c.compileLoadName(n, n.SuperName)
		fs.chunk.EmitByte(bytecode.Inherit, line)
	}

	for _, m := range n.Methods {
		fnObj, upvals := c.compileFunction(m, m.Name, m.Params, m.A, true)
		c.emitClosure(fnObj, upvals, c.line(m))
		midx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(m.Name)))
		fs.chunk.Emit(bytecode.StoreMethod, midx, c.line(m))
	}

	c.declareVariable(n, n.Name)
}

func (c *Compiler) compileImplDecl(n *ast.Node) {
	if !c.classScopeOK(n) {
		return
	}
	line := c.line(n)
	fs := c.fs
	c.compileLoadName(n, n.Name)
	for _, m := range n.Methods {
		fnObj, upvals := c.compileFunction(m, m.Name, m.Params, m.A, true)
		c.emitClosure(fnObj, upvals, c.line(m))
		midx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(m.Name)))
		fs.chunk.Emit(bytecode.StoreMethod, midx, c.line(m))
	}
	fs.chunk.EmitByte(bytecode.PopStack, line)
}

// --- try/catch/finally ---

// compileTry lowers the AST TryStmt into the two-level TryBegin shape
// from §4.7.
func (c *Compiler) compileTry(n *ast.Node) {
	fs := c.fs
	line := c.line(n)

	if n.Finally != nil {
		fs.openFinally = append(fs.openFinally, n.Finally)
	}

	outerBegin := c.emitJump(bytecode.TryBegin, line)

	innerBegin := c.emitJump(bytecode.TryBegin, line)
	c.compileStmt(n.A) // try block
	fs.chunk.EmitByte(bytecode.TryEnd, line)
	jumpPastCatches := c.emitJump(bytecode.Jump, line)

	c.patchJumpHere(innerBegin)
	// The thrown value arrives on TOS once; bind it to a hidden local so
	// every catch test (and the final rethrow) can GetLocal it without
	// MatchClass needing "peek, don't consume" semantics — MatchClass
	// simply pops its operand and pushes a bool, same as compileMatch's
	// subject test.
	c.beginScope()
	excSlot := c.addLocal(n, "$exc")
	var catchDoneJumps []int
	for _, cl := range n.Catches {
		var nextJump int
		hasNext := cl.ClassName != ""
		if hasNext {
			fs.chunk.Emit(bytecode.GetLocal, uint32(excSlot), line)
			cidx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(cl.ClassName)))
			fs.chunk.Emit(bytecode.MatchClass, cidx, line)
			nextJump = c.emitJump(bytecode.JumpIfFalseAndPop, line)
		}
		c.beginScope()
		if cl.BindName != "" {
			fs.chunk.Emit(bytecode.GetLocal, uint32(excSlot), line)
			c.addLocal(n, cl.BindName)
		}
		c.compileStmt(cl.Body)
		c.endScope(line)
		j := c.emitJump(bytecode.Jump, line)
		catchDoneJumps = append(catchDoneJumps, j)
		if hasNext {
			c.patchJumpHere(nextJump)
		}
	}
	// No catch matched: rethrow.
	fs.chunk.Emit(bytecode.GetLocal, uint32(excSlot), line)
	fs.chunk.EmitByte(bytecode.Throw, line)
	for _, j := range catchDoneJumps {
		c.patchJumpHere(j)
	}
	c.endScope(line) // pops $exc — the sole removal of the caught value
	c.patchJumpHere(jumpPastCatches)
	fs.chunk.EmitByte(bytecode.TryEnd, line)

	if n.Finally != nil {
		fs.openFinally = fs.openFinally[:len(fs.openFinally)-1]
		fs.finallyDepth++
		c.compileStmt(n.Finally)
		fs.finallyDepth--
	}
	pastRethrow := c.emitJump(bytecode.Jump, line)

	c.patchJumpHere(outerBegin)
	if n.Finally != nil {
		fs.finallyDepth++
		c.compileStmt(n.Finally)
		fs.finallyDepth--
	}
	fs.chunk.EmitByte(bytecode.Rethrow, line)

	c.patchJumpHere(pastRethrow)
}

// --- match ---

func (c *Compiler) compileMatch(n *ast.Node) {
	line := c.line(n)
	fs := c.fs
	c.beginScope()
	c.compileExpr(n.Subject)
	subjSlot := c.addLocal(n, "$match_subject")

	var endJumps []int
	var nextJump = -1
	for _, mc := range n.Cases {
		if nextJump != -1 {
			c.patchJumpHere(nextJump)
			nextJump = -1
		}
		if mc.ClassName != "" {
			fs.chunk.Emit(bytecode.GetLocal, uint32(subjSlot), line)
			cidx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(mc.ClassName)))
			fs.chunk.Emit(bytecode.MatchClass, cidx, line)
			nextJump = c.emitJump(bytecode.JumpIfFalseAndPop, line)
		}
		c.beginScope()
		if mc.BindName != "" {
			fs.chunk.Emit(bytecode.GetLocal, uint32(subjSlot), line)
			c.addLocal(n, mc.BindName)
		}
		c.compileStmt(mc.Body)
		c.endScope(line)
		endJumps = append(endJumps, c.emitJump(bytecode.Jump, line))
	}
	if nextJump != -1 {
		c.patchJumpHere(nextJump)
	}
	for _, j := range endJumps {
		c.patchJumpHere(j)
	}
	c.endScope(line)
}

// --- use / modules ---

func (c *Compiler) compileUse(n *ast.Node) {
	line := c.line(n)
	fs := c.fs
	pidx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(n.UsePath)))

	switch n.UseForm {
	case ast.UsePlain:
		fs.chunk.Emit(bytecode.Import, pidx, line)
		name := n.UseBind
		if name == "" {
			base := path.Base(n.UsePath)
			name = strings.TrimSuffix(base, path.Ext(base))
		}
		c.declareVariable(n, name)
	case ast.UseWildcard:
		fs.chunk.Emit(bytecode.Import, pidx, line)
		fs.chunk.EmitByte(bytecode.ModuleImportAllToGlobalNamespace, line)
	case ast.UseSelect:
		fs.chunk.Emit(bytecode.Import, pidx, line)
		for i, al := range n.UseAlias {
			if i < len(n.UseAlias)-1 {
				fs.chunk.EmitByte(bytecode.CloneTop, line)
			}
			nidx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(al.Name)))
			fs.chunk.Emit(bytecode.GetField, nidx, line)
			c.declareVariable(n, al.Alias)
		}
	}
}

// --- expressions ---

func (c *Compiler) compileExpr(n *ast.Node) {
	line := c.line(n)
	fs := c.fs
	switch n.Kind {
	case ast.IntLit:
		idx := fs.chunk.AddConstant(value.IntVal(n.IntVal))
		fs.chunk.Emit(bytecode.GetConstant, idx, line)
	case ast.FloatLit:
		idx := fs.chunk.AddConstant(value.FloatVal(n.FloatVal))
		fs.chunk.Emit(bytecode.GetConstant, idx, line)
	case ast.StringLit:
		idx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(n.StrVal)))
		fs.chunk.Emit(bytecode.GetConstant, idx, line)
	case ast.BoolLit:
		if n.BoolVal {
			fs.chunk.EmitByte(bytecode.LoadTrue, line)
		} else {
			fs.chunk.EmitByte(bytecode.LoadFalse, line)
		}
	case ast.NullLit:
		fs.chunk.EmitByte(bytecode.LoadNull, line)
	case ast.Identifier:
		c.compileLoadName(n, n.Name)
	case ast.ListLit:
		for _, el := range n.List {
			c.compileExpr(el)
		}
		c.compileLoadName(n, "List")
		fs.chunk.Emit(bytecode.Call, uint32(len(n.List)), line)
	case ast.DictLit:
		c.compileLoadName(n, "Dict")
		fs.chunk.Emit(bytecode.Call, 0, line)
		for _, p := range n.Pairs {
			fs.chunk.EmitByte(bytecode.CloneTop, line)
			c.compileExpr(p.Key)
			c.compileExpr(p.Value)
			fs.chunk.EmitByte(bytecode.SetIndex, line)
			fs.chunk.EmitByte(bytecode.PopStack, line)
		}
	case ast.Lambda:
		c.compileLambda(n)
	case ast.Call:
		c.compileExpr(n.A)
		for _, arg := range n.List {
			c.compileExpr(arg)
		}
		fs.chunk.Emit(bytecode.Call, uint32(len(n.List)), line)
	case ast.FieldAccess:
		c.compileExpr(n.A)
		idx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(n.Name)))
		fs.chunk.Emit(bytecode.GetField, idx, line)
	case ast.IndexAccess:
		c.compileExpr(n.A)
		c.compileExpr(n.B)
		fs.chunk.EmitByte(bytecode.GetIndex, line)
	case ast.Unary:
		c.compileExpr(n.A)
		switch n.Op {
		case token.Minus:
			fs.chunk.EmitByte(bytecode.Negate, line)
		case token.Not:
			fs.chunk.EmitByte(bytecode.Not, line)
		default:
			c.errorf(n, "unsupported unary operator %s", n.Op)
		}
	case ast.Binary:
		c.compileExpr(n.A)
		c.compileExpr(n.B)
		c.emitBinaryOp(n, n.Op, line)
	case ast.LogicalAnd:
		c.compileExpr(n.A)
		endJump := c.emitJump(bytecode.JumpIfFalse, line)
		fs.chunk.EmitByte(bytecode.PopStack, line)
		c.compileExpr(n.B)
		c.patchJumpHere(endJump)
	case ast.LogicalOr:
		c.compileExpr(n.A)
		endJump := c.emitJump(bytecode.JumpIfTrue, line)
		fs.chunk.EmitByte(bytecode.PopStack, line)
		c.compileExpr(n.B)
		c.patchJumpHere(endJump)
	case ast.AssignExpr:
		c.compileAssignTarget(n.A, n.B, line)
	case ast.CompoundAssignExpr:
		c.compileCompoundAssign(n, line)
	default:
		c.errorf(n, "compiler: unsupported expression kind %d", n.Kind)
	}
}

func (c *Compiler) emitBinaryOp(n *ast.Node, op token.Kind, line uint32) {
	fs := c.fs
	switch op {
	case token.Plus:
		fs.chunk.EmitByte(bytecode.Add, line)
	case token.Minus:
		fs.chunk.EmitByte(bytecode.Sub, line)
	case token.Star:
		fs.chunk.EmitByte(bytecode.Mul, line)
	case token.Slash:
		fs.chunk.EmitByte(bytecode.Div, line)
	case token.Percent:
		fs.chunk.EmitByte(bytecode.Mod, line)
	case token.PlusPlus:
		fs.chunk.EmitByte(bytecode.Concat, line)
	case token.Less:
		fs.chunk.EmitByte(bytecode.Less, line)
	case token.LessEq:
		fs.chunk.EmitByte(bytecode.LessEq, line)
	case token.Greater:
		fs.chunk.EmitByte(bytecode.More, line)
	case token.GreaterEq:
		fs.chunk.EmitByte(bytecode.MoreEq, line)
	case token.Eq:
		fs.chunk.EmitByte(bytecode.Equals, line)
	case token.NotEq:
		fs.chunk.EmitByte(bytecode.NotEq, line)
	default:
		c.errorf(n, "unsupported binary operator %s", op)
	}
}

// compoundBase maps a compound-assign token to its underlying binary
// operator.
func compoundBase(op token.Kind) token.Kind {
	switch op {
	case token.PlusEq:
		return token.Plus
	case token.MinusEq:
		return token.Minus
	case token.StarEq:
		return token.Star
	case token.SlashEq:
		return token.Slash
	case token.PercentEq:
		return token.Percent
	case token.PlusPlusEq:
		return token.PlusPlus
	}
	return token.Illegal
}

// compileCompoundAssign desugars `target OP= value` into get-apply-set.
// A Field target evaluates its receiver once (CloneTop keeps a copy
// for the write); an Index target evaluates its receiver and index
// expressions twice (once to read, once to write), so side effects in
// them happen twice.
func (c *Compiler) compileCompoundAssign(n *ast.Node, line uint32) {
	fs := c.fs
	target := n.A
	base := compoundBase(n.Op)
	switch target.Kind {
	case ast.Identifier:
		c.compileLoadName(target, target.Name)
		c.compileExpr(n.B)
		c.emitBinaryOp(n, base, line)
		c.compileStoreName(target, target.Name)
	case ast.FieldAccess:
		c.compileExpr(target.A)
		fs.chunk.EmitByte(bytecode.CloneTop, line)
		idx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(target.Name)))
		fs.chunk.Emit(bytecode.GetField, idx, line)
		c.compileExpr(n.B)
		c.emitBinaryOp(n, base, line)
		fs.chunk.Emit(bytecode.SetField, idx, line)
	case ast.IndexAccess:
		c.compileExpr(target.A)
		c.compileExpr(target.B)
		fs.chunk.EmitByte(bytecode.GetIndex, line)
		c.compileExpr(n.B)
		c.emitBinaryOp(n, base, line)
		// The computed result sits alone on TOS; bind it to a hidden
		// local so the receiver/index can be re-evaluated for the write
		// without a generic stack-swap op. SetIndex re-pushes its value
		// argument, so closing this scope's single PopStack drops that
		// duplicate and leaves the original result as the expression's
		// value — see the parallel `$exc` trick in compileTry.
		c.beginScope()
		tmp := c.addLocal(target, "$tmp")
		c.compileExpr(target.A)
		c.compileExpr(target.B)
		fs.chunk.Emit(bytecode.GetLocal, uint32(tmp), line)
		fs.chunk.EmitByte(bytecode.SetIndex, line)
		c.endScope(line)
	default:
		c.errorf(n, "invalid compound-assignment target")
	}
}

func (c *Compiler) compileAssignTarget(target, valueExpr *ast.Node, line uint32) {
	fs := c.fs
	switch target.Kind {
	case ast.Identifier:
		c.compileExpr(valueExpr)
		c.compileStoreName(target, target.Name)
	case ast.FieldAccess:
		c.compileExpr(target.A)
		c.compileExpr(valueExpr)
		idx := fs.chunk.AddConstant(value.ObjVal(c.a.InternString(target.Name)))
		fs.chunk.Emit(bytecode.SetField, idx, line)
	case ast.IndexAccess:
		c.compileExpr(target.A)
		c.compileExpr(target.B)
		c.compileExpr(valueExpr)
		fs.chunk.EmitByte(bytecode.SetIndex, line)
	default:
		c.errorf(target, "invalid assignment target")
	}
}
