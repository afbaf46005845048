package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/bytecode"
	"github.com/kristofer/voxl/pkg/lexer"
	"github.com/kristofer/voxl/pkg/parser"
	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/srcmap"
)

func compile(t *testing.T, src string) (*Compiler, *bytecode.Chunk) {
	t.Helper()
	sm := srcmap.New("<test>", "", src)
	l := lexer.New(sm, reporter.Discard{})
	p := parser.New(sm, l, reporter.Discard{})
	prog := p.ParseProgram()
	require.False(t, p.HadError())

	a := alloc.New(alloc.DefaultConfig())
	c := New(a, sm, reporter.Discard{})
	fn, err := c.CompileModule(prog, "<test>")
	require.NoError(t, err)
	return c, fn.Chunk
}

func opSeq(chunk *bytecode.Chunk) []bytecode.Op {
	var ops []bytecode.Op
	for offset := 0; offset < len(chunk.Code); {
		op := bytecode.Op(chunk.Code[offset])
		ops = append(ops, op)
		offset++
		switch op {
		case bytecode.Closure:
			count := int(chunk.Code[offset])
			offset += 1 + int(count)*2
		case bytecode.CloseUpvalue:
			offset++
		default:
			if width := operandWidthForTest(op); width > 0 {
				offset += width
			}
		}
	}
	return ops
}

func operandWidthForTest(op bytecode.Op) int {
	switch op {
	case bytecode.GetConstant, bytecode.GetLocal, bytecode.SetLocal,
		bytecode.CreateGlobal, bytecode.GetGlobal, bytecode.SetGlobal,
		bytecode.GetUpvalue, bytecode.SetUpvalue, bytecode.GetField, bytecode.SetField,
		bytecode.StoreMethod, bytecode.Jump, bytecode.JumpIfTrue, bytecode.JumpIfFalse,
		bytecode.JumpIfFalseAndPop, bytecode.JumpBack, bytecode.Call, bytecode.TryBegin,
		bytecode.MatchClass, bytecode.Import:
		return 4
	}
	return 0
}

func TestCompileVarDeclEmitsCreateGlobal(t *testing.T) {
	_, chunk := compile(t, `x : 1;`)
	ops := opSeq(chunk)
	assert.Contains(t, ops, bytecode.GetConstant)
	assert.Contains(t, ops, bytecode.CreateGlobal)
}

func TestCompileBinaryExprEmitsAdd(t *testing.T) {
	_, chunk := compile(t, `x : 1 + 2;`)
	assert.Contains(t, opSeq(chunk), bytecode.Add)
}

func TestCompileWhileLoopEmitsJumpBack(t *testing.T) {
	_, chunk := compile(t, `while true { break; }`)
	ops := opSeq(chunk)
	assert.Contains(t, ops, bytecode.JumpBack)
	assert.Contains(t, ops, bytecode.Jump)
}

func TestCompileFunctionEmitsClosure(t *testing.T) {
	_, chunk := compile(t, `fn f(a) { ret a; }`)
	assert.Contains(t, opSeq(chunk), bytecode.Closure)
}

func TestCompileClassEmitsCreateClassAndStoreMethod(t *testing.T) {
	_, chunk := compile(t, `class P { fn $init($) { $.a = 1; } }`)
	ops := opSeq(chunk)
	assert.Contains(t, ops, bytecode.CreateClass)
	assert.Contains(t, ops, bytecode.StoreMethod)
	assert.Contains(t, ops, bytecode.SetField)
}

func TestCompileClassWithSuperEmitsInherit(t *testing.T) {
	_, chunk := compile(t, `class A { } class B < A { }`)
	assert.Contains(t, opSeq(chunk), bytecode.Inherit)
}

func TestCompileTryCatchFinallyEmitsHandlerOps(t *testing.T) {
	_, chunk := compile(t, `try { throw 1; } catch E -> e { } finally { }`)
	ops := opSeq(chunk)
	assert.Contains(t, ops, bytecode.TryBegin)
	assert.Contains(t, ops, bytecode.TryEnd)
	assert.Contains(t, ops, bytecode.MatchClass)
	assert.Contains(t, ops, bytecode.Rethrow)
}

func TestCompileUsePlainEmitsImport(t *testing.T) {
	_, chunk := compile(t, `use "mymod";`)
	assert.Contains(t, opSeq(chunk), bytecode.Import)
}

func TestCompileUseWildcardEmitsImportAll(t *testing.T) {
	_, chunk := compile(t, `use "mymod" -> *;`)
	assert.Contains(t, opSeq(chunk), bytecode.ModuleImportAllToGlobalNamespace)
}

func TestCompileRedeclarationInSameScopeErrors(t *testing.T) {
	sm := srcmap.New("<test>", "", `{ x : 1; x : 2; }`)
	l := lexer.New(sm, reporter.Discard{})
	p := parser.New(sm, l, reporter.Discard{})
	prog := p.ParseProgram()
	require.False(t, p.HadError())

	a := alloc.New(alloc.DefaultConfig())
	c := New(a, sm, reporter.Discard{})
	_, err := c.CompileModule(prog, "<test>")
	assert.Error(t, err)
	assert.True(t, c.HadError())
}

func TestCompileBreakOutsideLoopErrors(t *testing.T) {
	sm := srcmap.New("<test>", "", `break;`)
	l := lexer.New(sm, reporter.Discard{})
	p := parser.New(sm, l, reporter.Discard{})
	prog := p.ParseProgram()
	require.False(t, p.HadError())

	a := alloc.New(alloc.DefaultConfig())
	c := New(a, sm, reporter.Discard{})
	_, err := c.CompileModule(prog, "<test>")
	assert.Error(t, err)
}

func TestCompileModuleEndsWithModuleSetLoaded(t *testing.T) {
	_, chunk := compile(t, `x : 1;`)
	ops := opSeq(chunk)
	require.NotEmpty(t, ops)
	assert.Contains(t, ops, bytecode.ModuleSetLoaded)
}
