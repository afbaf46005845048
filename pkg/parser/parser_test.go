package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/voxl/pkg/ast"
	"github.com/kristofer/voxl/pkg/lexer"
	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/srcmap"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	sm := srcmap.New("<test>", "", src)
	l := lexer.New(sm, reporter.Discard{})
	p := New(sm, l, reporter.Discard{})
	prog := p.ParseProgram()
	require.False(t, p.HadError(), "unexpected parse error for %q", src)
	return prog
}

func TestParseVarDeclAndBlock(t *testing.T) {
	prog := parse(t, `x : 1; { x : 10; } `)
	require.Len(t, prog.Statements, 2)
	assert.Equal(t, ast.VarDecl, prog.Statements[0].Kind)
	assert.Equal(t, ast.Block, prog.Statements[1].Kind)
}

func TestParseBinaryPrecedence(t *testing.T) {
	prog := parse(t, `1 + 2 * 3;`)
	require.Len(t, prog.Statements, 1)
	expr := prog.Statements[0].A
	require.Equal(t, ast.Binary, expr.Kind)
	// + binds loosest among these two, so its right operand is the "*" node.
	assert.Equal(t, ast.Binary, expr.B.Kind)
}

func TestParseFunctionAndCall(t *testing.T) {
	prog := parse(t, `fn add(a, b) { ret a + b; } add(1, 2);`)
	require.Len(t, prog.Statements, 2)
	fn := prog.Statements[0]
	assert.Equal(t, ast.FuncDecl, fn.Kind)
	assert.Equal(t, []string{"a", "b"}, fn.Params)

	call := prog.Statements[1].A
	assert.Equal(t, ast.Call, call.Kind)
	assert.Len(t, call.List, 2)
}

func TestParseClassWithSuperAndMethod(t *testing.T) {
	prog := parse(t, `class P < Q { fn $init($) { $.a = 1; } }`)
	require.Len(t, prog.Statements, 1)
	cls := prog.Statements[0]
	require.Equal(t, ast.ClassDecl, cls.Kind)
	assert.Equal(t, "Q", cls.SuperName)
	require.Len(t, cls.Methods, 1)
	assert.Equal(t, "$init", cls.Methods[0].Name)
}

func TestParseTryCatchFinally(t *testing.T) {
	prog := parse(t, `try { throw 1; } catch n -> v { } finally { }`)
	require.Len(t, prog.Statements, 1)
	try := prog.Statements[0]
	require.Equal(t, ast.TryStmt, try.Kind)
	require.Len(t, try.Catches, 1)
	assert.Equal(t, "n", try.Catches[0].ClassName)
	assert.Equal(t, "v", try.Catches[0].BindName)
	assert.NotNil(t, try.Finally)
}

func TestParseForDesugarsToTryLoop(t *testing.T) {
	prog := parse(t, `for i in range(0, 10) { put(i); }`)
	require.Len(t, prog.Statements, 1)
	block := prog.Statements[0]
	require.Equal(t, ast.Block, block.Kind)
	require.Len(t, block.List, 2)
	assert.Equal(t, ast.VarDecl, block.List[0].Kind)
	assert.Equal(t, ast.TryStmt, block.List[1].Kind)
}

func TestParseUseForms(t *testing.T) {
	prog := parse(t, `use "p"; use "p" -> x; use "p" -> *; use "p" -> (a, b -> c);`)
	require.Len(t, prog.Statements, 4)
	assert.Equal(t, ast.UsePlain, prog.Statements[0].UseForm)
	assert.Equal(t, ast.UsePlain, prog.Statements[1].UseForm)
	assert.Equal(t, "x", prog.Statements[1].UseBind)
	assert.Equal(t, ast.UseWildcard, prog.Statements[2].UseForm)
	assert.Equal(t, ast.UseSelect, prog.Statements[3].UseForm)
	require.Len(t, prog.Statements[3].UseAlias, 2)
	assert.Equal(t, "c", prog.Statements[3].UseAlias[1].Alias)
}

func TestParseLambda(t *testing.T) {
	prog := parse(t, `c : || { ret 1; };`)
	require.Len(t, prog.Statements, 1)
	lambda := prog.Statements[0].Pairs[0].Value
	assert.Equal(t, ast.Lambda, lambda.Kind)
}
