package bytecode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitAndReadU32(t *testing.T) {
	c := &Chunk{}
	off := c.Emit(GetConstant, 7, 1)
	assert.Equal(t, 0, off)
	assert.Equal(t, byte(GetConstant), c.Code[0])
	assert.Equal(t, uint32(7), c.ReadU32(1))
	require.Len(t, c.Lines, 5)
	for _, ln := range c.Lines {
		assert.Equal(t, uint32(1), ln)
	}
}

func TestPatchU32BackpatchesJump(t *testing.T) {
	c := &Chunk{}
	jmp := c.Emit(JumpIfFalse, 0, 1)
	c.EmitByte(PopStack, 1)
	target := uint32(len(c.Code))
	c.PatchU32(jmp+1, target)
	assert.Equal(t, target, c.ReadU32(jmp+1))
}

func TestAddConstantDedupsScalars(t *testing.T) {
	c := &Chunk{}
	a := c.AddConstant(int64(42))
	b := c.AddConstant(int64(42))
	assert.Equal(t, a, b)
	s1 := c.AddConstant("hi")
	s2 := c.AddConstant("hi")
	assert.Equal(t, s1, s2)
	assert.NotEqual(t, a, s1)
}

func TestAddConstantDoesNotDedupDistinctObjs(t *testing.T) {
	c := &Chunk{}
	type fnObj struct{ name string }
	a := c.AddConstant(&fnObj{name: "f"})
	b := c.AddConstant(&fnObj{name: "f"})
	assert.NotEqual(t, a, b)
}

func TestEmitU8AndCloseUpvalue(t *testing.T) {
	c := &Chunk{}
	c.EmitU8(CloseUpvalue, 3, 5)
	assert.Equal(t, byte(CloseUpvalue), c.Code[0])
	assert.Equal(t, byte(3), c.Code[1])
	assert.Equal(t, []uint32{5, 5}, c.Lines)
}

func TestOpStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "ADD", Add.String())
	assert.Equal(t, "INHERIT", Inherit.String())
	assert.Equal(t, "UNKNOWN", Op(255).String())
}

func TestDisassembleSimpleChunk(t *testing.T) {
	c := &Chunk{}
	idx := c.AddConstant(int64(10))
	c.Emit(GetConstant, idx, 1)
	c.EmitByte(Return, 1)

	out := Disassemble(c, "test", false)
	assert.True(t, strings.Contains(out, "== test =="))
	assert.True(t, strings.Contains(out, "GET_CONSTANT"))
	assert.True(t, strings.Contains(out, "const[0]=10"))
	assert.True(t, strings.Contains(out, "RETURN"))
}

func TestDisassembleClosureVariadicOperand(t *testing.T) {
	c := &Chunk{}
	off := c.EmitByte(Closure, 1)
	c.Code = append(c.Code, 2, 0, 1, 1, 1)
	c.Lines = append(c.Lines, 1, 1, 1, 1, 1)
	_ = off

	out := Disassemble(c, "closuretest", false)
	assert.True(t, strings.Contains(out, "CLOSURE"))
	assert.True(t, strings.Contains(out, "count=2"))
	assert.True(t, strings.Contains(out, "idx=0 local=1"))
	assert.True(t, strings.Contains(out, "idx=1 local=1"))
}

func TestDisassembleVerboseUsesSpewDump(t *testing.T) {
	c := &Chunk{}
	idx := c.AddConstant("hello")
	c.Emit(GetConstant, idx, 1)

	out := Disassemble(c, "verbosetest", true)
	assert.True(t, strings.Contains(out, "(string)"))
}
