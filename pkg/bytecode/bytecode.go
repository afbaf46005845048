// Package bytecode defines voxl's instruction set and the compiled
// Chunk format the compiler emits and the VM executes (C7 output /
// C8 input).
//
// Instruction Format:
//
// Opcodes are single bytes. Most carry a 32-bit big-endian operand
// (an index into the constant pool, a local/upvalue slot, a jump
// target); a handful carry a single byte (CloseUpvalue's slot index,
// Closure's upvalue-descriptor count). Operand widths are fixed per
// opcode so the VM's main loop can advance its instruction pointer by
// the exact encoded length without a decode-then-measure step.
//
// A parallel Lines slice stores one source line number per byte of
// Code — deliberately redundant (§6) so a stack trace can resolve a
// line for any instruction pointer with a single slice index, no
// search needed.
package bytecode

import "encoding/binary"

// Op is a single bytecode operation.
type Op byte

const (
	Add Op = iota
	Sub
	Mul
	Div
	Mod
	Concat
	Less
	LessEq
	More
	MoreEq
	Equals
	NotEq
	Negate
	Not

	GetConstant // u32: constant pool index
	GetLocal    // u32: local slot
	SetLocal    // u32: local slot

	CreateGlobal // u32: name constant index
	GetGlobal    // u32: name constant index
	SetGlobal    // u32: name constant index

	GetUpvalue // u32: upvalue index
	SetUpvalue // u32: upvalue index

	GetField   // u32: name constant index
	SetField   // u32: name constant index
	StoreMethod // u32: name constant index

	GetIndex
	SetIndex

	LoadNull
	LoadTrue
	LoadFalse

	CreateClass // consumes class-name constant on TOS

	Closure // u8 upvalue count, then (u8 idx, u8 isLocal) pairs

	Jump             // u32: absolute target
	JumpIfTrue       // u32: absolute target
	JumpIfFalse      // u32: absolute target
	JumpIfFalseAndPop // u32: absolute target
	JumpBack         // u32: absolute target (backward)

	Call // u32: argument count

	Return

	TryBegin // u32: absolute handler pc
	TryEnd

	FinallyBegin
	FinallyEnd

	Throw
	Rethrow

	CloseUpvalue // u8: local slot

	MatchClass // u32: class-name constant index; pops tested value, pushes bool

	PopStack
	CloneTop

	Import                            // u32: path constant index
	ModuleSetLoaded
	ModuleImportAllToGlobalNamespace

	Inherit
)

var opNames = [...]string{
	"ADD", "SUB", "MUL", "DIV", "MOD", "CONCAT",
	"LESS", "LESS_EQ", "MORE", "MORE_EQ", "EQUALS", "NOT_EQ",
	"NEGATE", "NOT",
	"GET_CONSTANT", "GET_LOCAL", "SET_LOCAL",
	"CREATE_GLOBAL", "GET_GLOBAL", "SET_GLOBAL",
	"GET_UPVALUE", "SET_UPVALUE",
	"GET_FIELD", "SET_FIELD", "STORE_METHOD",
	"GET_INDEX", "SET_INDEX",
	"LOAD_NULL", "LOAD_TRUE", "LOAD_FALSE",
	"CREATE_CLASS",
	"CLOSURE",
	"JUMP", "JUMP_IF_TRUE", "JUMP_IF_FALSE", "JUMP_IF_FALSE_AND_POP", "JUMP_BACK",
	"CALL",
	"RETURN",
	"TRY_BEGIN", "TRY_END",
	"FINALLY_BEGIN", "FINALLY_END",
	"THROW", "RETHROW",
	"CLOSE_UPVALUE",
	"MATCH_CLASS",
	"POP_STACK", "CLONE_TOP",
	"IMPORT", "MODULE_SET_LOADED", "MODULE_IMPORT_ALL_TO_GLOBAL_NAMESPACE",
	"INHERIT",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "UNKNOWN"
}

// operandWidth returns the number of operand bytes following an
// opcode, used by the disassemblers to step from one instruction to
// the next (the emitter and the VM encode and decode each opcode's
// operand inline).
func (op Op) operandWidth() int {
	switch op {
	case Closure:
		return -1 // variable width: a u8 count, then count (idx, isLocal) byte pairs
	case CloseUpvalue:
		return 1
	case GetConstant, GetLocal, SetLocal, CreateGlobal, GetGlobal, SetGlobal,
		GetUpvalue, SetUpvalue, GetField, SetField, StoreMethod,
		Jump, JumpIfTrue, JumpIfFalse, JumpIfFalseAndPop, JumpBack,
		Call, TryBegin, MatchClass, Import:
		return 4
	default:
		return 0
	}
}

// Chunk is a complete unit of compiled bytecode: a function body or a
// module's top-level code.
type Chunk struct {
	Code  []byte
	Lines []uint32 // one entry per byte of Code (§6, §8 invariant)

	// Constants holds the compiled unit's constant pool. Elements are
	// whatever the compiler/VM layer puts there (the compiler stores
	// value.Value wrappers around numbers and string/function Objs) —
	// this package stays value-agnostic to avoid an import cycle with
	// pkg/value. No element type is enforced; the disassemblers print
	// an element's String() when it implements fmt.Stringer.
	Constants []interface{}
}

// Emit appends an opcode with a 32-bit operand and records line for
// every byte written. Returns the offset of the opcode byte.
func (c *Chunk) Emit(op Op, operand uint32, line uint32) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Lines = append(c.Lines, line)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], operand)
	c.Code = append(c.Code, buf[:]...)
	for i := 0; i < 4; i++ {
		c.Lines = append(c.Lines, line)
	}
	return offset
}

// EmitByte appends a bare opcode with no operand.
func (c *Chunk) EmitByte(op Op, line uint32) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Lines = append(c.Lines, line)
	return offset
}

// EmitU8 appends an opcode with a single-byte operand (CloseUpvalue).
func (c *Chunk) EmitU8(op Op, operand byte, line uint32) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), operand)
	c.Lines = append(c.Lines, line, line)
	return offset
}

// ReadU32 decodes the big-endian operand at offset.
func (c *Chunk) ReadU32(offset int) uint32 {
	return binary.BigEndian.Uint32(c.Code[offset : offset+4])
}

// PatchU32 overwrites the operand at offset — used to back-patch
// forward jumps once their target is known.
func (c *Chunk) PatchU32(offset int, operand uint32) {
	binary.BigEndian.PutUint32(c.Code[offset:offset+4], operand)
}

// AddConstant appends v to the pool and returns its index, reusing an
// existing slot for an identical scalar constant (§4.7.a).
func (c *Chunk) AddConstant(v interface{}) uint32 {
	switch v.(type) {
	case int64, float64, string, bool:
		for i, existing := range c.Constants {
			if existing == v {
				return uint32(i)
			}
		}
	}
	c.Constants = append(c.Constants, v)
	return uint32(len(c.Constants) - 1)
}
