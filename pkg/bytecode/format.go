// Package bytecode — disassembler.
//
// Disassemble renders a Chunk as a human-readable instruction listing,
// used by the `voxl disassemble` CLI subcommand. A verbose flag switches constant/operand printing from a
// terse one-liner to a deep spew.Sdump of the constant, which is
// useful when a constant is itself a nested function chunk.
package bytecode

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Disassemble renders every instruction in c, prefixed by name.
func Disassemble(c *Chunk, name string, verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = disassembleInstruction(&b, c, offset, verbose)
	}
	return b.String()
}

func disassembleInstruction(b *strings.Builder, c *Chunk, offset int, verbose bool) int {
	op := Op(c.Code[offset])
	line := c.Lines[offset]
	fmt.Fprintf(b, "%04d  line %4d  %-22s", offset, line, op)

	switch op {
	case Closure:
		count := c.Code[offset+1]
		fmt.Fprintf(b, " count=%d", count)
		next := offset + 2
		for i := byte(0); i < count; i++ {
			idx := c.Code[next]
			isLocal := c.Code[next+1]
			fmt.Fprintf(b, " (idx=%d local=%d)", idx, isLocal)
			next += 2
		}
		b.WriteByte('\n')
		return next
	case CloseUpvalue:
		fmt.Fprintf(b, " slot=%d\n", c.Code[offset+1])
		return offset + 2
	}

	width := op.operandWidth()
	switch width {
	case 0:
		b.WriteByte('\n')
		return offset + 1
	case 4:
		operand := c.ReadU32(offset + 1)
		switch op {
		case GetConstant, CreateGlobal, GetGlobal, SetGlobal, GetField, SetField, StoreMethod, MatchClass, Import:
			b.WriteString(" ")
			if int(operand) < len(c.Constants) {
				constVal := c.Constants[operand]
				if verbose {
					b.WriteString(spew.Sdump(constVal))
				} else {
					fmt.Fprintf(b, "const[%d]=%v", operand, constVal)
				}
			} else {
				fmt.Fprintf(b, "const[%d]=<out of range>", operand)
			}
		default:
			fmt.Fprintf(b, " %d", operand)
		}
		b.WriteByte('\n')
		return offset + 1 + 4
	}
	b.WriteByte('\n')
	return offset + 1
}
