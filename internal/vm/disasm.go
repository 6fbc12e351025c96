package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fermian/wren/internal/opcode"
	"github.com/fermian/wren/internal/value"
)

// Disassemble renders fn's bytecode as a human-readable instruction
// listing plus its constant pool, walking the raw opcode-plus-operand-byte
// stream directly rather than a decoded []Instruction slice. Method and
// global symbol ids are shown numerically; a caller that wants names can
// resolve them against the VM's own symbol tables (MethodSymbols/
// GlobalSymbols).
func Disassemble(fn *ObjFn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Constants (%d):\n", len(fn.Constants))
	if len(fn.Constants) == 0 {
		b.WriteString("  (empty)\n")
	}
	for i, c := range fn.Constants {
		fmt.Fprintf(&b, "  [%d] %s\n", i, formatConstant(c))
	}

	b.WriteString("\nInstructions:\n")
	ip := 0
	code := fn.Code
	for ip < len(code) {
		op := opcode.Code(code[ip])
		fmt.Fprintf(&b, "  %4d: %s", ip, op)
		ip++
		if numArgs, ok := op.IsCall(); ok {
			sym := int(code[ip])
			ip++
			fmt.Fprintf(&b, " sym=%d argc=%d", sym, numArgs)
		} else {
			for n := op.NumOperands(); n > 0; n-- {
				fmt.Fprintf(&b, " %d", code[ip])
				ip++
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatConstant(v value.Value) string {
	switch v.Tag {
	case value.TagNumber:
		return "number: " + strconv.FormatFloat(v.Num, 'g', -1, 64)
	case value.TagNull:
		return "null"
	case value.TagFalse:
		return "bool: false"
	case value.TagTrue:
		return "bool: true"
	case value.TagObject:
		switch o := v.Obj.(type) {
		case *ObjString:
			return fmt.Sprintf("string: %q", o.String())
		case *ObjFn:
			return fmt.Sprintf("fn: %d bytes, %d constants", len(o.Code), len(o.Constants))
		case *ObjClass:
			return fmt.Sprintf("class: %s", o.Name)
		default:
			return fmt.Sprintf("object: %T", o)
		}
	default:
		return "no-value"
	}
}
