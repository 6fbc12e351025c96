// Package asm is a bytecode builder standing in for the lexer, parser and
// compiler that normally sit in front of this engine. Real wren programs
// reach internal/vm through a front-end compiler that this module does not
// ship; this package exists only so tests and cmd/wren's demo mode can
// hand-assemble an ObjFn — one opcode (and its operand bytes) at a time.
package asm

import (
	"github.com/fermian/wren/internal/opcode"
	"github.com/fermian/wren/internal/value"
	"github.com/fermian/wren/internal/vm"
)

// Builder incrementally assembles one ObjFn's code and constant pool.
type Builder struct {
	vm *vm.VM
	fn *vm.ObjFn
}

// New allocates a fresh ObjFn through v (so it participates in v's heap
// accounting like any compiler-produced function would) and returns a
// Builder over it. The function is pinned for the duration of the build:
// assembling may itself allocate (String allocates an ObjString), and
// until the finished function is rooted
// somewhere the pin is the only thing keeping a collection triggered by
// those allocations from sweeping it. Release hands rooting back to the
// caller.
func New(v *vm.VM, codeCap, constCap int) *Builder {
	fn := v.NewFunctionBuilder(codeCap, constCap)
	v.Pin(value.FromObj(fn))
	return &Builder{vm: v, fn: fn}
}

// Fn returns the function assembled so far. Safe to call mid-build only if
// the caller does not expect further appends to preserve a slice identity
// — ObjFn.Code/Constants may reallocate exactly like any append-built
// slice.
func (b *Builder) Fn() *vm.ObjFn { return b.fn }

// Release unpins the assembled function and returns it. Call once it is
// rooted elsewhere — interned as another function's constant, stored in a
// global, or handed straight to Interpret, which roots it through the call
// frame it pushes. Pins are LIFO, so builders over the same VM must be
// released in reverse creation order.
func (b *Builder) Release() *vm.ObjFn {
	b.vm.Unpin(value.FromObj(b.fn))
	return b.fn
}

func (b *Builder) emit(op opcode.Code, operands ...byte) *Builder {
	b.fn.Code = append(b.fn.Code, byte(op))
	b.fn.Code = append(b.fn.Code, operands...)
	return b
}

// AddConstant interns v in the function's constant pool, returning its
// index.
func (b *Builder) AddConstant(v value.Value) int {
	b.fn.Constants = append(b.fn.Constants, v)
	return len(b.fn.Constants) - 1
}

// Constant emits CONSTANT for the given already-interned index.
func (b *Builder) Constant(idx int) *Builder { return b.emit(opcode.Constant, byte(idx)) }

// Number is a convenience combining AddConstant+Constant for a numeric
// literal, the single most common case in hand-assembled test programs.
func (b *Builder) Number(n float64) *Builder {
	return b.Constant(b.AddConstant(value.Number(n)))
}

// String is Number's counterpart for a string literal.
func (b *Builder) String(s string) *Builder {
	return b.Constant(b.AddConstant(b.vm.NewString([]byte(s))))
}

func (b *Builder) Null() *Builder  { return b.emit(opcode.Null) }
func (b *Builder) False() *Builder { return b.emit(opcode.False) }
func (b *Builder) True() *Builder  { return b.emit(opcode.True) }

func (b *Builder) Class() *Builder     { return b.emit(opcode.Class) }
func (b *Builder) Subclass() *Builder  { return b.emit(opcode.Subclass) }
func (b *Builder) Metaclass() *Builder { return b.emit(opcode.Metaclass) }

// Method emits METHOD binding method symbol sym to the function already
// interned as constant fnConstIdx, with the class expected on top of the
// operand stack.
func (b *Builder) Method(sym, fnConstIdx int) *Builder {
	return b.emit(opcode.Method, byte(sym), byte(fnConstIdx))
}

// MethodFn combines interning fn as a constant with emitting METHOD.
func (b *Builder) MethodFn(sym int, fn *vm.ObjFn) *Builder {
	idx := b.AddConstant(value.FromObj(fn))
	return b.Method(sym, idx)
}

func (b *Builder) LoadLocal(n int) *Builder    { return b.emit(opcode.LoadLocal, byte(n)) }
func (b *Builder) StoreLocal(n int) *Builder   { return b.emit(opcode.StoreLocal, byte(n)) }
func (b *Builder) LoadGlobal(id int) *Builder  { return b.emit(opcode.LoadGlobal, byte(id)) }
func (b *Builder) StoreGlobal(id int) *Builder { return b.emit(opcode.StoreGlobal, byte(id)) }

func (b *Builder) Dup() *Builder { return b.emit(opcode.Dup) }
func (b *Builder) Pop() *Builder { return b.emit(opcode.Pop) }

// Call emits a CALL_n instruction. extraArgs is the number of arguments
// beyond the receiver (CALL_0 is a unary send: receiver only); sym is the
// method-symbol id being sent.
func (b *Builder) Call(sym, extraArgs int) *Builder {
	op := opcode.Code(int(opcode.Call0) + extraArgs)
	return b.emit(op, byte(sym))
}

// Jump emits an unconditional relative jump of offset bytes forward.
func (b *Builder) Jump(offset int) *Builder { return b.emit(opcode.Jump, byte(offset)) }

// JumpIf emits a conditional relative jump, taken when the popped
// condition is falsey.
func (b *Builder) JumpIf(offset int) *Builder { return b.emit(opcode.JumpIf, byte(offset)) }

// JumpPlaceholder emits op (Jump or JumpIf) with a zero operand byte and
// returns that byte's index in Code, for PatchJump to fill in once the
// jump target is known — the usual two-pass pattern for compiling
// forward control flow.
func (b *Builder) JumpPlaceholder(op opcode.Code) int {
	b.fn.Code = append(b.fn.Code, byte(op), 0)
	return len(b.fn.Code) - 1
}

// PatchJump backfills the operand byte at offsetIndex (as returned by
// JumpPlaceholder) so the jump lands just past the current end of Code.
func (b *Builder) PatchJump(offsetIndex int) {
	target := len(b.fn.Code)
	b.fn.Code[offsetIndex] = byte(target - (offsetIndex + 1))
}

// Is emits IS: pops a class then a value, pushes whether get_class(value)
// == class.
func (b *Builder) Is() *Builder { return b.emit(opcode.Is) }

// End emits END, popping the return value and unwinding one call frame.
func (b *Builder) End() *Builder { return b.emit(opcode.End) }
