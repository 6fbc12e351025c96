package asm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fermian/wren/internal/asm"
	"github.com/fermian/wren/internal/opcode"
	"github.com/fermian/wren/internal/vm"
)

func TestBuilderEmitsExpectedBytes(t *testing.T) {
	v := vm.New(vm.Options{})
	b := asm.New(v, 8, 2)
	b.Number(1).Null().End()

	fn := b.Fn()
	require.Len(t, fn.Constants, 1)
	assert.Equal(t, byte(opcode.Constant), fn.Code[0])
	assert.Equal(t, byte(0), fn.Code[1])
	assert.Equal(t, byte(opcode.Null), fn.Code[2])
	assert.Equal(t, byte(opcode.End), fn.Code[3])
}

func TestJumpPlaceholderAndPatch(t *testing.T) {
	v := vm.New(vm.Options{})
	b := asm.New(v, 8, 0)

	idx := b.JumpPlaceholder(opcode.Jump)
	b.Null()
	b.PatchJump(idx)

	fn := b.Fn()
	// One byte of NULL sits between the placeholder operand and the patch
	// point, so the patched offset must be 1.
	assert.Equal(t, byte(1), fn.Code[idx])
}

// Pins are LIFO: two builders over the same VM must release in reverse
// creation order, and releasing out of order trips the heap's pin
// discipline check.
func TestBuilderReleaseIsLIFO(t *testing.T) {
	v := vm.New(vm.Options{})
	a := asm.New(v, 4, 0)
	b := asm.New(v, 4, 0)

	assert.Panics(t, func() { a.Release() }, "releasing the older builder first must violate pin discipline")

	b.Release()
	a.Release()
}

// A function under construction is pinned, so the allocations the build
// itself performs cannot sweep it even when every allocation collects.
func TestBuilderPinsFunctionUnderStressGC(t *testing.T) {
	v := vm.New(vm.Options{StressGC: true})
	b := asm.New(v, 8, 1)
	b.String("still here").End()

	result, err := v.Interpret(b.Release())
	require.NoError(t, err)
	assert.Equal(t, "still here", vm.PrintValue(result))
}

func TestStringConstantInterning(t *testing.T) {
	v := vm.New(vm.Options{})
	b := asm.New(v, 8, 1)
	idx := b.AddConstant(v.NewString([]byte("hello")))
	b.Constant(idx)

	fn := b.Fn()
	require.Len(t, fn.Constants, 1)
	assert.Equal(t, "hello", vm.PrintValue(fn.Constants[0]))
}
