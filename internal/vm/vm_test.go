package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fermian/wren/internal/asm"
	"github.com/fermian/wren/internal/opcode"
	"github.com/fermian/wren/internal/value"
	"github.com/fermian/wren/internal/vm"
)

func newTestVM(t *testing.T) *vm.VM {
	t.Helper()
	return vm.New(vm.Options{})
}

// Scenario 1: CONSTANT 0 (num 42); END -> 42
func TestInterpretConstant(t *testing.T) {
	v := newTestVM(t)
	b := asm.New(v, 8, 1)
	b.Number(42).End()

	result, err := v.Interpret(b.Fn())
	require.NoError(t, err)
	assert.Equal(t, 42.0, result.AsNumber())
}

// Scenario 2: TRUE; JUMP_IF 4; CONSTANT 0(1); JUMP 2; CONSTANT 1(2); END -> 1
// (jump offsets are in bytes, as PatchJump computes them)
func TestInterpretJumpIfNotTaken(t *testing.T) {
	v := newTestVM(t)
	b := asm.New(v, 16, 2)
	b.True()
	jmpIf := b.JumpPlaceholder(opcode.JumpIf)
	b.Number(1)
	jmp := b.JumpPlaceholder(opcode.Jump)
	b.PatchJump(jmpIf)
	b.Number(2)
	b.PatchJump(jmp)
	b.End()

	result, err := v.Interpret(b.Fn())
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.AsNumber())
}

// Scenario 3: FALSE; JUMP_IF 4; CONSTANT 0(1); JUMP 2; CONSTANT 1(2); END -> 2
func TestInterpretJumpIfTaken(t *testing.T) {
	v := newTestVM(t)
	b := asm.New(v, 16, 2)
	b.False()
	jmpIf := b.JumpPlaceholder(opcode.JumpIf)
	b.Number(1)
	jmp := b.JumpPlaceholder(opcode.Jump)
	b.PatchJump(jmpIf)
	b.Number(2)
	b.PatchJump(jmp)
	b.End()

	result, err := v.Interpret(b.Fn())
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.AsNumber())
}

// Scenario 4: define class C, C new, END -> instance whose classObj == C
func TestInterpretClassNew(t *testing.T) {
	v := newTestVM(t)
	newSym := v.EnsureMethodSymbol("new")
	cGlobal := v.EnsureGlobalSymbol("C")

	b := asm.New(v, 32, 1)
	b.Class().StoreGlobal(cGlobal).LoadGlobal(cGlobal).Call(newSym, 0).End()

	result, err := v.Interpret(b.Fn())
	require.NoError(t, err)
	require.True(t, result.IsObj())

	inst, ok := result.Obj.(*vm.ObjInstance)
	require.True(t, ok, "expected an instance, got %T", result.Obj)
	assert.Same(t, v.FindGlobal("C").Obj, inst.Class)
}

// Scenario 5: class C with method m returning 7; instance.m -> 7
func TestInterpretMethodDispatch(t *testing.T) {
	v := newTestVM(t)
	newSym := v.EnsureMethodSymbol("new")
	mSym := v.EnsureMethodSymbol("m")
	cGlobal := v.EnsureGlobalSymbol("C")

	method := asm.New(v, 8, 1)
	method.Number(7).End()

	main := asm.New(v, 32, 1)
	main.
		Class().
		MethodFn(mSym, method.Fn()).
		StoreGlobal(cGlobal).
		LoadGlobal(cGlobal).
		Call(newSym, 0).
		Call(mSym, 0).
		End()

	result, err := v.Interpret(main.Fn())
	require.NoError(t, err)
	assert.Equal(t, 7.0, result.AsNumber())
}

// Scenario 6: subclass D overrides m to return 9; D instance.m -> 9, but a
// fresh C instance still returns 7.
func TestInterpretDispatchOverride(t *testing.T) {
	v := newTestVM(t)
	mSym := v.EnsureMethodSymbol("m")

	cMethod := asm.New(v, 8, 1)
	cMethod.Number(7).End()
	dMethod := asm.New(v, 8, 1)
	dMethod.Number(9).End()

	c := v.NewClass(v.ObjectClass(), "C")
	c.BindBlock(mSym, cMethod.Fn())

	d := v.NewClass(c, "D")
	d.BindBlock(mSym, dMethod.Fn())

	dInstVal := v.NewInstance(d)
	prog := asm.New(v, 8, 1)
	idx := prog.AddConstant(dInstVal)
	prog.Constant(idx).Call(mSym, 0).End()
	result, err := v.Interpret(prog.Fn())
	require.NoError(t, err)
	assert.Equal(t, 9.0, result.AsNumber())

	cInstVal := v.NewInstance(c)
	prog2 := asm.New(v, 8, 1)
	idx2 := prog2.AddConstant(cInstVal)
	prog2.Constant(idx2).Call(mSym, 0).End()
	result2, err := v.Interpret(prog2.Fn())
	require.NoError(t, err)
	assert.Equal(t, 7.0, result2.AsNumber())
}

// Property 4: immediately after NewClass(super), subclass.Methods ==
// super.Methods slot for slot.
func TestInheritanceCopy(t *testing.T) {
	v := newTestVM(t)
	mSym := v.EnsureMethodSymbol("m")

	method := asm.New(v, 8, 1)
	method.Number(1).End()

	super := v.NewClass(v.ObjectClass(), "Super")
	super.BindBlock(mSym, method.Fn())

	sub := v.NewClass(super, "Sub")
	assert.Equal(t, super.Methods, sub.Methods)
}

// TestEndWritesToEndingFramesOwnStackStart exercises property 7: a method
// that makes a nested call at a non-zero offset within its own frame must
// still see its result land at the call's own receiver slot, not at
// whatever slot the calling frame happens to occupy. f pushes `this`,
// calls g (which returns an unrelated constant), pops g's result, then
// reloads local 0 (`this`) and returns it — if END ever writes a return
// value using the wrong frame's stackStart, local 0 comes back clobbered
// with g's result instead of the receiver.
func TestEndWritesToEndingFramesOwnStackStart(t *testing.T) {
	v := newTestVM(t)
	newSym := v.EnsureMethodSymbol("new")
	fSym := v.EnsureMethodSymbol("f")
	gSym := v.EnsureMethodSymbol("g")
	cGlobal := v.EnsureGlobalSymbol("C")

	gMethod := asm.New(v, 8, 1)
	gMethod.Number(99).End()

	fMethod := asm.New(v, 8, 0)
	fMethod.
		LoadLocal(0).
		Call(gSym, 0).
		Pop().
		LoadLocal(0).
		End()

	main := asm.New(v, 32, 1)
	main.
		Class().
		MethodFn(fSym, fMethod.Fn()).
		MethodFn(gSym, gMethod.Fn()).
		StoreGlobal(cGlobal).
		LoadGlobal(cGlobal).
		Call(newSym, 0).
		Call(fSym, 0).
		End()

	result, err := v.Interpret(main.Fn())
	require.NoError(t, err)
	require.True(t, result.IsObj(), "f must return `this` (an instance), not g's 99")

	inst, ok := result.Obj.(*vm.ObjInstance)
	require.True(t, ok, "expected an instance, got %T", result.Obj)
	assert.Same(t, v.FindGlobal("C").Obj, inst.Class)
}

// Property 5 (negative direction): a method added to a superclass AFTER a
// subclass is created does not retroactively appear on the subclass —
// flattened inheritance, not a live chain walk.
func TestInheritanceDoesNotSeeLaterSuperclassMethods(t *testing.T) {
	v := newTestVM(t)
	mSym := v.EnsureMethodSymbol("m")

	super := v.NewClass(v.ObjectClass(), "Super")
	sub := v.NewClass(super, "Sub")

	method := asm.New(v, 8, 1)
	method.Number(1).End()
	super.BindBlock(mSym, method.Fn())

	assert.Equal(t, vm.MethodNone, sub.Methods[mSym].Kind)
}

// Subclassing through bytecode: SUBCLASS pops its superclass, METHOD binds
// onto the freshly pushed class, and dispatch on an instance built through
// the default `new` reaches the bound method.
func TestInterpretSubclassOpcode(t *testing.T) {
	v := newTestVM(t)
	newSym := v.EnsureMethodSymbol("new")
	mSym := v.EnsureMethodSymbol("m")
	cGlobal := v.EnsureGlobalSymbol("C")
	dGlobal := v.EnsureGlobalSymbol("D")

	method := asm.New(v, 8, 1)
	method.Number(9).End()

	main := asm.New(v, 64, 2)
	main.
		Class().
		StoreGlobal(cGlobal).
		Pop().
		LoadGlobal(cGlobal).
		Subclass().
		MethodFn(mSym, method.Fn()).
		StoreGlobal(dGlobal).
		Call(newSym, 0).
		Call(mSym, 0).
		End()

	result, err := v.Interpret(main.Fn())
	require.NoError(t, err)
	assert.Equal(t, 9.0, result.AsNumber())

	d, ok := v.FindGlobal("D").Obj.(*vm.ObjClass)
	require.True(t, ok)
	assert.Same(t, v.FindGlobal("C").Obj, d.Superclass)
}

// METACLASS pushes the peeked class's metaclass — the class `new` lives on.
func TestInterpretMetaclassOpcode(t *testing.T) {
	v := newTestVM(t)
	c := v.NewClass(v.ObjectClass(), "C")

	b := asm.New(v, 8, 1)
	idx := b.AddConstant(value.FromObj(c))
	b.Constant(idx).Metaclass().End()

	result, err := v.Interpret(b.Fn())
	require.NoError(t, err)
	require.True(t, result.IsObj())
	assert.Same(t, c.Metaclass, result.Obj)
}

// IS compares by class identity alone: an instance of a subclass is not
// `is` its superclass, because no ancestor walk happens.
func TestIsComparesClassIdentityOnly(t *testing.T) {
	v := newTestVM(t)
	c := v.NewClass(v.ObjectClass(), "C")
	d := v.NewClass(c, "D")
	inst := v.NewInstance(d)

	own := asm.New(v, 8, 2)
	own.Constant(own.AddConstant(inst)).
		Constant(own.AddConstant(value.FromObj(d))).
		Is().End()
	result, err := v.Interpret(own.Fn())
	require.NoError(t, err)
	assert.Equal(t, value.True, result)

	super := asm.New(v, 8, 2)
	super.Constant(super.AddConstant(inst)).
		Constant(super.AddConstant(value.FromObj(c))).
		Is().End()
	result, err = v.Interpret(super.Fn())
	require.NoError(t, err)
	assert.Equal(t, value.False, result)
}

// STORE_LOCAL writes through to the frame's slot without popping.
func TestStoreLocalDoesNotPop(t *testing.T) {
	v := newTestVM(t)

	b := asm.New(v, 16, 2)
	b.Null().Number(5).StoreLocal(0).Pop().LoadLocal(0).End()

	result, err := v.Interpret(b.Fn())
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.AsNumber())
}

// The full class/method/instance/dispatch flow with a collection forced on
// every single allocation: any object left unrooted between allocations
// (a class mid-construction, a method function, the receiver) would be
// swept mid-program.
func TestFullProgramUnderStressGC(t *testing.T) {
	v := vm.New(vm.Options{StressGC: true})
	newSym := v.EnsureMethodSymbol("new")
	mSym := v.EnsureMethodSymbol("m")
	cGlobal := v.EnsureGlobalSymbol("C")

	method := asm.New(v, 8, 1)
	method.Number(7).End()

	main := asm.New(v, 32, 1)
	main.
		Class().
		MethodFn(mSym, method.Fn()).
		StoreGlobal(cGlobal).
		LoadGlobal(cGlobal).
		Call(newSym, 0).
		Call(mSym, 0).
		End()

	fn := main.Release()
	method.Release()

	result, err := v.Interpret(fn)
	require.NoError(t, err)
	assert.Equal(t, 7.0, result.AsNumber())
}

// A primitive invoked with arguments consumes all of them, leaving only
// its result on the stack.
func TestPrimitiveCallConsumesArguments(t *testing.T) {
	v := newTestVM(t)
	plusSym := v.EnsureMethodSymbol("plus")

	v.NumClass().BindPrimitive(plusSym, func(_ *vm.VM, _ *vm.Fiber, args []value.Value) value.Value {
		return value.Number(args[0].AsNumber() + args[1].AsNumber())
	})

	b := asm.New(v, 16, 2)
	b.Number(3).Number(4).Call(plusSym, 1).End()

	result, err := v.Interpret(b.Fn())
	require.NoError(t, err)
	assert.Equal(t, 7.0, result.AsNumber())
}

// A primitive may instead transfer control: push a call frame itself and
// return no-value, telling the dispatch loop to skip the normal
// overwrite-receiver-and-shrink result handling.
func TestPrimitiveNoValueTransfersControl(t *testing.T) {
	v := newTestVM(t)
	invokeSym := v.EnsureMethodSymbol("invoke")

	body := asm.New(v, 8, 1)
	body.Number(11).End()

	v.FnClass().BindPrimitive(invokeSym, func(_ *vm.VM, fiber *vm.Fiber, args []value.Value) value.Value {
		fn, ok := args[0].Obj.(*vm.ObjFn)
		require.True(t, ok)
		fiber.CallFunction(fn, 1)
		return value.NoValue
	})

	main := asm.New(v, 16, 1)
	main.Constant(main.AddConstant(value.FromObj(body.Fn()))).
		Call(invokeSym, 0).
		End()

	result, err := v.Interpret(main.Fn())
	require.NoError(t, err)
	assert.Equal(t, 11.0, result.AsNumber())
}

func TestFindGlobalUnknownIsNull(t *testing.T) {
	v := newTestVM(t)
	assert.True(t, v.FindGlobal("nope").IsNull())
}

func TestDispatchOnUnimplementedMethodIsFatal(t *testing.T) {
	v := newTestVM(t)
	mSym := v.EnsureMethodSymbol("nonexistent")

	b := asm.New(v, 4, 0)
	b.Number(1).Call(mSym, 0).End()

	_, err := v.InterpretRecover(b.Fn())
	require.Error(t, err)
}

func TestInterpretNilFunction(t *testing.T) {
	v := newTestVM(t)
	_, err := v.Interpret(nil)
	require.Error(t, err)
}

// Testable property from the design ledger: a superclass reachable only
// through a subclass's Superclass pointer (no other root) must still be
// a valid reference after repeated collections.
func TestSuperclassSurvivesCollectionThroughSubclass(t *testing.T) {
	v := newTestVM(t)

	super := v.NewClass(v.ObjectClass(), "RootedViaSubOnly")
	sub := v.NewClass(super, "Sub")

	subGlobal := v.EnsureGlobalSymbol("SubOnly")
	b := asm.New(v, 4, 1)
	idx := b.AddConstant(value.FromObj(sub))
	b.Constant(idx).StoreGlobal(subGlobal).End()
	_, err := v.Interpret(b.Fn())
	require.NoError(t, err)

	// Nothing allocated so far is garbage, so any bytes a collection frees
	// here can only be the superclass and its metaclass being swept.
	before := v.TotalAllocated()
	for i := 0; i < 5; i++ {
		v.CollectGarbage()
	}

	assert.Equal(t, before, v.TotalAllocated(), "the superclass must not be swept")
	assert.Same(t, super, sub.Superclass)
}

func TestDisassembleProducesNonEmptyListing(t *testing.T) {
	b := asm.New(newTestVM(t), 4, 1)
	b.Number(1).End()

	out := vm.Disassemble(b.Fn())
	assert.Contains(t, out, "CONSTANT")
	assert.Contains(t, out, "END")
}

func TestPrintValue(t *testing.T) {
	v := newTestVM(t)
	assert.Equal(t, "false", vm.PrintValue(value.False))
	assert.Equal(t, "true", vm.PrintValue(value.True))
	assert.Equal(t, "null", vm.PrintValue(value.Null))
	assert.Equal(t, "42", vm.PrintValue(value.Number(42)))
	assert.Equal(t, "hi", vm.PrintValue(v.NewString([]byte("hi"))))
}
