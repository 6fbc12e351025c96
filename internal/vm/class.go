package vm

import "github.com/fermian/wren/internal/value"

// newSingleClass allocates one bare class object wired to the given
// metaclass/superclass, with no method-slot inheritance performed — the
// low-level primitive NewClass is built from.
func (vm *VM) newSingleClass(metaclass, superclass *ObjClass, name string) *ObjClass {
	c := vm.heap.newRawClass(vm)
	c.Metaclass = metaclass
	c.Superclass = superclass
	c.Name = name
	return c
}

// NewClass constructs a class and its metaclass together:
//
//  1. Create a metaclass (metaclass=nil, superclass=nil).
//  2. Pin it.
//  3. Create the class (metaclass=that metaclass, superclass=superclass).
//  4. Unpin the metaclass.
//  5. If superclass is non-nil, copy all method slots from superclass
//     into the new class.
//
// Step 2's pin exists because step 3 is itself a second allocation that
// may trigger a collection; without pinning, the metaclass allocated in
// step 1 would be unreachable from any root (it isn't on the operand
// stack, not yet installed as anyone's Metaclass field) and could be
// swept before step 3 links it in.
func (vm *VM) NewClass(superclass *ObjClass, name string) *ObjClass {
	meta := vm.newSingleClass(nil, nil, name+" metaclass")
	vm.heap.Pin(value.FromObj(meta))
	class := vm.newSingleClass(meta, superclass, name)
	vm.heap.Unpin(value.FromObj(meta))

	if superclass != nil {
		// Inheritance by flattening: Methods is a fixed-size Go array, so
		// a plain assignment is already a shallow copy of the slot
		// array — no loop needed, Go's array value semantics do it
		// directly.
		class.Methods = superclass.Methods
	}
	return class
}

// BindPrimitive installs a native method at symbol id sym on c.
func (c *ObjClass) BindPrimitive(sym int, fn Primitive) {
	c.Methods[sym] = MethodSlot{Kind: MethodPrimitive, Primitive: fn}
}

// BindBlock installs a user-defined bytecode method at symbol id sym on c,
// implementing the METHOD opcode's "bind methods[sym] := block(fn)".
func (c *ObjClass) BindBlock(sym int, fn *ObjFn) {
	c.Methods[sym] = MethodSlot{Kind: MethodBlock, Fn: fn}
}
