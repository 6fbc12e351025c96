// Package vm implements the Value & Object Model, Heap & Garbage
// Collector, Symbol Table & Class Model (jointly with internal/symtab),
// and Interpreter & Fiber components. They are kept in one package
// because the method-slot union ties the object layout to the
// interpreter's call convention (Primitive takes *VM and *Fiber) tightly
// enough that splitting them would just relocate an import cycle into an
// interface, not remove it.
package vm

import (
	"fmt"

	"github.com/fermian/wren/internal/opcode"
	"github.com/fermian/wren/internal/value"
)

// Kind tags which concrete object type a Header belongs to.
type Kind byte

const (
	KindClass Kind = iota
	KindFunction
	KindString
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindFunction:
		return "fn"
	case KindString:
		return "string"
	case KindInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Header is the shared prefix every heap object carries: a type tag, the
// collector-owned MARKED bit (here just `marked`), and the intrusive
// next-pointer threading the VM's all-objects list.
//
// size is recorded at allocation time so the sweep phase can subtract the
// exact number of bytes accounted for at allocation without recomputing it
// from (possibly since-mutated) payload lengths.
type Header struct {
	kind   Kind
	marked bool
	next   Object
	size   int
}

func (h *Header) header() *Header { return h }
func (h *Header) Kind() Kind      { return h.kind }
func (h *Header) ObjType() string { return h.kind.String() }

// Object is the internal interface every heap-allocated type satisfies.
// value.Obj is the narrower, public-facing view of the same objects.
type Object interface {
	value.Obj
	header() *Header
}

// ObjString is a heap-owned, immutable byte sequence. A Go []byte already
// carries its own length, so recovering it is free — no separate length
// field or NUL-scan needed.
type ObjString struct {
	Header
	Chars []byte
}

func (s *ObjString) String() string { return string(s.Chars) }

// ObjFn is a bytecode program: a read-only (once compiled) byte stream and
// constant pool. The interpreter never mutates Code or Constants; only the
// (external) compiler writes them, by appending. The capacities given at
// allocation size the initial buffers and the heap accounting; appends
// past them grow the slices and are not accounted.
type ObjFn struct {
	Header
	Code      []byte
	Constants []value.Value
}

// MethodKind discriminates a class's method-slot union: not implemented,
// a native primitive, or a user-defined bytecode block.
type MethodKind byte

const (
	MethodNone MethodKind = iota
	MethodPrimitive
	MethodBlock
)

// Primitive is a native method implementation. It returns either an
// ordinary Value (the call's result) or value.NoValue, which signals that
// the primitive already pushed a call frame onto fiber and left the stack
// in the shape CallN's caller expects.
type Primitive func(vm *VM, fiber *Fiber, args []value.Value) value.Value

// MethodSlot is one entry in a class's method table.
type MethodSlot struct {
	Kind      MethodKind
	Primitive Primitive
	Fn        *ObjFn
}

// ObjClass holds a metaclass, an optional superclass, and a fixed-capacity
// method-slot array indexed by method-symbol id. The array's fixed size
// trades memory (quadratic in method count x class count) for O(1)
// dispatch with no hash lookup; it could be replaced with a map without
// changing dispatch semantics, but the array keeps lookup branch-free and
// the method count here is always small.
type ObjClass struct {
	Header
	Name       string // diagnostics only; not part of the core data model
	Metaclass  *ObjClass
	Superclass *ObjClass
	Methods    [opcode.MaxSymbols]MethodSlot
}

func (c *ObjClass) String() string { return fmt.Sprintf("class %s", c.Name) }

// ObjInstance is a header plus a class reference; fields are reserved for
// future extension (user-defined instance variables).
type ObjInstance struct {
	Header
	Class *ObjClass
}

// getClass is the single place built-in class handles are consulted for
// dispatch.
func (vm *VM) getClass(v value.Value) *ObjClass {
	switch v.Tag {
	case value.TagFalse, value.TagTrue:
		return vm.boolClass
	case value.TagNull, value.TagNoValue:
		return vm.nullClass
	case value.TagNumber:
		return vm.numClass
	case value.TagObject:
		switch o := v.Obj.(type) {
		case *ObjFn:
			return vm.fnClass
		case *ObjString:
			return vm.stringClass
		case *ObjInstance:
			return o.Class
		case *ObjClass:
			return o.Metaclass
		default:
			// An unhandled object kind here means a new Object type was
			// added without updating this switch; fail loudly instead of
			// silently misdispatching.
			panic(Fatal{Message: fmt.Sprintf("get_class: unhandled object type %T", o), Stack: vm.stackTrace()})
		}
	default:
		panic(Fatal{Message: "get_class: unhandled value tag", Stack: vm.stackTrace()})
	}
}
