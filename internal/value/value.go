// Package value implements the tagged Value union: the small set of things
// a wren program can hold on the operand stack or in a variable slot. It
// deliberately has no dependency on the heap or object packages — Value
// only ever *references* a heap object through an opaque interface, it
// never owns one, which keeps this package a true leaf.
package value

// Tag discriminates the Value union's variants.
type Tag byte

const (
	TagFalse Tag = iota
	TagTrue
	TagNull
	// TagNoValue is the interpreter-internal sentinel meaning "a primitive
	// already manipulated the frame stack directly; skip normal return
	// handling." It must never reach user code or be left on the operand
	// stack as a program-visible value.
	TagNoValue
	TagNumber
	TagObject
)

// Obj is the minimal capability every heap object exposes to the value
// package: enough to print and compare it without value importing the
// object-definition package (which in turn would need to import value for
// ObjFn's constant pool — Go does not allow that cycle, and mirroring it
// with an interface is the idiomatic way out).
type Obj interface {
	// ObjType is a small string tag ("class", "fn", "string", "instance")
	// for diagnostics; dispatch narrows to concrete object types directly.
	ObjType() string
}

// Value is the tagged union: only one of Num / Obj is meaningful, selected
// by Tag; Go has no native union type, so unlike a C `struct { ValueType
// type; union {...}; }` this simply carries both fields and relies on
// callers to respect Tag — narrowing accessors are the caller's
// precondition to respect, not the value's to enforce.
type Value struct {
	Tag Tag
	Num float64
	Obj Obj
}

var (
	False   = Value{Tag: TagFalse}
	True    = Value{Tag: TagTrue}
	Null    = Value{Tag: TagNull}
	NoValue = Value{Tag: TagNoValue}
)

// Bool returns the canonical True or False value for b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number wraps a float64 as a Value.
func Number(n float64) Value {
	return Value{Tag: TagNumber, Num: n}
}

// FromObj wraps a heap object reference as a Value.
func FromObj(o Obj) Value {
	return Value{Tag: TagObject, Obj: o}
}

func (v Value) IsObj() bool     { return v.Tag == TagObject }
func (v Value) IsNull() bool    { return v.Tag == TagNull }
func (v Value) IsBool() bool    { return v.Tag == TagFalse || v.Tag == TagTrue }
func (v Value) IsNumber() bool  { return v.Tag == TagNumber }
func (v Value) IsNoValue() bool { return v.Tag == TagNoValue }

// AsBool narrows a Value known to carry TagFalse/TagTrue. Its precondition
// is the caller's — the interpreter is trusted to have type-checked via
// dispatch before calling it.
func (v Value) AsBool() bool { return v.Tag == TagTrue }

// AsNumber narrows a Value known to carry TagNumber.
func (v Value) AsNumber() float64 { return v.Num }

// Truthy implements the engine's truthiness rule: only `false` is falsey;
// every other value, including `null`, is truthy.
func (v Value) Truthy() bool { return v.Tag != TagFalse }

// Equal implements identity-flavoured equality: same tag, same payload.
// Object equality is reference identity (the same *Obj), never structural.
// The heap's Unpin uses it to match a value against the most recent pin.
func Equal(a, b Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case TagNumber:
		return a.Num == b.Num
	case TagObject:
		return a.Obj == b.Obj
	default:
		return true // false/true/null/no-value are singletons of their tag
	}
}
