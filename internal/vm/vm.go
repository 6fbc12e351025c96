package vm

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/fermian/wren/internal/opcode"
	"github.com/fermian/wren/internal/symtab"
	"github.com/fermian/wren/internal/value"
)

// Options configures a VM at construction time. It is deliberately a
// plain struct rather than the functional-options pattern: every field
// here also has a direct analogue in internal/config's YAML schema, and a
// struct keeps that correspondence visible at the call site instead of
// hiding it behind option-constructor functions.
type Options struct {
	// Logger receives GC-cycle and fatal-dispatch diagnostics. A nil
	// Logger discards everything.
	Logger *slog.Logger
	// StressGC, when true, forces a collection on every allocation.
	StressGC bool
	// InitialGCThreshold overrides the 1 MiB default nextGC starts at.
	// Zero means "use the default".
	InitialGCThreshold int
	// GrowthFactor overrides the nextGC = totalAllocated * factor growth
	// rule's default of 1.5. Zero or negative means "use the default".
	GrowthFactor float64
	// MaxPinDepth overrides the default cap on simultaneously pinned
	// values. Zero or negative means "use the default".
	MaxPinDepth int
}

// VM owns all engine state (New returns an independent instance each
// call): the all-objects list and allocation
// accounting (via Heap), method and global symbol tables, the
// global-value table, the single active Fiber, and the six built-in class
// handles get_class dispatches against.
type VM struct {
	id uuid.UUID

	heap *Heap

	methods       *symtab.Table
	globalSymbols *symtab.Table
	globalValues  []value.Value

	fiber *Fiber

	objectClass *ObjClass
	boolClass   *ObjClass
	nullClass   *ObjClass
	numClass    *ObjClass
	fnClass     *ObjClass
	stringClass *ObjClass

	newSymbol int

	logger *slog.Logger
}

// New constructs a VM and runs the bootstrap sequence: creating
// objectClass, boolClass, nullClass, numClass, fnClass and stringClass,
// Object first, each with a default `new` installed on its metaclass. The
// rest of a real core library (arithmetic, string methods, collections —
// a "loadCore" step) is an external collaborator and is not part of this
// engine.
func New(opts Options) *VM {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := uuid.New()
	logger = logger.With("vm", id.String())

	vm := &VM{
		id:            id,
		heap:          newHeap(logger, opts.StressGC, opts.InitialGCThreshold, opts.GrowthFactor, opts.MaxPinDepth),
		methods:       symtab.New(),
		globalSymbols: symtab.New(),
		logger:        logger,
	}
	vm.newSymbol = vm.methods.Ensure("new")
	vm.bootstrap()
	return vm
}

// ID uniquely identifies this VM instance, for log correlation when a
// process runs several (as tests routinely do).
func (vm *VM) ID() uuid.UUID { return vm.id }

func (vm *VM) bootstrap() {
	vm.objectClass = vm.defineClass(nil, "Object")
	vm.boolClass = vm.defineClass(vm.objectClass, "Boolean")
	vm.nullClass = vm.defineClass(vm.objectClass, "Null")
	vm.numClass = vm.defineClass(vm.objectClass, "Num")
	vm.fnClass = vm.defineClass(vm.objectClass, "Fn")
	vm.stringClass = vm.defineClass(vm.objectClass, "String")
}

// defineClass creates a built-in class, installs the default `new` on its
// metaclass, and binds it to the global of the same name. The global
// binding is what keeps built-in classes alive: the VM's own class-handle
// fields are not part of the collector's root set, so a class reachable
// only through one of them would otherwise be swept out from under it —
// including mid-bootstrap, where each defineClass call allocates while the
// previously created classes are held nowhere else.
func (vm *VM) defineClass(superclass *ObjClass, name string) *ObjClass {
	class := vm.NewClass(superclass, name)
	vm.installDefaultNew(class)
	// Two steps: EnsureGlobalSymbol may grow globalValues, so the slice
	// must be re-read after the call, not captured before it.
	id := vm.EnsureGlobalSymbol(name)
	vm.globalValues[id] = value.FromObj(class)
	return class
}

// installDefaultNew binds primitive_metaclass_new as `new` on class's
// metaclass, the same step the CLASS/SUBCLASS opcodes perform for classes
// a running program creates.
func (vm *VM) installDefaultNew(class *ObjClass) {
	class.Metaclass.BindPrimitive(vm.newSymbol, primitiveMetaclassNew)
}

// primitiveMetaclassNew implements the default `new`: it allocates an
// instance whose class is the receiver (the class whose metaclass
// dispatched us), with no initializer invocation — a deliberate gap, not
// an oversight, left for loadCore or a user override to fill in.
func primitiveMetaclassNew(vm *VM, fiber *Fiber, args []value.Value) value.Value {
	class := vm.mustClass(args[0])
	return vm.NewInstance(class)
}

// mustClass and mustFn narrow a Value to an object type the caller already
// expects by construction (a compiler-emitted CLASS/SUBCLASS/METACLASS/
// METHOD/IS operand, or a primitive's receiver argument). Such
// preconditions are the caller's to uphold; this implementation still
// checks and fails fatally rather than silently misinterpreting the
// union, consistent with how get_class handles its own unknown-subtype
// case.
func (vm *VM) mustClass(v value.Value) *ObjClass {
	if v.IsObj() {
		if c, ok := v.Obj.(*ObjClass); ok {
			return c
		}
	}
	panic(Fatal{Message: "expected a class value", Stack: vm.stackTrace()})
}

func (vm *VM) mustFn(v value.Value) *ObjFn {
	if v.IsObj() {
		if f, ok := v.Obj.(*ObjFn); ok {
			return f
		}
	}
	panic(Fatal{Message: "expected a function value", Stack: vm.stackTrace()})
}

// stackTrace snapshots the active fiber's call frames for a Fatal's Stack
// field, or nil if no fiber is active yet (a fault discovered before
// Interpret pushes one).
func (vm *VM) stackTrace() []StackFrame {
	if vm.fiber == nil {
		return nil
	}
	return vm.fiber.trace()
}

// Interpret pushes an initial call frame (stackStart=0) and runs the
// dispatch loop to completion. Fatal dispatch faults propagate as a
// panic(Fatal{...}) — there is no in-engine recovery, matching the "no
// unwinding exception model" design; InterpretRecover below is the
// convenience wrapper an embedder that wants a plain error instead of a
// panic can use.
func (vm *VM) Interpret(fn *ObjFn) (value.Value, error) {
	if fn == nil {
		return value.Null, &RuntimeError{Message: "interpret: nil function"}
	}
	vm.fiber = newFiber()
	vm.fiber.pushFrame(fn, 0, "")
	return vm.run(), nil
}

// PrepareInterpret pushes fn as the outermost call frame of a fresh fiber
// without running it, so a caller can then drive execution one instruction
// at a time with Step. This is what a Debugger-backed session uses instead
// of Interpret: cmd/wren's "debug" console calls PrepareInterpret once and
// then Step repeatedly, consulting the Debugger between steps to decide
// whether to keep going automatically or wait for the user.
func (vm *VM) PrepareInterpret(fn *ObjFn) error {
	if fn == nil {
		return &RuntimeError{Message: "interpret: nil function"}
	}
	vm.fiber = newFiber()
	vm.fiber.pushFrame(fn, 0, "")
	return nil
}

// Step executes exactly one instruction of the fiber set up by
// PrepareInterpret (or left active by a prior Step). done reports whether
// the outermost frame has returned, in which case result is the program's
// final value; Fatal dispatch faults still propagate as a panic, matching
// Interpret's contract.
func (vm *VM) Step() (done bool, result value.Value) {
	return vm.step()
}

// InterpretRecover runs Interpret and converts a Fatal panic into a
// returned error, for hosts (cmd/wren, tests) that would rather not set up
// their own recover().
func (vm *VM) InterpretRecover(fn *ObjFn) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(Fatal); ok {
				err = f
				return
			}
			panic(r)
		}
	}()
	return vm.Interpret(fn)
}

// run is the bytecode dispatch loop: execute instructions until the
// outermost call frame returns.
func (vm *VM) run() value.Value {
	for {
		if done, result := vm.step(); done {
			return result
		}
	}
}

// step executes exactly one instruction of the active fiber. done is true
// only once the outermost call frame has returned, in which case result
// holds the value Interpret should hand back to its caller. This is the
// same body run() drives to completion; Debugger-attached callers
// (cmd/wren's debug console) drive it one instruction at a time instead,
// inspecting Fiber/CallFrame state between calls.
func (vm *VM) step() (done bool, result value.Value) {
	fiber := vm.fiber
	frame := fiber.currentFrame()
	code := frame.fn.Code
	op := opcode.Code(code[frame.ip])
	frame.ip++

	switch op {
	case opcode.Constant:
		k := int(code[frame.ip])
		frame.ip++
		fiber.push(frame.fn.Constants[k])

	case opcode.Null:
		fiber.push(value.Null)
	case opcode.False:
		fiber.push(value.False)
	case opcode.True:
		fiber.push(value.True)

	case opcode.Class:
		class := vm.NewClass(vm.objectClass, "")
		vm.installDefaultNew(class)
		if vm.objectClass == nil {
			// "First class created is Object" heuristic: relevant
			// only if an embedder skips New's bootstrap and defines
			// Object from bytecode instead.
			vm.objectClass = class
		}
		fiber.push(value.FromObj(class))

	case opcode.Subclass:
		super := vm.mustClass(fiber.pop())
		class := vm.NewClass(super, "")
		vm.installDefaultNew(class)
		fiber.push(value.FromObj(class))

	case opcode.Metaclass:
		class := vm.mustClass(fiber.peek())
		fiber.push(value.FromObj(class.Metaclass))

	case opcode.Method:
		sym := int(code[frame.ip])
		frame.ip++
		k := int(code[frame.ip])
		frame.ip++
		class := vm.mustClass(fiber.peek())
		fn := vm.mustFn(frame.fn.Constants[k])
		class.BindBlock(sym, fn)

	case opcode.LoadLocal:
		n := int(code[frame.ip])
		frame.ip++
		fiber.push(fiber.stack[frame.stackStart+n])

	case opcode.StoreLocal:
		n := int(code[frame.ip])
		frame.ip++
		fiber.stack[frame.stackStart+n] = fiber.peek()

	case opcode.LoadGlobal:
		g := int(code[frame.ip])
		frame.ip++
		fiber.push(vm.globalValues[g])

	case opcode.StoreGlobal:
		g := int(code[frame.ip])
		frame.ip++
		vm.globalValues[g] = fiber.peek()

	case opcode.Dup:
		fiber.push(fiber.peek())
	case opcode.Pop:
		fiber.pop()

	case opcode.Jump:
		o := int(code[frame.ip])
		frame.ip++
		frame.ip += o

	case opcode.JumpIf:
		o := int(code[frame.ip])
		frame.ip++
		v := fiber.pop()
		if !v.Truthy() {
			frame.ip += o
		}

	case opcode.Is:
		class := vm.mustClass(fiber.pop())
		v := fiber.pop()
		fiber.push(value.Bool(vm.getClass(v) == class))

	case opcode.End:
		endResult := fiber.pop()
		fiber.numFrames--
		if fiber.numFrames == 0 {
			return true, endResult
		}
		// frame is the frame that is ending, not the caller: its
		// stackStart is the slot that held the receiver when this
		// call was dispatched (fiber.pushFrame(fn, receiverIndex)),
		// which is where the result belongs regardless of how much
		// the caller has since pushed for other calls.
		fiber.stack[frame.stackStart] = endResult
		fiber.stackSize = frame.stackStart + 1

	default:
		if numArgs, ok := op.IsCall(); ok {
			sym := int(code[frame.ip])
			frame.ip++
			vm.dispatch(sym, numArgs)
		} else {
			panic(Fatal{Message: fmt.Sprintf("unknown opcode %d", op), Stack: vm.stackTrace()})
		}
	}

	return false, value.Value{}
}

// dispatch implements method dispatch for CALL_n.
func (vm *VM) dispatch(sym, numArgs int) {
	fiber := vm.fiber
	receiverIndex := fiber.stackSize - numArgs
	receiver := fiber.stack[receiverIndex]
	class := vm.getClass(receiver)
	slot := &class.Methods[sym]

	switch slot.Kind {
	case MethodNone:
		selector := vm.methods.Name(sym)
		vm.logger.Error("dispatch failure", "class", class.Name, "selector", selector)
		panic(Fatal{Message: fmt.Sprintf("%s does not implement %q", class.Name, selector), Stack: vm.stackTrace()})

	case MethodPrimitive:
		args := fiber.stack[receiverIndex : receiverIndex+numArgs]
		result := slot.Primitive(vm, fiber, args)
		if !result.IsNoValue() {
			fiber.stack[receiverIndex] = result
			fiber.stackSize = receiverIndex + 1
		}

	case MethodBlock:
		fiber.pushFrame(slot.Fn, receiverIndex, vm.methods.Name(sym))
	}
}

// FindGlobal returns the value bound to name, or null if name was never
// defined.
func (vm *VM) FindGlobal(name string) value.Value {
	id := vm.globalSymbols.Find(name)
	if id < 0 {
		return value.Null
	}
	return vm.globalValues[id]
}

// EnsureGlobalSymbol interns name in the global-symbol table (growing
// globalValues to match) and returns its id, for compiler-facing use.
func (vm *VM) EnsureGlobalSymbol(name string) int {
	id := vm.globalSymbols.Ensure(name)
	for len(vm.globalValues) <= id {
		vm.globalValues = append(vm.globalValues, value.Null)
	}
	return id
}

// EnsureMethodSymbol interns a method selector and returns its id.
func (vm *VM) EnsureMethodSymbol(name string) int {
	return vm.methods.Ensure(name)
}

// MethodSymbols and GlobalSymbols expose the two compiler-facing symbol
// tables.
func (vm *VM) MethodSymbols() *symtab.Table { return vm.methods }
func (vm *VM) GlobalSymbols() *symtab.Table { return vm.globalSymbols }

// NewString, NewInstance and NewFunctionBuilder are the embedding-API
// allocation entry points.
func (vm *VM) NewString(bytes []byte) value.Value {
	return value.FromObj(vm.heap.NewString(bytes, vm))
}

func (vm *VM) NewInstance(class *ObjClass) value.Value {
	return value.FromObj(vm.heap.NewInstance(class, vm))
}

func (vm *VM) NewFunctionBuilder(codeCap, constCap int) *ObjFn {
	return vm.heap.NewFunction(codeCap, constCap, vm)
}

// ObjectClass, BoolClass, NullClass, NumClass, FnClass and StringClass
// expose the six built-in class handles to embedders and tests.
func (vm *VM) ObjectClass() *ObjClass { return vm.objectClass }
func (vm *VM) BoolClass() *ObjClass   { return vm.boolClass }
func (vm *VM) NullClass() *ObjClass   { return vm.nullClass }
func (vm *VM) NumClass() *ObjClass    { return vm.numClass }
func (vm *VM) FnClass() *ObjClass     { return vm.fnClass }
func (vm *VM) StringClass() *ObjClass { return vm.stringClass }

// Pin and Unpin expose pin_obj/unpin_obj to callers (typically the asm
// builder or an embedder) constructing a compound object across multiple
// allocations.
func (vm *VM) Pin(v value.Value)   { vm.heap.Pin(v) }
func (vm *VM) Unpin(v value.Value) { vm.heap.Unpin(v) }

// CollectGarbage runs a full mark-and-sweep cycle on demand.
func (vm *VM) CollectGarbage() { vm.heap.CollectGarbage(vm) }

// TotalAllocated and LastGCStats expose heap accounting for diagnostics
// and tests.
func (vm *VM) TotalAllocated() int  { return vm.heap.TotalAllocated() }
func (vm *VM) NextGCThreshold() int { return vm.heap.NextGC() }
func (vm *VM) LastGCStats() GCStats { return vm.heap.LastGCStats() }

// ScanRoots implements RootScanner: every value obtainable via
// global-symbol lookup (skipping null globals as an optimization) and the
// active fiber's call-frame functions and operand stack. Pinned values are
// handled directly by Heap itself, since the pin stack lives there.
func (vm *VM) ScanRoots(mark func(value.Value)) {
	for _, g := range vm.globalValues {
		if !g.IsNull() {
			mark(g)
		}
	}
	if vm.fiber == nil {
		return
	}
	for i := 0; i < vm.fiber.numFrames; i++ {
		mark(value.FromObj(vm.fiber.frames[i].fn))
	}
	for i := 0; i < vm.fiber.stackSize; i++ {
		mark(vm.fiber.stack[i])
	}
}

// PrintValue is the canonical textual rendering used by an embedder's own
// I/O layer (out of this engine's scope) to show a Value to a user.
func PrintValue(v value.Value) string {
	switch v.Tag {
	case value.TagFalse:
		return "false"
	case value.TagTrue:
		return "true"
	case value.TagNull:
		return "null"
	case value.TagNoValue:
		return ""
	case value.TagNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case value.TagObject:
		switch o := v.Obj.(type) {
		case *ObjString:
			return o.String()
		case *ObjClass:
			return fmt.Sprintf("[class %p]", o)
		case *ObjFn:
			return fmt.Sprintf("[fn %p]", o)
		case *ObjInstance:
			return fmt.Sprintf("[instance %p]", o)
		}
	}
	return ""
}
