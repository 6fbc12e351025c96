package vm

import (
	"fmt"
	"log/slog"

	"github.com/fermian/wren/internal/value"
)

// initialNextGC is the 1 MiB starting threshold.
const initialNextGC = 1 << 20

// defaultGrowthFactor implements the nextGC = total * 3/2 growth rule
// when no override is configured.
const defaultGrowthFactor = 1.5

// defaultMaxPinDepth bounds the pin stack at the same order of magnitude
// as the call-frame stack (defaultFramesCapacity): a correctly scoped
// Pin/Unpin sequence never nests anywhere close to this deep, so hitting
// it means some caller is pinning without ever unpinning.
const defaultMaxPinDepth = 256

// Rough per-object accounting sizes. These exist only to give
// totalAllocated/nextGC something plausible to track — the exact numbers
// are this implementation's own bookkeeping, not an observable contract,
// beyond the shape: string is header + text bytes (length+1); function is
// header + fixed bytecode buffer + fixed constants buffer; class is header
// (fixed-size with inline method array); instance is header alone.
const (
	headerSize     = 16
	valueSize      = 16
	methodSlotSize = 24
)

func classSize() int {
	return headerSize + 8*2 /* Metaclass, Superclass pointers */ + 256*methodSlotSize
}

func instanceSize() int { return headerSize + 8 /* Class pointer */ }

func stringSize(n int) int { return headerSize + n + 1 }

func fnSize(codeCap, constCap int) int {
	return headerSize + codeCap + constCap*valueSize
}

// RootScanner is implemented by whoever owns roots beyond the heap's own
// pin stack — in this module, *VM, which knows about globals and the
// active Fiber's stack and call frames. Keeping this as an interface
// rather than a direct *VM field lets Heap stay ignorant of VM, avoiding a
// dependency cycle back from the object-model half of this package to the
// interpreter half — even though both live in the same Go package today,
// the separation documents the boundary between allocation/collection and
// interpretation.
type RootScanner interface {
	ScanRoots(mark func(value.Value))
}

// GCStats summarizes the most recently completed collection: totalAllocated
// must visibly decrease by the sum of freed sizes.
type GCStats struct {
	ObjectsSwept int
	BytesFreed   int
	NewThreshold int
}

// Heap owns allocation tracking, the pin stack, and the mark-and-sweep
// collector: the VM's all-objects list head, total bytes allocated, and
// the next-GC threshold.
type Heap struct {
	first          Object
	totalAllocated int
	nextGC         int
	growthFactor   float64
	pinned         []value.Value
	maxPinDepth    int
	stressGC       bool
	logger         *slog.Logger
	lastGC         GCStats
}

func newHeap(logger *slog.Logger, stressGC bool, initialThreshold int, growthFactor float64, maxPinDepth int) *Heap {
	if initialThreshold <= 0 {
		initialThreshold = initialNextGC
	}
	if growthFactor <= 0 {
		growthFactor = defaultGrowthFactor
	}
	if maxPinDepth <= 0 {
		maxPinDepth = defaultMaxPinDepth
	}
	return &Heap{
		nextGC:       initialThreshold,
		growthFactor: growthFactor,
		maxPinDepth:  maxPinDepth,
		stressGC:     stressGC,
		logger:       logger,
	}
}

// TotalAllocated is the current upper bound on live bytes.
func (h *Heap) TotalAllocated() int { return h.totalAllocated }

// NextGC reports the current collection threshold.
func (h *Heap) NextGC() int { return h.nextGC }

// LastGCStats returns the outcome of the most recent collection.
func (h *Heap) LastGCStats() GCStats { return h.lastGC }

// account implements allocate(vm, size): it charges size against
// totalAllocated and, if the threshold is now exceeded (or stress mode
// forces it), runs a collection before the caller links the new object
// in. Because the new object does not yet exist as an Object at this
// point, it cannot itself be swept — only previously-live objects are at
// risk. Callers must have already pinned or rooted any *other*
// intermediate object they are still holding.
func (h *Heap) account(size int, roots RootScanner) {
	h.totalAllocated += size
	if h.totalAllocated > h.nextGC || h.stressGC {
		// collect also advances nextGC to totalAllocated * growthFactor.
		h.collect(roots)
	}
}

// initObj links obj into the all-objects list, clears its mark flag, and
// records its type and accounted size.
func (h *Heap) initObj(o Object, kind Kind, size int) {
	hdr := o.header()
	hdr.kind = kind
	hdr.marked = false
	hdr.size = size
	hdr.next = h.first
	h.first = o
}

// Pin extends the root set with v for the duration of a scoped,
// LIFO-disciplined allocation sequence. Used by multi-step constructions
// such as NewClass, which must protect the freshly allocated metaclass
// across the second allocation that creates the class itself. Pin nesting
// past maxPinDepth is fatal rather than silently growing forever — it
// means some caller's Pin is never matched by an Unpin.
func (h *Heap) Pin(v value.Value) {
	if len(h.pinned) >= h.maxPinDepth {
		panic(Fatal{Message: fmt.Sprintf("pin stack overflow: exceeded max pinned depth of %d", h.maxPinDepth)})
	}
	h.pinned = append(h.pinned, v)
}

// Unpin releases the most recently pinned value. Unpin must match the most
// recent pin; a mismatch is a fatal error, not a recoverable one, because
// it means some caller's scoping discipline is broken in a way that could
// already have let the collector free a live object.
func (h *Heap) Unpin(v value.Value) {
	n := len(h.pinned)
	if n == 0 || !value.Equal(h.pinned[n-1], v) {
		// No Stack here: Heap has no handle on the active fiber by
		// design (see RootScanner) and pin/unpin misuse is a
		// construction-time bug in NewClass/NewInstance-style helpers
		// rather than a bytecode dispatch fault, so there is no call
		// frame to report.
		panic(Fatal{Message: "pin stack misuse: unpin does not match most recent pin"})
	}
	h.pinned = h.pinned[:n-1]
}

// NewString allocates an immutable byte string.
func (h *Heap) NewString(bytes []byte, roots RootScanner) *ObjString {
	h.account(stringSize(len(bytes)), roots)
	s := &ObjString{Chars: append([]byte(nil), bytes...)}
	h.initObj(s, KindString, stringSize(len(bytes)))
	return s
}

// NewFunction allocates an ObjFn whose code and constant buffers are
// pre-sized to codeCap/constCap, for the compiler-facing new_function
// contract. Its accounted size is fixed from those capacities.
func (h *Heap) NewFunction(codeCap, constCap int, roots RootScanner) *ObjFn {
	size := fnSize(codeCap, constCap)
	h.account(size, roots)
	fn := &ObjFn{
		Code:      make([]byte, 0, codeCap),
		Constants: make([]value.Value, 0, constCap),
	}
	h.initObj(fn, KindFunction, size)
	return fn
}

// newRawClass allocates a bare ObjClass with no metaclass/superclass
// wiring and no inherited methods; NewClass (class.go) composes this into
// the full class-construction protocol.
func (h *Heap) newRawClass(roots RootScanner) *ObjClass {
	size := classSize()
	h.account(size, roots)
	c := &ObjClass{}
	h.initObj(c, KindClass, size)
	return c
}

// NewInstance allocates a bare instance of class.
func (h *Heap) NewInstance(class *ObjClass, roots RootScanner) *ObjInstance {
	size := instanceSize()
	h.account(size, roots)
	inst := &ObjInstance{Class: class}
	h.initObj(inst, KindInstance, size)
	return inst
}
