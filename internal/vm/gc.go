package vm

import "github.com/fermian/wren/internal/value"

// collect runs a full mark-and-sweep cycle.
func (h *Heap) collect(roots RootScanner) {
	h.mark(roots)
	swept, freed := h.sweep()
	h.totalAllocated -= freed
	h.nextGC = int(float64(h.totalAllocated) * h.growthFactor)
	h.lastGC = GCStats{
		ObjectsSwept: swept,
		BytesFreed:   freed,
		NewThreshold: h.nextGC,
	}
	if h.logger != nil {
		h.logger.Debug("gc cycle",
			"objects_swept", swept,
			"bytes_freed", freed,
			"total_allocated", h.totalAllocated,
			"new_threshold", h.nextGC,
		)
	}
}

// mark implements the mark phase over all four root sets: the heap's own
// pin stack, plus whatever roots(interpreter state) contributes — globals,
// call-frame functions, and the operand stack.
func (h *Heap) mark(roots RootScanner) {
	for _, v := range h.pinned {
		h.markValue(v)
	}
	if roots != nil {
		roots.ScanRoots(h.markValue)
	}
}

// markValue marks the object a Value references, if any. Non-object values
// (numbers, booleans, null, no-value) carry no reference and are a no-op.
func (h *Heap) markValue(v value.Value) {
	if !v.IsObj() || v.Obj == nil {
		return
	}
	if o, ok := v.Obj.(Object); ok {
		h.markObject(o)
	}
}

// markObject marks o and recurses into whatever it references. The MARKED
// flag makes this idempotent, which is what breaks the class<->metaclass
// and function<->constant-referencing-class cycles.
func (h *Heap) markObject(o Object) {
	hdr := o.header()
	if hdr.marked {
		return
	}
	hdr.marked = true

	switch t := o.(type) {
	case *ObjClass:
		if t.Metaclass != nil {
			h.markObject(t.Metaclass)
		}
		// A class reachable only through a subclass's Superclass
		// pointer must survive collection, since IS comparisons still
		// dereference it; flattened method inheritance protects
		// dispatch but not that pointer, so Superclass is marked
		// directly rather than left implicit. See DESIGN.md.
		if t.Superclass != nil {
			h.markObject(t.Superclass)
		}
		for i := range t.Methods {
			if t.Methods[i].Kind == MethodBlock && t.Methods[i].Fn != nil {
				h.markObject(t.Methods[i].Fn)
			}
		}
	case *ObjFn:
		for _, c := range t.Constants {
			h.markValue(c)
		}
	case *ObjString, *ObjInstance:
		// no outgoing references to mark
	}
}

// sweep walks the all-objects list, unlinking and freeing unmarked
// objects, clearing the mark bit on survivors. Returns the number of
// objects swept and bytes freed.
func (h *Heap) sweep() (swept, freed int) {
	var prev Object
	cur := h.first
	for cur != nil {
		hdr := cur.header()
		next := hdr.next
		if hdr.marked {
			hdr.marked = false
			prev = cur
		} else {
			freed += hdr.size
			swept++
			if prev == nil {
				h.first = next
			} else {
				prev.header().next = next
			}
		}
		cur = next
	}
	return swept, freed
}

// CollectGarbage runs a full mark-and-sweep cycle on demand, using roots
// supplied by scanner.
func (h *Heap) CollectGarbage(roots RootScanner) {
	h.collect(roots)
}
