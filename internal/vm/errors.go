package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one call-frame's worth of context for error
// reporting.
type StackFrame struct {
	Selector string // message selector active in this frame, if any
	IP       int    // instruction pointer at the point of the error
}

// RuntimeError is returned (not panicked) for faults the embedder can
// reasonably recover from: malformed input discovered before the dispatch
// loop ever starts, such as a nil ObjFn passed to Interpret. This category
// is reserved for the caller's own contract violations, as distinct from
// faults that occur mid-dispatch (see Fatal).
type RuntimeError struct {
	Message string
	Stack   []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := len(e.Stack) - 1; i >= 0; i-- {
		f := e.Stack[i]
		b.WriteString(fmt.Sprintf("\n  at ip=%d", f.IP))
		if f.Selector != "" {
			b.WriteString(fmt.Sprintf(" (selector: %s)", f.Selector))
		}
	}
	return b.String()
}

// Fatal is the panic payload for fatal error categories: method-not
// -implemented dispatch failure, pin-stack misuse, and stack/frame
// overflow. "Process terminated" is, for an embeddable Go library, better
// expressed as "panic and let the host decide" than a hardcoded os.Exit —
// there is still no unwinding exception model reachable from wren
// bytecode itself (no opcode catches a Fatal), only the host process
// (cmd/wren, or a test's recover) ever observes one.
type Fatal struct {
	Message string
	Stack   []StackFrame
}

func (f Fatal) Error() string {
	var b strings.Builder
	b.WriteString("fatal: ")
	b.WriteString(f.Message)
	for i := len(f.Stack) - 1; i >= 0; i-- {
		fr := f.Stack[i]
		b.WriteString(fmt.Sprintf("\n  at ip=%d", fr.IP))
		if fr.Selector != "" {
			b.WriteString(fmt.Sprintf(" (selector: %s)", fr.Selector))
		}
	}
	return b.String()
}
