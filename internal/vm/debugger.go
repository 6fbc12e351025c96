package vm

import (
	"fmt"
	"strings"

	"github.com/fermian/wren/internal/opcode"
)

// Debugger provides interactive debugging support over a VM: breakpoints
// keyed by instruction offset within the current frame's function, a step
// mode that pauses after every instruction, and stack/local/global
// inspection. This is embedder-level tooling, not part of the interpreter
// contract itself, but the engine is otherwise unobservable mid-run, which
// makes a debugger the natural supplement for anyone actually developing
// against it (see the "debug" command of cmd/wren's console).
type Debugger struct {
	vm          *VM
	breakpoints map[int]bool
	stepMode    bool
	enabled     bool
}

// NewDebugger creates a debugger attached to vm.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{
		vm:          vm,
		breakpoints: make(map[int]bool),
	}
}

// Enable and Disable toggle whether ShouldPause ever reports true.
func (d *Debugger) Enable()  { d.enabled = true }
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode enables or disables pause-after-every-instruction.
func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

// AddBreakpoint and RemoveBreakpoint manage breakpoints by instruction
// offset within whatever function is executing when that offset is hit.
func (d *Debugger) AddBreakpoint(ip int)    { d.breakpoints[ip] = true }
func (d *Debugger) RemoveBreakpoint(ip int) { delete(d.breakpoints, ip) }
func (d *Debugger) ClearBreakpoints()       { d.breakpoints = make(map[int]bool) }

// Breakpoints returns the currently set breakpoint offsets, in no
// particular order.
func (d *Debugger) Breakpoints() []int {
	ips := make([]int, 0, len(d.breakpoints))
	for ip := range d.breakpoints {
		ips = append(ips, ip)
	}
	return ips
}

// ShouldPause reports whether the VM's current instruction pointer
// warrants pausing: step mode, or a matching breakpoint.
func (d *Debugger) ShouldPause() bool {
	if !d.enabled || d.vm.fiber == nil {
		return false
	}
	if d.stepMode {
		return true
	}
	return d.breakpoints[d.vm.fiber.currentFrame().ip]
}

// ShowCurrentInstruction prints the single instruction about to execute.
func (d *Debugger) ShowCurrentInstruction() string {
	if d.vm.fiber == nil {
		return "(no active fiber)"
	}
	frame := d.vm.fiber.currentFrame()
	code := frame.fn.Code
	ip := frame.ip
	if ip >= len(code) {
		return "(at end of function)"
	}
	op := opcode.Code(code[ip])
	var b strings.Builder
	fmt.Fprintf(&b, "%4d: %s", ip, op)
	if numArgs, ok := op.IsCall(); ok {
		fmt.Fprintf(&b, " sym=%d argc=%d", code[ip+1], numArgs)
	} else if n := op.NumOperands(); n > 0 {
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, " %d", code[ip+1+i])
		}
	}
	return b.String()
}

// ShowStack renders the active fiber's operand stack, top first.
func (d *Debugger) ShowStack() string {
	if d.vm.fiber == nil || d.vm.fiber.stackSize == 0 {
		return "Stack: (empty)"
	}
	var b strings.Builder
	b.WriteString("Stack (top to bottom):\n")
	for i := d.vm.fiber.stackSize - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  [%d] %s\n", i, PrintValue(d.vm.fiber.stack[i]))
	}
	return b.String()
}

// ShowFrames renders the active fiber's call-frame stack, innermost first.
func (d *Debugger) ShowFrames() string {
	if d.vm.fiber == nil || d.vm.fiber.numFrames == 0 {
		return "Frames: (none)"
	}
	var b strings.Builder
	b.WriteString("Frames (innermost first):\n")
	for i := d.vm.fiber.numFrames - 1; i >= 0; i-- {
		f := d.vm.fiber.frames[i]
		fmt.Fprintf(&b, "  #%d ip=%d stackStart=%d\n", i, f.ip, f.stackStart)
	}
	return b.String()
}

// ShowGlobals renders every named global currently bound.
func (d *Debugger) ShowGlobals() string {
	names := d.vm.globalSymbols.Names()
	if len(names) == 0 {
		return "Globals: (none)"
	}
	var b strings.Builder
	b.WriteString("Globals:\n")
	for _, name := range names {
		id := d.vm.globalSymbols.Find(name)
		fmt.Fprintf(&b, "  %s = %s\n", name, PrintValue(d.vm.globalValues[id]))
	}
	return b.String()
}
