package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/fermian/wren/internal/vm"
)

// consoleCommand is an interactive shell over the embedding API — not a
// wren-language REPL (this engine has no parser to drive one), but a way
// to poke at a live VM's allocator and bundled demo program line by line,
// including single-stepping it instruction by instruction under a
// Debugger. It uses chzyer/readline for line editing and mattn/go-isatty
// to decide whether interactive editing is even possible, falling back to
// a bare line-buffered scan over piped input otherwise.
var consoleCommand = &cli.Command{
	Name:  "console",
	Usage: "interactive inspection shell over a live VM",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		v, err := newVM(cmd)
		if err != nil {
			return err
		}
		return runConsole(v)
	},
}

func runConsole(v *vm.VM) error {
	fmt.Printf("wren console — vm %s\n", v.ID())
	fmt.Println("commands: demo, disasm, debug, stats, gc, id, help, quit")

	if isatty.IsTerminal(os.Stdin.Fd()) {
		return runInteractiveConsole(v)
	}
	return runPipedConsole(v)
}

func runInteractiveConsole(v *vm.VM) error {
	rl, err := readline.New("wren> ")
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !dispatchConsoleLine(v, line) {
			return nil
		}
	}
}

func runPipedConsole(v *vm.VM) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !dispatchConsoleLine(v, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// dispatchConsoleLine runs one console command, returning false when the
// console should exit.
func dispatchConsoleLine(v *vm.VM, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	switch line {
	case "quit", "exit":
		return false

	case "help":
		fmt.Println("commands: demo, disasm, debug, stats, gc, id, help, quit")

	case "id":
		fmt.Println(v.ID())

	case "demo":
		err := runRecovered(func() error {
			result, err := v.Interpret(buildDemo(v))
			if err != nil {
				return err
			}
			fmt.Println(vm.PrintValue(result))
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}

	case "disasm":
		fmt.Print(vm.Disassemble(buildDemo(v)))

	case "debug":
		runDebugSession(v)

	case "stats":
		stats := v.LastGCStats()
		fmt.Printf("total_allocated=%d next_gc=%d last_swept=%d last_freed=%d\n",
			v.TotalAllocated(), v.NextGCThreshold(), stats.ObjectsSwept, stats.BytesFreed)

	case "gc":
		v.CollectGarbage()
		fmt.Println("collection complete")

	default:
		fmt.Printf("unknown command %q (try: help)\n", line)
	}
	return true
}

// runDebugSession single-steps the bundled demo program under a Debugger
// in step mode, printing the instruction about to execute, the operand
// stack and the call-frame stack before each step. This is the "debug"
// console command: the one place a Debugger is actually driven, rather
// than just sitting on the VM unused.
func runDebugSession(v *vm.VM) {
	d := vm.NewDebugger(v)
	d.Enable()
	d.SetStepMode(true)

	if err := v.PrepareInterpret(buildDemo(v)); err != nil {
		fmt.Fprintln(os.Stderr, "debug:", err)
		return
	}

	err := runRecovered(func() error {
		for {
			if d.ShouldPause() {
				fmt.Println(d.ShowCurrentInstruction())
				fmt.Print(d.ShowStack())
				fmt.Print(d.ShowFrames())
			}
			done, result := v.Step()
			if done {
				fmt.Println("=>", vm.PrintValue(result))
				return nil
			}
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
}
