// Command wren is a demo and inspection harness for the engine in
// internal/vm. It is not a wren language runtime: the lexer, parser,
// bytecode compiler and core library are out of this engine's scope, so
// there is no source file this binary can load and run. What it can do is
// build, disassemble and step the bundled demo program — the same
// hand-assembled bytecode internal/vm's own tests exercise, through
// internal/asm — and expose the embedding API interactively.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/fermian/wren/internal/config"
	"github.com/fermian/wren/internal/vm"
)

func main() {
	app := &cli.Command{
		Name:  "wren",
		Usage: "demo and inspection harness for the class-based VM engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a VM config YAML file",
			},
			&cli.BoolFlag{
				Name:  "stress-gc",
				Usage: "collect garbage on every allocation",
			},
		},
		Commands: []*cli.Command{
			demoCommand,
			disasmCommand,
			consoleCommand,
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "wren:", err)
		os.Exit(1)
	}
}

// newVM builds a VM from the --config/--stress-gc flags shared by every
// subcommand.
func newVM(cmd *cli.Command) (*vm.VM, error) {
	cfg := config.Default()
	if p := cmd.String("config"); p != "" {
		loaded, err := config.Load(p)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Bool("stress-gc") {
		cfg.StressGC = true
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	return vm.New(vm.Options{
		Logger:             logger,
		StressGC:           cfg.StressGC,
		InitialGCThreshold: cfg.InitialGCThreshold,
		GrowthFactor:       cfg.GrowthFactor,
		MaxPinDepth:        cfg.MaxPinDepth,
	}), nil
}

// runRecovered executes fn, turning a vm.Fatal panic into a plain error at
// this process boundary. The dispatch loop itself never catches one;
// vm.InterpretRecover offers the same conversion for a single Interpret
// call, while this helper also covers the Step-driven debug session.
func runRecovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(vm.Fatal); ok {
				err = f
				return
			}
			panic(r)
		}
	}()
	return fn()
}
