package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/fermian/wren/internal/asm"
	"github.com/fermian/wren/internal/vm"
)

// buildDemo hand-assembles a small program exercising every part of the
// engine a real wren compiler would exercise: a class derived from the
// implicit Object superclass, a user-defined method bound onto it, an
// instance constructed through the default `new`, and a dispatched call
// into the bound method. It stands in for the source program this engine
// has no compiler to produce from text.
//
// Equivalent to roughly:
//
//	class Greeter {
//	  greet() { return "hello from wren" }
//	}
//	var g = Greeter.new
//	g.greet
func buildDemo(v *vm.VM) *vm.ObjFn {
	greetSym := v.EnsureMethodSymbol("greet")
	newSym := v.EnsureMethodSymbol("new")
	greeterGlobal := v.EnsureGlobalSymbol("Greeter")

	method := asm.New(v, 8, 1)
	method.String("hello from wren").End()

	main := asm.New(v, 64, 4)
	main.
		Class().
		MethodFn(greetSym, method.Fn()).
		StoreGlobal(greeterGlobal).
		LoadGlobal(greeterGlobal).
		Call(newSym, 0).
		Dup().
		Call(greetSym, 0).
		End()

	// Release in reverse creation order (pins are LIFO). By now the method
	// function is rooted through main's constant pool, and main itself goes
	// straight to Interpret, which roots it through the frame it pushes.
	fn := main.Release()
	method.Release()
	return fn
}

var demoCommand = &cli.Command{
	Name:  "demo",
	Usage: "assemble and run the bundled demo program, printing its result",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		v, err := newVM(cmd)
		if err != nil {
			return err
		}
		fn := buildDemo(v)
		return runRecovered(func() error {
			result, err := v.Interpret(fn)
			if err != nil {
				return err
			}
			fmt.Println(vm.PrintValue(result))
			return nil
		})
	},
}
