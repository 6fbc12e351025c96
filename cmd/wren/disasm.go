package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/fermian/wren/internal/vm"
)

var disasmCommand = &cli.Command{
	Name:  "disasm",
	Usage: "print the bundled demo program's disassembly",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		v, err := newVM(cmd)
		if err != nil {
			return err
		}
		fmt.Print(vm.Disassemble(buildDemo(v)))
		return nil
	},
}
