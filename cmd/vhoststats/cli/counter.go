package cli

import (
	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/snapshot"
)

// CounterCmd reads a single 64-bit value at a kernel address.
type CounterCmd struct {
	Address vhoststats.KernelAddress `arg:"" help:"Kernel address (hex, 0x prefix optional)."`
}

// Run executes the counter command.
func (c *CounterCmd) Run(cli *CLI) error {
	rt, err := cli.NewRuntime()
	if err != nil {
		return err
	}
	counter, err := snapshot.NewCounter(rt.Strategy, c.Address)
	if err != nil {
		return err
	}
	defer counter.Close()

	v, err := counter.Read()
	if err != nil {
		return err
	}
	return cli.PrintOutf("%s %d\n", counter.Address(), v)
}
