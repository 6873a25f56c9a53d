package cli

import (
	"context"

	"github.com/frobware/go-vhoststats"
)

// ShowCmd prints every counter of one instance.
type ShowCmd struct {
	OutputFlags
	Kind vhoststats.Kind `arg:"" help:"Counter kind: worker, device or virtqueue."`
	ID   string          `arg:"" help:"Instance id as published under the sysfs base."`
}

// Run executes the show command.
func (c *ShowCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime()
	if err != nil {
		return err
	}

	snap := rt.Opener().Open(c.Kind, c.ID)
	defer snap.Close()

	output, err := FormatSnapshot(snap, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}
