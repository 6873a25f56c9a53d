package cli

import (
	"context"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/sysfs"
)

// ListCmd lists published ids and how their stats pointers resolve.
type ListCmd struct {
	OutputFlags
	Kind vhoststats.Kind `arg:"" optional:"" help:"Kind to list: worker, device or virtqueue (default all)."`
}

// Run executes the list command.
func (c *ListCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime()
	if err != nil {
		return err
	}

	kinds := vhoststats.Kinds
	if c.Kind != vhoststats.KindUnspecified {
		kinds = []vhoststats.Kind{c.Kind}
	}

	var results []sysfs.Resolution
	for _, kind := range kinds {
		ids, err := rt.Scanner.Collect(ctx, kind)
		if err != nil {
			return err
		}
		for _, id := range ids {
			results = append(results, rt.Resolver.Resolve(kind, id))
		}
	}

	output, err := FormatResolutions(results, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}
