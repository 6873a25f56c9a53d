package cli

import (
	"context"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/monitor"
	"github.com/frobware/go-vhoststats/snapshot"
)

// WatchCmd polls instances and prints what changed each interval.
type WatchCmd struct {
	IntervalFlag
	Count int             `short:"n" help:"Stop after this many rounds (default until interrupted)."`
	Kind  vhoststats.Kind `arg:"" help:"Counter kind: worker, device or virtqueue."`
	IDs   []string        `arg:"" optional:"" name:"id" help:"Instance ids (default every published id)."`
}

// Run executes the watch command.
func (c *WatchCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime()
	if err != nil {
		return err
	}
	interval, err := c.Effective(rt)
	if err != nil {
		return err
	}
	ids, err := rt.IDs(ctx, c.Kind, c.IDs)
	if err != nil {
		return err
	}

	snaps := rt.Opener().OpenAll(c.Kind, ids)
	defer snapshot.CloseAll(snaps)

	poller := monitor.NewPoller(snaps, monitor.Options{Interval: interval, Count: c.Count, Logger: rt.Logger})
	return poller.Run(ctx, func(_ context.Context, samples []monitor.Sample) error {
		return cli.PrintOut(FormatDeltas(samples))
	})
}
