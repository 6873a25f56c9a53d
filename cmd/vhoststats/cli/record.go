package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/lock"
	"github.com/frobware/go-vhoststats/monitor"
	"github.com/frobware/go-vhoststats/snapshot"
	"github.com/frobware/go-vhoststats/store"
)

// RecordCmd polls instances into the sample database.
type RecordCmd struct {
	IntervalFlag
	DBFlag
	Count int             `short:"n" help:"Stop after this many rounds (default until interrupted)."`
	Wait  bool            `help:"Wait for another recorder on the same database to finish instead of failing."`
	Kind  vhoststats.Kind `arg:"" help:"Counter kind: worker, device or virtqueue."`
	IDs   []string        `arg:"" optional:"" name:"id" help:"Instance ids (default every published id)."`
}

// Run executes the record command.
func (c *RecordCmd) Run(cli *CLI, ctx context.Context) error {
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

	st, err := rt.OpenStore(ctx, c.DB)
	if err != nil {
		return fmt.Errorf("open sample database: %w", err)
	}
	defer st.Close()

	// One recorder per database.
	run := lock.TryRun
	if c.Wait {
		run = lock.Run
	}
	return run(ctx, lock.PathFor(rt.StorePath(c.DB)), func(ctx context.Context, _ lock.Scope) error {
		return c.record(ctx, cli, rt, st, ids, interval)
	})
}

func (c *RecordCmd) record(ctx context.Context, cli *CLI, rt *Runtime, st store.Store, ids []string, interval time.Duration) error {
	sess, err := st.BeginSession(ctx, rt.Strategy.Name())
	if err != nil {
		return err
	}
	if err := cli.PrintOutf("session %s\n", sess.ID); err != nil {
		return err
	}

	snaps := rt.Opener().OpenAll(c.Kind, ids)
	defer snapshot.CloseAll(snaps)

	rounds := 0
	progress := func(context.Context, []monitor.Sample) error {
		rounds++
		return nil
	}

	poller := monitor.NewPoller(snaps, monitor.Options{Interval: interval, Count: c.Count, Logger: rt.Logger})
	if err := poller.Run(ctx, monitor.Chain(monitor.Recorder(st, sess.ID), progress)); err != nil {
		return err
	}
	rt.Logger.Info("recording finished", "session", sess.ID, "rounds", rounds, "instances", len(snaps))
	return cli.PrintOutf("recorded %d rounds of %d %s instances\n", rounds, len(snaps), c.Kind)
}
