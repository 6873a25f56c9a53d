package cli

import (
	"context"
	"fmt"

	"github.com/frobware/go-vhoststats"
)

// HistoryCmd prints recorded samples of one instance, newest first.
type HistoryCmd struct {
	OutputFlags
	DBFlag
	Limit  int             `short:"l" help:"Maximum samples to show (0 for all)." default:"10"`
	Fields []string        `short:"f" name:"field" help:"Only show these fields (can be repeated)."`
	Kind   vhoststats.Kind `arg:"" help:"Counter kind: worker, device or virtqueue."`
	ID     string          `arg:"" help:"Instance id."`
}

// Run executes the history command.
func (c *HistoryCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime()
	if err != nil {
		return err
	}
	st, err := rt.OpenStore(ctx, c.DB)
	if err != nil {
		return fmt.Errorf("open sample database: %w", err)
	}
	defer st.Close()

	samples, err := st.History(ctx, c.Kind, c.ID, c.Limit)
	if err != nil {
		return err
	}

	output, err := FormatHistory(c.Kind, samples, c.Fields, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}
