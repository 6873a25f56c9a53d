package cli

import (
	"github.com/frobware/go-vhoststats"
)

// LayoutCmd prints the field table of one or every family. It needs
// neither config nor kernel access.
type LayoutCmd struct {
	Kind vhoststats.Kind `arg:"" optional:"" help:"Kind to describe (default all)."`
}

// Run executes the layout command.
func (c *LayoutCmd) Run(cli *CLI) error {
	var families []*vhoststats.Family
	if c.Kind == vhoststats.KindUnspecified {
		for _, k := range vhoststats.Kinds {
			families = append(families, k.Family())
		}
	} else {
		families = append(families, c.Kind.Family())
	}
	return cli.PrintOut(FormatLayout(families))
}
