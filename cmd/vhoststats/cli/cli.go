// Package cli implements the vhoststats command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/config"
	"github.com/frobware/go-vhoststats/logging"
)

// CLI is the root command structure for vhoststats.
type CLI struct {
	Config   string `name:"config" help:"Config file path." default:"${default_config_path}"`
	Log      string `name:"log" help:"Log spec (e.g., 'warn,kmem=debug'). Overrides $VHOSTSTATS_LOG."`
	Sysfs    string `name:"sysfs" help:"Directory holding worker/, dev/ and vq/ (overrides sysfs.base)."`
	Strategy string `name:"strategy" short:"s" help:"Memory strategy: copy or mapped (overrides memory.strategy)."`

	List    ListCmd    `cmd:"" help:"List ids of a kind and how their stats pointers resolve."`
	Show    ShowCmd    `cmd:"" help:"Show every counter of one instance."`
	Watch   WatchCmd   `cmd:"" help:"Print per-interval counter deltas."`
	Record  RecordCmd  `cmd:"" help:"Poll instances into the sample database."`
	History HistoryCmd `cmd:"" help:"Show recorded samples of one instance."`
	Layout  LayoutCmd  `cmd:"" help:"Print the binary layout of the counter families."`
	Counter CounterCmd `cmd:"" help:"Read one raw 64-bit counter at a kernel address."`

	// Out receives command output. os.Stdout if nil.
	Out io.Writer `kong:"-"`
	// Err receives log output. os.Stderr if nil.
	Err io.Writer `kong:"-"`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("vhoststats"),
		kong.Description("Read vhost worker, device and virtqueue counters straight from kernel memory."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.TypeMapper(reflect.TypeOf(vhoststats.KindUnspecified), kindMapper()),
		kong.TypeMapper(reflect.TypeOf(vhoststats.KernelAddress(0)), addressMapper()),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
		},
	}
}

// Execute parses args into c and runs the selected command.
func Execute(ctx context.Context, c *CLI, args []string, opts ...kong.Option) error {
	parser, err := kong.New(c, append(KongOptions(), opts...)...)
	if err != nil {
		return fmt.Errorf("create parser: %w", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(c)
}

// LoadConfig loads the config file and applies flag overrides.
func (c *CLI) LoadConfig() (config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return cfg, err
	}
	if c.Sysfs != "" {
		cfg.Sysfs.Base = c.Sysfs
	}
	if c.Strategy != "" {
		cfg.Memory.Strategy = c.Strategy
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Logger creates a logger for CLI commands: --log, then
// $VHOSTSTATS_LOG, then the config file's logging section.
func (c *CLI) Logger(cfg config.Config) (*slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	return logging.New(logging.Options{
		CLISpec:    c.Log,
		EnvSpec:    os.Getenv(logging.EnvVar),
		ConfigSpec: cfg.Logging.ToSpec(),
		Format:     format,
		Output:     c.errOut(),
	})
}

func (c *CLI) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *CLI) errOut() io.Writer {
	if c.Err == nil {
		return os.Stderr
	}
	return c.Err
}

// WriteOut writes b to the output. A short write is an error.
func (c *CLI) WriteOut(b []byte) error {
	n, err := c.out().Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// PrintOut writes s to the output.
func (c *CLI) PrintOut(s string) error {
	return c.WriteOut([]byte(s))
}

// PrintOutf formats to the output.
func (c *CLI) PrintOutf(format string, args ...any) error {
	return c.PrintOut(fmt.Sprintf(format, args...))
}
