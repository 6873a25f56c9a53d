package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/config"
	"github.com/frobware/go-vhoststats/kmem"
	"github.com/frobware/go-vhoststats/snapshot"
	"github.com/frobware/go-vhoststats/store"
	"github.com/frobware/go-vhoststats/store/sqlite"
	"github.com/frobware/go-vhoststats/sysfs"
)

// Runtime is what every command needs: the effective config, a
// logger, and the resolver and strategy built from them.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Resolver *sysfs.Resolver
	Scanner  *sysfs.Scanner
	Strategy kmem.Strategy
}

// NewRuntime builds the runtime from the config file and flags.
func (c *CLI) NewRuntime() (*Runtime, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := c.Logger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	opts, err := cfg.Memory.Options(logger)
	if err != nil {
		return nil, err
	}
	strategy, err := kmem.New(opts)
	if err != nil {
		return nil, err
	}

	scanner := sysfs.NewScanner(cfg.Sysfs.Base).WithOnMalformed(func(path string, err error) {
		logger.Warn("skipping malformed entry", "path", path, "error", err)
	})

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Resolver: sysfs.NewResolver(cfg.Sysfs.Base, logger),
		Scanner:  scanner,
		Strategy: strategy,
	}, nil
}

// Opener returns a snapshot opener over the runtime's resolver and
// strategy.
func (r *Runtime) Opener() snapshot.Opener {
	return snapshot.Opener{Resolver: r.Resolver, Strategy: r.Strategy, Logger: r.Logger}
}

// IDs returns the explicit ids, or every published id of kind when
// none are given.
func (r *Runtime) IDs(ctx context.Context, kind vhoststats.Kind, ids []string) ([]string, error) {
	if len(ids) > 0 {
		return ids, nil
	}
	found, err := r.Scanner.Collect(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no %s entries under %s", kind, r.Resolver.Base())
	}
	return found, nil
}

// StorePath returns path, or the configured database when empty.
func (r *Runtime) StorePath(path string) string {
	if path == "" {
		return r.Config.Store.Path
	}
	return path
}

// OpenStore opens the sample database at path, or the configured one.
func (r *Runtime) OpenStore(ctx context.Context, path string) (store.Store, error) {
	return sqlite.New(ctx, r.StorePath(path), r.Logger)
}
