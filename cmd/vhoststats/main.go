// vhoststats reads vhost worker, device and virtqueue counters from
// kernel memory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frobware/go-vhoststats/cmd/vhoststats/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, &cli.CLI{}, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "vhoststats: %v\n", err)
		stop()
		os.Exit(1)
	}
}
