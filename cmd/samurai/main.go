// Command samurai records multi-participant sessions clip by clip and
// exports them as a single composited video via ffmpeg.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/cli"
)

// version is set at build time via -ldflags (e.g. Makefile).
var version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Ctrl-C and SIGTERM cancel the command context; recording and export
	// finalize what they can before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Version = version
	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "samurai: %v\n", err)
		return 1
	}
	return 0
}
