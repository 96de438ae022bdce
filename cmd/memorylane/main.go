// Package main provides memorylane, a file-first memory journal whose
// markdown tree is the source of truth and whose SQLite index is a
// rebuildable cache.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"memorylane/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := cli.Run(ctx, os.Stdout, os.Stderr, os.Args, env)

	os.Exit(exitCode)
}
