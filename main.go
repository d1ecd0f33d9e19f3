package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/sandboxer/internal/adapters/in/cli"
)

var (
	version string
	commit  string
	date    string
)

func main() {
	if version != "" {
		cli.SetVersionInfo(version, commit, date)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		cli.PrintError(os.Stderr, err)
	}
	os.Exit(cli.ExitCode(err))
}
