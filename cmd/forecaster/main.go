package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cashflow-forecast-service/cmd/forecaster/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()

	os.Exit(cmd.NewCLIErrorHandler().HandleError(err))
}
