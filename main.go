// Command panelrenew logs into the hosting panel and claims extra server
// time, once or on a schedule.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/panelrenew/panelrenew/internal/cli"
	"github.com/panelrenew/panelrenew/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := exitCode(cli.Execute(ctx))
	stop()
	observability.Sync()
	os.Exit(code)
}

// exitInterrupted is the conventional status for a run cut short by SIGINT.
const exitInterrupted = 130

// exitCode maps a command error to the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}
