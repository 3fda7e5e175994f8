package cli

import (
	"context"
	"fmt"
)

// Sync pushes queued changes now, or reports or clears the queue.
func (a *App) Sync(ctx context.Context, args []string) error {
	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "":
		report, err := a.sync.Process(ctx)
		if err != nil {
			return err
		}
		a.setMode(ModeOnline)
		fmt.Fprintf(a.out, "Sent %d, failed %d, abandoned %d.\n", report.Sent, report.Failed, report.Abandoned)
		return nil
	case "status":
		n, err := a.sync.Pending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Pending changes: %d (mode %s)\n", n, a.mode())
		return nil
	case "clear":
		if err := a.sync.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Sync queue cleared.")
		return nil
	default:
		return usageError("sync [status|clear]")
	}
}
