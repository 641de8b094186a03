package cmd

import (
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running listener",
		Long: `Stop the running listener.

Sends SIGTERM to the listener found via its pid file and waits for it
to finish its shutdown sequence.`,
		Aliases: []string{"shutdown", "quit"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pid, running := listenerPID()
			if !running {
				slog.Error("Listener is not running. Nothing to stop.")
				os.Exit(1)
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				slog.Error("Failed to signal listener", "pid", pid, "error", err)
				os.Exit(1)
			}

			// The listener announces STOPPING and flushes its event log
			// before exiting, so give it a moment.
			for i := 0; i < 50; i++ {
				if _, stillRunning := listenerPID(); !stillRunning {
					slog.Info("Listener stopped")
					return
				}
				time.Sleep(100 * time.Millisecond)
			}

			slog.Warn("Listener is still shutting down")
		},
	}
}
