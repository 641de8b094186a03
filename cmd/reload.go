package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

func NewReloadCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask the running listener to reload its configuration",
		Long: `Ask the running listener to reload its configuration by sending it
SIGHUP. The listener rereads config.hcl and applies what can change at
runtime. The socket location cannot change on a reload, restart the
listener for that.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pid, running := listenerPID()
			if !running {
				if !quiet {
					slog.Error("Listener is not running. Use 'lifeline listen' to start it.")
				}
				os.Exit(1)
			}

			if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
				if !quiet {
					slog.Error(fmt.Sprintf("Failed to signal listener: %v", err))
				}
				os.Exit(1)
			}

			if !quiet {
				slog.Info(fmt.Sprintf("Reload requested from listener (PID %d)", pid))
			}
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress output")

	return cmd
}
