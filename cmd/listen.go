package cmd

import (
	"github.com/spf13/cobra"
	"go.olrik.dev/lifeline/internal/daemon"
)

func NewListenCommand() *cobra.Command {
	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Run the development supervisor listener",
		Long: `Run the development supervisor listener in the foreground.

Binds the configured notification socket, logs every datagram services send
to it, tracks per service lifecycle state and watchdog deadlines, and records
the traffic in the notification database.

Point services at it with:
  NOTIFY_SOCKET=~/.config/lifeline/notify.sock my-service`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon.New().Run()
		},
	}

	return listenCmd
}
