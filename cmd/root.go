package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/lifeline/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "lifeline",
		Short: "Lifeline - service lifecycle notifications",
		Long: `Lifeline - service lifecycle notifications

Sends sd_notify style READY/RELOADING/STOPPING/WATCHDOG datagrams to the
supervisor named by NOTIFY_SOCKET, and doubles as a development supervisor
that receives them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return core.InitializeConfig(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewSendCommand(),
		NewListenCommand(),
		NewRunCommand(),
		NewStatusCommand(),
		NewLogsCommand(),
		NewReloadCommand(),
		NewStopCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
