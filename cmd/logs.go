package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go.olrik.dev/lifeline/internal/core"
	"go.olrik.dev/lifeline/internal/db"
)

func NewLogsCommand() *cobra.Command {
	var (
		lines  int
		pid    int
		events bool
	)

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Show recorded notifications",
		Long: `Show notifications recorded by the listener, newest first.

Examples:
  lifeline logs                # last 20 notifications
  lifeline logs -n 100         # last 100
  lifeline logs --pid 4242     # only one service
  lifeline logs --events       # listener lifecycle events instead`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open(core.GetDatabasePath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
				os.Exit(1)
			}
			defer database.Close()

			if events {
				printListenerEvents(database, lines)
				return
			}
			printNotifications(database, pid, lines)
		},
	}

	logsCmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of entries to show")
	logsCmd.Flags().IntVar(&pid, "pid", 0, "Only show notifications from this process")
	logsCmd.Flags().BoolVar(&events, "events", false, "Show listener lifecycle events instead of notifications")

	return logsCmd
}

func printNotifications(database *db.DB, pid, limit int) {
	var notifications []db.Notification
	var err error
	if pid > 0 {
		notifications, err = database.GetNotificationsByPID(pid, limit)
	} else {
		notifications, err = database.GetRecentNotifications(limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to query notifications: %v\n", err)
		os.Exit(1)
	}
	if len(notifications) == 0 {
		fmt.Println("No recorded notifications.")
		return
	}

	for _, n := range notifications {
		sender := fmt.Sprintf("pid %d", n.PID)
		if n.Process != "" {
			sender = fmt.Sprintf("%s (pid %d)", n.Process, n.PID)
		}
		// Multi assignment datagrams print as one line per assignment
		fmt.Printf("%s  %-28s %s\n",
			n.Timestamp.Local().Format(time.DateTime),
			sender,
			oneLine(n.State))
	}
}

func printListenerEvents(database *db.DB, limit int) {
	listenerEvents, err := database.GetRecentListenerEvents(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to query listener events: %v\n", err)
		os.Exit(1)
	}
	if len(listenerEvents) == 0 {
		fmt.Println("No listener events.")
		return
	}

	for _, e := range listenerEvents {
		fmt.Printf("%s  %-16s %s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.EventType,
			e.Details)
	}
}

// oneLine joins a datagram's lines for single line display.
func oneLine(state string) string {
	out := make([]byte, 0, len(state))
	for i := 0; i < len(state); i++ {
		if state[i] == '\n' {
			out = append(out, ' ')
			continue
		}
		out = append(out, state[i])
	}
	return string(out)
}
