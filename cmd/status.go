package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"go.olrik.dev/lifeline/internal/core"
	"go.olrik.dev/lifeline/internal/daemon"
	"go.olrik.dev/lifeline/internal/db"
)

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the listener and the services it has heard from",
		Long: `Show whether the listener is running and the last known lifecycle
state of every service it has recorded, reconstructed from the notification
database.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if pid, running := listenerPID(); running {
				fmt.Printf("Listener: running (PID %d, socket %s)\n", pid, core.GetSocketPath())
			} else {
				fmt.Println("Listener: not running")
			}

			services := replayServices()

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				if len(services) == 0 {
					fmt.Println("No recorded notifications.")
					return
				}
				fmt.Println("Known services:")
				for _, svc := range services {
					fmt.Printf("  - %s: %s\n", serviceLabel(svc), serviceSummary(svc))
				}
			case "json":
				jsonBytes, _ := json.Marshal(services)
				fmt.Println(string(jsonBytes))
			default:
				fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", format)
				os.Exit(1)
			}
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}

// listenerPID reads the pid file and checks the process is still there.
func listenerPID() (int, bool) {
	data, err := os.ReadFile(core.GetPIDFilePath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	running, err := process.PidExists(int32(pid))
	if err != nil || !running {
		return 0, false
	}
	return pid, true
}

// replayServices folds the recorded notifications back into per service
// state, the same way the listener folds them live.
func replayServices() []daemon.ServiceState {
	database, err := db.Open(core.GetDatabasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	notifications, err := database.GetRecentNotifications(1000)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to query notifications: %v\n", err)
		os.Exit(1)
	}

	// Reverse to chronological order (GetRecentNotifications returns DESC)
	for i, j := 0, len(notifications)-1; i < j; i, j = i+1, j-1 {
		notifications[i], notifications[j] = notifications[j], notifications[i]
	}

	tracker := daemon.NewTracker(core.Config.Listener.WatchdogGrace)
	for _, row := range notifications {
		msg := daemon.ParseMessage([]byte(row.State))
		msg.PID = row.PID
		msg.Process = row.Process
		msg.Received = row.Timestamp
		tracker.Apply(msg)
	}
	return tracker.Snapshot()
}

func serviceLabel(svc daemon.ServiceState) string {
	if svc.Process != "" {
		return fmt.Sprintf("%s (PID %d)", svc.Process, svc.PID)
	}
	return fmt.Sprintf("PID %d", svc.PID)
}

func serviceSummary(svc daemon.ServiceState) string {
	var parts []string
	switch {
	case svc.Stopping:
		parts = append(parts, "stopping")
	case svc.Reloading:
		parts = append(parts, "reloading")
	case svc.Ready:
		parts = append(parts, "ready")
	default:
		parts = append(parts, "starting")
	}
	if svc.Status != "" {
		parts = append(parts, fmt.Sprintf("status %q", svc.Status))
	}
	if svc.WatchdogInterval > 0 {
		parts = append(parts, fmt.Sprintf("watchdog %s", svc.WatchdogInterval))
	}
	if !svc.LastSeen.IsZero() {
		parts = append(parts, fmt.Sprintf("last seen %s ago", time.Since(svc.LastSeen).Round(time.Second)))
	}
	return strings.Join(parts, ", ")
}
