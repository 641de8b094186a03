package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/lifeline/pkg/notify"
)

func NewSendCommand() *cobra.Command {
	var (
		ready           bool
		reloading       bool
		stopping        bool
		status          string
		errno           int
		exitStatus      int
		mainPID         int
		watchdogPing    bool
		watchdogTrigger bool
		watchdogUsec    time.Duration
		extendTimeout   time.Duration
		socket          string
		debug           bool
	)

	sendCmd := &cobra.Command{
		Use:   "send [KEY=VALUE ...]",
		Short: "Send a notification to the supervisor",
		Long: `Send a notification to the supervisor named by NOTIFY_SOCKET.

All requested assignments are combined into a single datagram, the way a
service would send them. Without a notification socket this is a silent
no-op, use --debug to surface delivery problems instead.

Examples:
  lifeline send --ready --status "Accepting connections"
  lifeline send --reloading
  lifeline send --watchdog
  lifeline send --extend-timeout 30s
  lifeline send --socket /run/dev.sock --debug FDSTORE=1 FDNAME=listener`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var lines []string
			if ready {
				lines = append(lines, notify.StateReady)
			}
			if reloading {
				usec := strconv.FormatInt(notify.MonotonicUsec(), 10)
				lines = append(lines, notify.StateReloading, notify.KeyMonotonicUsec+"="+usec)
			}
			if stopping {
				lines = append(lines, notify.StateStopping)
			}
			if cmd.Flags().Changed("status") {
				lines = append(lines, notify.KeyStatus+"="+status)
			}
			if cmd.Flags().Changed("errno") {
				lines = append(lines, notify.KeyErrno+"="+strconv.Itoa(errno))
			}
			if cmd.Flags().Changed("exit-status") {
				lines = append(lines, notify.KeyExitStatus+"="+strconv.Itoa(exitStatus))
			}
			if cmd.Flags().Changed("pid") {
				lines = append(lines, notify.KeyMainPID+"="+strconv.Itoa(mainPID))
			}
			if watchdogPing {
				lines = append(lines, notify.StateWatchdog)
			}
			if watchdogTrigger {
				lines = append(lines, notify.StateWatchdogTrigger)
			}
			if cmd.Flags().Changed("watchdog-interval") {
				usec := strconv.FormatInt(watchdogUsec.Microseconds(), 10)
				lines = append(lines, notify.KeyWatchdogUsec+"="+usec)
			}
			if cmd.Flags().Changed("extend-timeout") {
				usec := strconv.FormatInt(extendTimeout.Microseconds(), 10)
				lines = append(lines, notify.KeyExtendTimeoutUsec+"="+usec)
			}

			for _, arg := range args {
				key, _, found := strings.Cut(arg, "=")
				if !found || key == "" {
					return fmt.Errorf("invalid assignment %q, expected KEY=VALUE", arg)
				}
				lines = append(lines, arg)
			}

			var opts []notify.Option
			if socket != "" {
				opts = append(opts, notify.WithAddress(socket))
			}
			if debug {
				opts = append(opts, notify.WithDebug())
			}

			client, err := notify.New(opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			return client.Notify(strings.Join(lines, "\n"))
		},
	}

	sendCmd.Flags().BoolVar(&ready, "ready", false, "send READY=1, startup is finished")
	sendCmd.Flags().BoolVar(&reloading, "reloading", false, "send RELOADING=1 with a monotonic timestamp")
	sendCmd.Flags().BoolVar(&stopping, "stopping", false, "send STOPPING=1, shutdown has begun")
	sendCmd.Flags().StringVar(&status, "status", "", "send a STATUS= text line")
	sendCmd.Flags().IntVar(&errno, "errno", 0, "send an ERRNO= failure code")
	sendCmd.Flags().IntVar(&exitStatus, "exit-status", 0, "send an EXIT_STATUS= code")
	sendCmd.Flags().IntVar(&mainPID, "pid", 0, "send MAINPID= for the given process")
	sendCmd.Flags().BoolVar(&watchdogPing, "watchdog", false, "send a WATCHDOG=1 keep-alive ping")
	sendCmd.Flags().BoolVar(&watchdogTrigger, "watchdog-trigger", false, "send WATCHDOG=trigger to fail the service now")
	sendCmd.Flags().DurationVar(&watchdogUsec, "watchdog-interval", 0, "send WATCHDOG_USEC= to reset the watchdog interval")
	sendCmd.Flags().DurationVar(&extendTimeout, "extend-timeout", 0, "send EXTEND_TIMEOUT_USEC= to ask for more time")
	sendCmd.Flags().StringVar(&socket, "socket", "", "notification socket, overrides NOTIFY_SOCKET")
	sendCmd.Flags().BoolVar(&debug, "debug", false, "surface connect and send failures instead of degrading silently")

	return sendCmd
}
