package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go.olrik.dev/lifeline/internal/core"
	"go.olrik.dev/lifeline/internal/daemon"
	"go.olrik.dev/lifeline/pkg/notify"
)

func NewRunCommand() *cobra.Command {
	var (
		timeout time.Duration
		usePty  bool
	)

	runCmd := &cobra.Command{
		Use:   "run [flags] -- COMMAND [ARG...]",
		Short: "Run a command under a private notification socket",
		Long: `Run a command with NOTIFY_SOCKET pointing at a private socket.

The command is started with a fresh unixgram socket injected as
NOTIFY_SOCKET. Its lifecycle notifications are logged as they arrive, and
the run fails if the command does not send READY=1 within the timeout.
The command's exit code is passed through.

Examples:
  lifeline run -- my-service --port 8080
  lifeline run --timeout 30s -- slow-starter
  lifeline run --pty -- interactive-tool`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupRunLogging()
			code, err := runSupervised(args, timeout, usePty)
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	runCmd.Flags().DurationVarP(&timeout, "timeout", "t", 90*time.Second, "time to wait for READY=1, 0 waits forever")
	runCmd.Flags().BoolVar(&usePty, "pty", false, "run the command on a pseudo terminal")

	return runCmd
}

func setupRunLogging() {
	level := slog.LevelInfo
	if core.Config.Verbose > 0 {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})))
}

func runSupervised(args []string, timeout time.Duration, usePty bool) (int, error) {
	socketDir, err := os.MkdirTemp("", "lifeline-run-")
	if err != nil {
		return 0, fmt.Errorf("failed to create socket directory: %w", err)
	}
	defer os.RemoveAll(socketDir)

	socketPath := filepath.Join(socketDir, "notify.sock")
	addr, err := notify.ResolveAddress(socketPath)
	if err != nil {
		return 0, err
	}
	receiver, err := daemon.Listen(addr)
	if err != nil {
		return 0, fmt.Errorf("failed to bind notification socket: %w", err)
	}
	defer receiver.Close()

	child := exec.Command(args[0], args[1:]...)
	child.Env = append(os.Environ(), "NOTIFY_SOCKET="+socketPath)

	var ptmx *os.File
	if usePty {
		ptmx, err = pty.Start(child)
		if err != nil {
			return 0, fmt.Errorf("failed to start %s on a pty: %w", args[0], err)
		}
		defer ptmx.Close()

		if term.IsTerminal(int(os.Stdin.Fd())) {
			oldState, rawErr := term.MakeRaw(int(os.Stdin.Fd()))
			if rawErr == nil {
				defer term.Restore(int(os.Stdin.Fd()), oldState)
			}

			// Track terminal resizes
			winch := make(chan os.Signal, 1)
			signal.Notify(winch, syscall.SIGWINCH)
			defer signal.Stop(winch)
			go func() {
				for range winch {
					pty.InheritSize(os.Stdin, ptmx)
				}
			}()
			winch <- syscall.SIGWINCH

			go io.Copy(ptmx, os.Stdin)
		}
		go io.Copy(os.Stdout, ptmx)
	} else {
		child.Stdin = os.Stdin
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		if err := child.Start(); err != nil {
			return 0, fmt.Errorf("failed to start %s: %w", args[0], err)
		}
	}

	started := time.Now()
	slog.Debug("Child started", "pid", child.Process.Pid, "socket", socketPath)

	// Forward termination to the child
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for sig := range sigChan {
			if ptmx != nil {
				// The terminal driver delivers the interrupt to the
				// child's foreground process group, root-owned included
				ptmx.Write([]byte{0x03})
			} else if child.Process != nil {
				child.Process.Signal(sig)
			}
		}
	}()

	readyChan := make(chan struct{}, 1)
	go watchNotifications(receiver, readyChan)

	childDone := make(chan error, 1)
	go func() { childDone <- child.Wait() }()

	var readyTimer <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		readyTimer = timer.C
	}

	ready := false
	for {
		select {
		case <-readyChan:
			if !ready {
				ready = true
				readyTimer = nil
				slog.Info("Service ready", "after", time.Since(started).Round(time.Millisecond))
			}

		case <-readyTimer:
			terminateChild(child, ptmx)
			<-childDone
			return 0, fmt.Errorf("%s did not signal readiness within %s", args[0], timeout)

		case waitErr := <-childDone:
			exitCode := 0
			if waitErr != nil {
				var exitErr *exec.ExitError
				if !errors.As(waitErr, &exitErr) {
					return 0, fmt.Errorf("failed to run %s: %w", args[0], waitErr)
				}
				exitCode = exitErr.ExitCode()
			}
			if !ready && exitCode != 0 {
				slog.Error("Child exited before signaling readiness", "code", exitCode)
			}
			return exitCode, nil
		}
	}
}

// watchNotifications logs every notification the child sends and signals
// the first READY=1. Runs until the socket closes.
func watchNotifications(receiver *daemon.Receiver, readyChan chan<- struct{}) {
	tracker := daemon.NewTracker(core.Config.Listener.WatchdogGrace)

	for {
		// Short read deadlines double as the watchdog sweep tick
		receiver.SetReadDeadline(time.Now().Add(time.Second))
		msg, err := receiver.ReadMessage()
		if err != nil {
			if os.IsTimeout(err) {
				for _, svc := range tracker.Sweep(time.Now()) {
					slog.Warn("Watchdog ping missed", "pid", svc.PID, "interval", svc.WatchdogInterval)
				}
				continue
			}
			return
		}
		if msg.Len() == 0 {
			continue
		}

		_, events := tracker.Apply(msg)
		for _, event := range events {
			slog.Info(fmt.Sprintf("Service %s", event), "pid", msg.PID)
		}
		if status, ok := msg.Get(notify.KeyStatus); ok {
			slog.Info("Service status", "pid", msg.PID, "status", status)
		}

		if msg.Ready() {
			select {
			case readyChan <- struct{}{}:
			default:
			}
		}
	}
}

// terminateChild asks the child to stop and force kills it after five
// seconds if it does not.
func terminateChild(child *exec.Cmd, ptmx *os.File) {
	if child.Process == nil {
		return
	}
	if ptmx != nil {
		ptmx.Write([]byte{0x03})
	} else {
		child.Process.Signal(syscall.SIGTERM)
	}
	time.AfterFunc(5*time.Second, func() { child.Process.Kill() })
}
