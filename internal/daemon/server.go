package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"

	"go.olrik.dev/lifeline/internal/core"
	"go.olrik.dev/lifeline/internal/db"
	"go.olrik.dev/lifeline/pkg/notify"
	"go.olrik.dev/lifeline/pkg/watchdog"
)

// Listener receives lifecycle notifications on a datagram socket, folds them
// into per service state and records them. One instance per socket.
type Listener struct {
	mu           sync.Mutex
	receiver     *Receiver
	tracker      *Tracker
	database     *db.DB
	limiter      *rate.Limiter // Caps notification log lines, nil means unlimited
	names        map[int]string
	selfNotify   *notify.Client // Reports our own lifecycle to a supervisor above us
	retention    *cron.Cron
	ctx          context.Context
	cancelFunc   context.CancelFunc
	shutdownOnce sync.Once
}

func New() *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		tracker:    NewTracker(core.Config.Listener.WatchdogGrace),
		names:      make(map[int]string),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Run starts the listener and blocks until a shutdown signal arrives or the
// socket becomes unusable.
func (l *Listener) Run() error {
	l.setupLogging()

	slog.Info(fmt.Sprintf("Starting lifeline listener %s", core.FormatVersion(core.Version)))

	// Open the database; the listener keeps running without persistence
	// when that fails.
	if core.Config.Listener.Record {
		dbPath := core.GetDatabasePath()
		database, err := db.Open(dbPath)
		if err != nil {
			slog.Error("Failed to open database, notifications will not be recorded", "error", err, "path", dbPath)
		} else {
			l.database = database
			slog.Info("Database opened", "path", dbPath)
		}
	}

	addr, err := notify.ResolveAddress(core.GetSocketPath())
	if err != nil {
		return fmt.Errorf("failed to resolve listener socket: %w", err)
	}

	receiver, err := Listen(addr)
	if err != nil {
		return fmt.Errorf("failed to bind listener socket: %w", err)
	}
	l.receiver = receiver
	slog.Info(fmt.Sprintf("Listening for notifications on %s", addr))

	pidFilePath := core.GetPIDFilePath()
	os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidFilePath)

	if l.database != nil {
		version := core.FormatVersion(core.Version)
		details := fmt.Sprintf("listener started - version: %s, PID: %d, socket: %s", version, os.Getpid(), addr)
		if err := l.database.LogListenerEvent("start", details); err != nil {
			slog.Error("Failed to log listener start", "error", err)
		}
	}

	l.applyLogRate(core.Config.Listener.LogRatePerSec)
	l.retention = startRetention(l.database, core.Config.Retention)

	// When lifeline itself runs under a notify aware supervisor, report
	// readiness upward and feed its watchdog.
	l.notifySupervisor()

	// Watch config file for changes
	l.watchConfig()

	// Handle signals
	shutdownChan := make(chan os.Signal, 1)
	hupChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)
	signal.Notify(hupChan, syscall.SIGHUP)

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sig := <-shutdownChan
		slog.Info(fmt.Sprintf("Received %s, shutting down", sig))
		l.Shutdown()
	}()

	// SIGHUP reloads the configuration, the conventional supervisor contract
	go func() {
		for {
			select {
			case <-l.ctx.Done():
				return
			case <-hupChan:
				slog.Info("SIGHUP received, reloading configuration")
				l.announceReload(func() error { return l.reloadConfig() })
			}
		}
	}()

	go l.sweepLoop()

	l.receiveLoop()

	l.Shutdown()
	slog.Info("Listener stopped")
	return nil
}

// notifySupervisor passes our own lifecycle up the chain: READY once the
// socket is bound, watchdog pings if one was requested, STOPPING on the way
// out. A no-op when no notification socket is inherited.
func (l *Listener) notifySupervisor() {
	client, err := notify.New()
	if err != nil || !client.Connected() {
		return
	}
	l.selfNotify = client

	client.Ready()
	client.Status("Listening for notifications")

	timeout, err := notify.WatchdogEnabled(false)
	if err != nil {
		slog.Warn("Failed to read watchdog environment", "error", err)
		return
	}
	if timeout == 0 {
		return
	}

	keeper, err := watchdog.New(client, timeout, slog.Default())
	if err != nil {
		slog.Warn("Failed to start watchdog keeper", "error", err)
		return
	}
	slog.Info("Feeding supervisor watchdog", "interval", keeper.Interval())
	go keeper.Run(l.ctx)
}

// receiveLoop reads datagrams until the socket closes or the context ends.
func (l *Listener) receiveLoop() {
	for {
		msg, err := l.receiver.ReadMessage()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("Failed to read notification datagram", "error", err)
			continue
		}
		l.handleMessage(msg)
	}
}

// handleMessage folds one datagram into the tracker, logs it and records it.
func (l *Listener) handleMessage(msg *Message) {
	if msg.Len() == 0 {
		if l.allowLog() {
			slog.Debug("Ignoring datagram without assignments", "pid", msg.PID)
		}
		return
	}

	msg.Process = l.processName(msg.PID)

	state, events := l.tracker.Apply(msg)

	if l.allowLog() {
		l.logMessage(msg, state, events)
	}

	if l.database != nil {
		if err := l.database.RecordNotification(msg.PID, msg.Process, msg.Raw); err != nil {
			slog.Warn("Failed to record notification", "error", err)
		}
		for _, event := range events {
			if event == "watchdog trigger" {
				details := fmt.Sprintf("pid %d (%s) requested a watchdog trigger", msg.PID, msg.Process)
				l.database.LogListenerEvent("watchdog_trigger", details)
			}
		}
	}
}

// logMessage writes the human readable view of one notification.
func (l *Listener) logMessage(msg *Message, state ServiceState, events []string) {
	attrs := []any{"pid", msg.PID}
	if msg.Process != "" {
		attrs = append(attrs, "process", msg.Process)
	}

	for _, event := range events {
		slog.Info(fmt.Sprintf("Service %s", event), attrs...)
	}
	if status, ok := msg.Get(notify.KeyStatus); ok {
		slog.Info("Service status", append(attrs, "status", status)...)
	}
	if msg.WatchdogPing() && state.WatchdogInterval > 0 {
		slog.Debug("Watchdog ping", append(attrs, "next_deadline", state.WatchdogDeadline.Format(time.DateTime))...)
	}
	slog.Debug("Notification received", append(attrs, "state", msg.Raw)...)
}

// processName resolves and caches the name behind a pid. Best effort: the
// sender may be gone by the time we look, and non Linux sockets carry no
// credentials at all.
func (l *Listener) processName(pid int) string {
	if pid <= 0 {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if name, ok := l.names[pid]; ok {
		return name
	}

	var name string
	if proc, err := process.NewProcess(int32(pid)); err == nil {
		if n, err := proc.Name(); err == nil {
			name = n
		}
	}

	// Pids get recycled; keep the cache small instead of chasing reuse.
	if len(l.names) >= 1024 {
		l.names = make(map[int]string)
	}
	l.names[pid] = name
	return name
}

// allowLog rate limits per notification logging so a misbehaving service
// cannot flood the journal.
func (l *Listener) allowLog() bool {
	l.mu.Lock()
	limiter := l.limiter
	l.mu.Unlock()

	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

// applyLogRate swaps the notification log limiter. Zero disables the cap.
func (l *Listener) applyLogRate(perSec int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perSec <= 0 {
		l.limiter = nil
		return
	}
	l.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
}

// sweepLoop checks armed watchdog deadlines once a second.
func (l *Listener) sweepLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case now := <-ticker.C:
			for _, svc := range l.tracker.Sweep(now) {
				slog.Warn("Watchdog ping missed",
					"pid", svc.PID,
					"process", svc.Process,
					"interval", svc.WatchdogInterval)
				if l.database != nil {
					details := fmt.Sprintf("pid %d (%s) missed its %s watchdog interval", svc.PID, svc.Process, svc.WatchdogInterval)
					l.database.LogListenerEvent("watchdog_miss", details)
				}
			}
		}
	}
}

// Services returns the current per service state, most recently seen first.
func (l *Listener) Services() []ServiceState {
	return l.tracker.Snapshot()
}

// announceReload brackets a reload with the RELOADING/READY handshake so a
// supervisor above us sees the reload the same way we see our services'.
func (l *Listener) announceReload(reload func() error) {
	if l.selfNotify != nil {
		l.selfNotify.Reloading()
	}
	err := reload()
	if l.selfNotify != nil {
		l.selfNotify.Ready()
		if err != nil {
			l.selfNotify.Status("Reload failed, previous configuration kept")
		} else {
			l.selfNotify.Status("Listening for notifications")
		}
	}
}

// reloadConfig reloads the configuration and applies what can change at
// runtime. The socket cannot be rebound live; changing it needs a restart.
func (l *Listener) reloadConfig() error {
	// Save the old config in case we need to roll back
	oldConfig := core.Config

	configPath := core.GetConfigFilePath()
	newConfig, err := core.LoadConfig(configPath)
	if err != nil {
		slog.Error("Configuration file has errors, keeping previous configuration",
			"file", configPath,
			"error", err)
		return fmt.Errorf("config parse error")
	}

	// Preserve the config path and any higher verbosity set on the command line
	newConfig.ConfigPath = oldConfig.ConfigPath
	if oldConfig.Verbose > newConfig.Verbose {
		newConfig.Verbose = oldConfig.Verbose
	}

	core.Config = newConfig

	if newConfig.Listener.Socket != oldConfig.Listener.Socket {
		slog.Warn("Listener socket changed, restart to apply", "socket", newConfig.Listener.Socket)
	}

	l.setupLogging()
	l.applyLogRate(newConfig.Listener.LogRatePerSec)
	l.tracker.SetGrace(newConfig.Listener.WatchdogGrace)

	if l.retention != nil {
		l.retention.Stop()
	}
	l.retention = startRetention(l.database, newConfig.Retention)

	if l.database != nil {
		details := fmt.Sprintf("configuration reloaded - log_rate_per_sec: %d, watchdog_grace: %s",
			newConfig.Listener.LogRatePerSec, newConfig.Listener.WatchdogGrace)
		l.database.LogListenerEvent("config_reload", details)
	}

	slog.Info("Configuration reloaded successfully")
	return nil
}

// watchConfig sets up automatic config file watching
func (l *Listener) watchConfig() {
	configPath := core.GetConfigFilePath()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}

	if err := watcher.Add(configPath); err != nil {
		// No config file is fine, the defaults are in effect.
		slog.Debug("Not watching config file", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	// Set up a debounced reload handler
	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-l.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				slog.Debug("Filesystem event on config file", "event", event.Op.String(), "file", event.Name)

				// Re-add watch after RENAME, REMOVE, or CREATE events.
				// Editors using atomic writes remove the original from the
				// watch list, and the new file may not exist yet mid write.
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go func() {
						for attempt := 0; attempt < 5; attempt++ {
							if attempt > 0 {
								delay := time.Duration(10<<uint(attempt-1)) * time.Millisecond
								time.Sleep(delay)
							}

							watcher.Remove(configPath)

							if err := watcher.Add(configPath); err == nil {
								slog.Debug("Successfully re-added watch", "path", configPath, "attempt", attempt+1)
								return
							} else if attempt == 4 {
								slog.Error("Failed to re-add watch after multiple attempts", "error", err, "path", configPath)
							}
						}
					}()
				}

				// Reload on write, create, or rename events. Many editors
				// use atomic rename operations instead of direct writes.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				reloadMutex.Lock()
				// Debounce: wait 500ms after last change before reloading
				if reloadTimer != nil {
					reloadTimer.Stop()
				}

				reloadTimer = time.AfterFunc(500*time.Millisecond, func() {
					slog.Info("Configuration file changed, reloading...", "file", event.Name)
					l.announceReload(func() error { return l.reloadConfig() })
				})
				reloadMutex.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config file watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching configuration file for changes")
}

// Shutdown stops the listener. Safe to call more than once.
func (l *Listener) Shutdown() {
	l.shutdownOnce.Do(func() {
		slog.Info("Executing shutdown sequence...")

		if l.selfNotify != nil {
			l.selfNotify.Stopping()
		}

		if l.cancelFunc != nil {
			l.cancelFunc()
		}

		if l.retention != nil {
			l.retention.Stop()
		}

		// Unblock the receive loop.
		if l.receiver != nil {
			l.receiver.SetReadDeadline(time.Now())
			l.receiver.Close()
		}

		if l.database != nil {
			details := fmt.Sprintf("listener stopped - PID: %d, tracked services: %d", os.Getpid(), l.tracker.Len())
			if err := l.database.LogListenerEvent("stop", details); err != nil {
				slog.Error("Failed to log listener stop event", "error", err)
			}
			if err := l.database.Flush(); err != nil {
				slog.Error("Failed to flush database during shutdown", "error", err)
			}
			if err := l.database.Close(); err != nil {
				slog.Error("Failed to close database", "error", err)
			}
		}

		if l.selfNotify != nil {
			l.selfNotify.Close()
		}
	})
}
