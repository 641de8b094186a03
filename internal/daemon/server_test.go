package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.olrik.dev/lifeline/internal/core"
	"go.olrik.dev/lifeline/internal/db"
	"go.olrik.dev/lifeline/pkg/notify"
)

func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

func testConfig(t *testing.T, tmpDir string) {
	t.Helper()
	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = core.GetDefaultConfig()
	core.Config.ConfigPath = tmpDir
}

func newTestListener(t *testing.T) *Listener {
	t.Helper()
	l := New()
	t.Cleanup(l.cancelFunc)
	return l
}

func TestNewListener(t *testing.T) {
	testConfig(t, t.TempDir())

	l := newTestListener(t)
	if l.tracker == nil {
		t.Fatal("expected tracker to be initialized")
	}
	if len(l.Services()) != 0 {
		t.Error("expected no tracked services on a fresh listener")
	}
}

func TestApplyLogRate(t *testing.T) {
	testConfig(t, t.TempDir())
	l := newTestListener(t)

	// Zero disables the cap
	l.applyLogRate(0)
	for i := 0; i < 100; i++ {
		if !l.allowLog() {
			t.Fatal("expected unlimited logging with rate 0")
		}
	}

	// A positive rate allows a burst of that size, then throttles
	l.applyLogRate(5)
	allowed := 0
	for i := 0; i < 20; i++ {
		if l.allowLog() {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("expected a burst of 5 log lines, got %d", allowed)
	}
}

func TestProcessName(t *testing.T) {
	testConfig(t, t.TempDir())
	l := newTestListener(t)

	if name := l.processName(0); name != "" {
		t.Errorf("expected empty name for pid 0, got %q", name)
	}

	// Our own pid resolves to the test binary
	name := l.processName(os.Getpid())
	if name == "" {
		t.Skip("process name resolution unavailable")
	}

	// Second lookup comes from the cache
	if cached := l.processName(os.Getpid()); cached != name {
		t.Errorf("expected cached name %q, got %q", name, cached)
	}
}

func TestHandleMessageTracksState(t *testing.T) {
	quietLogger(t)
	testConfig(t, t.TempDir())
	l := newTestListener(t)

	msg := ParseMessage([]byte("READY=1\nSTATUS=Serving"))
	msg.PID = 123456789 // No such process, name resolution comes up empty
	l.handleMessage(msg)

	services := l.Services()
	if len(services) != 1 {
		t.Fatalf("expected one tracked service, got %d", len(services))
	}
	if !services[0].Ready || services[0].Status != "Serving" {
		t.Errorf("expected ready service with status, got %+v", services[0])
	}
}

func TestHandleMessageIgnoresEmptyDatagram(t *testing.T) {
	quietLogger(t)
	testConfig(t, t.TempDir())
	l := newTestListener(t)

	l.handleMessage(ParseMessage([]byte("\n\n")))
	if len(l.Services()) != 0 {
		t.Error("expected empty datagram to not create a service")
	}
}

func TestHandleMessageRecordsToDatabase(t *testing.T) {
	quietLogger(t)
	tmpDir := t.TempDir()
	testConfig(t, tmpDir)
	l := newTestListener(t)

	database, err := db.Open(filepath.Join(tmpDir, "lifeline.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	l.database = database

	msg := ParseMessage([]byte("READY=1"))
	msg.PID = 4242
	l.handleMessage(msg)

	notifications, err := database.GetRecentNotifications(10)
	if err != nil {
		t.Fatalf("failed to query notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected one recorded notification, got %d", len(notifications))
	}
	if notifications[0].PID != 4242 || notifications[0].State != "READY=1" {
		t.Errorf("unexpected record: %+v", notifications[0])
	}
}

func TestReloadConfigValid(t *testing.T) {
	quietLogger(t)
	tmpDir := t.TempDir()
	testConfig(t, tmpDir)
	l := newTestListener(t)

	configContent := `listener {
  log_rate_per_sec = 7
  watchdog_grace   = "30s"
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.hcl"), []byte(configContent), 0600); err != nil {
		t.Fatal(err)
	}

	if err := l.reloadConfig(); err != nil {
		t.Fatalf("reloadConfig failed: %v", err)
	}
	if core.Config.Listener.LogRatePerSec != 7 {
		t.Errorf("expected reloaded rate 7, got %d", core.Config.Listener.LogRatePerSec)
	}
	if core.Config.Listener.WatchdogGrace != 30*time.Second {
		t.Errorf("expected reloaded grace 30s, got %v", core.Config.Listener.WatchdogGrace)
	}
	if core.Config.ConfigPath != tmpDir {
		t.Errorf("expected config path to be preserved, got %q", core.Config.ConfigPath)
	}
	if l.limiter == nil {
		t.Error("expected log limiter to be applied from reloaded config")
	}
}

func TestReloadConfigInvalid(t *testing.T) {
	quietLogger(t)
	tmpDir := t.TempDir()
	testConfig(t, tmpDir)
	l := newTestListener(t)

	before := core.Config
	if err := os.WriteFile(filepath.Join(tmpDir, "config.hcl"), []byte("{{{invalid"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := l.reloadConfig(); err == nil {
		t.Fatal("expected error for invalid config")
	}
	if core.Config != before {
		t.Error("expected previous configuration to be kept")
	}
}

func TestReloadConfigMissing(t *testing.T) {
	quietLogger(t)
	testConfig(t, t.TempDir())
	l := newTestListener(t)

	if err := l.reloadConfig(); err == nil {
		t.Fatal("expected error when config file is missing")
	}
}

func TestAnnounceReloadWithoutSupervisor(t *testing.T) {
	quietLogger(t)
	testConfig(t, t.TempDir())
	l := newTestListener(t)

	called := false
	l.announceReload(func() error {
		called = true
		return nil
	})
	if !called {
		t.Error("expected reload func to run without a supervisor")
	}
}

func TestAnnounceReloadNotifiesSupervisor(t *testing.T) {
	quietLogger(t)
	tmpDir := t.TempDir()
	testConfig(t, tmpDir)
	l := newTestListener(t)

	// Stand in for the supervisor above us
	path := filepath.Join(tmpDir, "supervisor.sock")
	supervisor := listenAt(t, path)

	client, err := notify.New(notify.WithAddress(path), notify.WithDebug())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()
	l.selfNotify = client

	l.announceReload(func() error { return nil })

	supervisor.SetReadDeadline(time.Now().Add(2 * time.Second))
	first, err := supervisor.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read reloading datagram: %v", err)
	}
	if !first.Reloading() {
		t.Errorf("expected RELOADING=1 first, got %q", first.Raw)
	}
	if !strings.Contains(first.Raw, notify.KeyMonotonicUsec+"=") {
		t.Errorf("expected monotonic timestamp with reloading, got %q", first.Raw)
	}

	second, err := supervisor.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read ready datagram: %v", err)
	}
	if !second.Ready() {
		t.Errorf("expected READY=1 after reload, got %q", second.Raw)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	quietLogger(t)
	tmpDir := t.TempDir()
	testConfig(t, tmpDir)
	l := newTestListener(t)

	l.receiver = listenAt(t, filepath.Join(tmpDir, "notify.sock"))

	l.Shutdown()
	l.Shutdown()

	select {
	case <-l.ctx.Done():
	default:
		t.Error("expected context to be cancelled after shutdown")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "notify.sock")); !os.IsNotExist(err) {
		t.Error("expected socket file to be removed on shutdown")
	}
	if err := l.ctx.Err(); err != context.Canceled {
		t.Errorf("expected cancelled context, got %v", err)
	}
}
