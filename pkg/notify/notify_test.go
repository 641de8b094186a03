package notify

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// listenDatagram binds a unixgram socket in a test-scoped directory and
// returns it together with its path.
func listenDatagram(t *testing.T) (*net.UnixConn, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("failed to listen on %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, path
}

// readDatagram reads exactly one datagram, failing the test after a second.
func readDatagram(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("failed to read datagram: %v", err)
	}
	return string(buf[:n])
}

func newTestClient(t *testing.T, path string, opts ...Option) *Client {
	t.Helper()
	client, err := New(append([]Option{WithAddress(path)}, opts...)...)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	if !client.Connected() {
		t.Fatal("expected client to be connected")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	client, err := New()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.Connected() {
		t.Fatal("expected client to be unconnected")
	}
	if _, ok := client.Address(); ok {
		t.Fatal("expected no resolved address")
	}

	// Every helper degrades to a successful no-op.
	if err := client.Ready(); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if err := client.Status("starting up"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}

	// Except for the empty payload, which is a caller bug either way.
	if err := client.Notify(""); !errors.Is(err, ErrEmptyState) {
		t.Fatalf("expected ErrEmptyState, got %v", err)
	}
}

func TestNewFromEnvironment(t *testing.T) {
	conn, path := listenDatagram(t)
	t.Setenv("NOTIFY_SOCKET", path)

	client, err := New()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer client.Close()
	if !client.Connected() {
		t.Fatal("expected client to be connected")
	}
	addr, ok := client.Address()
	if !ok || addr.Kind != AddressPath || addr.Name != path {
		t.Fatalf("expected resolved path address %q, got %+v", path, addr)
	}

	if err := client.Ready(); err != nil {
		t.Fatalf("failed to send ready: %v", err)
	}
	if got := readDatagram(t, conn); got != "READY=1" {
		t.Fatalf("expected READY=1 on the wire, got %q", got)
	}
}

func TestNewUnsupportedAddress(t *testing.T) {
	t.Run("silently degrades by default", func(t *testing.T) {
		client, err := New(WithAddress("tcp:127.0.0.1:99"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if client.Connected() {
			t.Fatal("expected client to be unconnected")
		}
		if err := client.Ready(); err != nil {
			t.Fatalf("expected silent no-op, got %v", err)
		}
	})

	t.Run("surfaces with debug", func(t *testing.T) {
		_, err := New(WithAddress("tcp:127.0.0.1:99"), WithDebug())
		if !errors.Is(err, ErrUnsupportedAddress) {
			t.Fatalf("expected ErrUnsupportedAddress, got %v", err)
		}
	})
}

func TestNewConnectFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nobody-listens.sock")

	t.Run("silently degrades by default", func(t *testing.T) {
		client, err := New(WithAddress(missing))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if client.Connected() {
			t.Fatal("expected client to be unconnected")
		}
		if err := client.Stopping(); err != nil {
			t.Fatalf("expected silent no-op, got %v", err)
		}
	})

	t.Run("surfaces with debug", func(t *testing.T) {
		_, err := New(WithAddress(missing), WithDebug())
		if err == nil {
			t.Fatal("expected a connect error")
		}
		if errors.Is(err, ErrUnsupportedAddress) {
			t.Fatalf("expected a connect error, not an address error: %v", err)
		}
	})
}

func TestNotifySingleDatagram(t *testing.T) {
	conn, path := listenDatagram(t)
	client := newTestClient(t, path)

	state := "STATUS=Listening on port 8080\nMAINPID=4242"
	if err := client.Notify(state); err != nil {
		t.Fatalf("failed to notify: %v", err)
	}

	// The whole multi-line state arrives as one datagram, no trailing
	// newline appended.
	if got := readDatagram(t, conn); got != state {
		t.Fatalf("expected %q in one datagram, got %q", state, got)
	}

	if err := client.Ready(); err != nil {
		t.Fatalf("failed to send ready: %v", err)
	}
	if got := readDatagram(t, conn); got != "READY=1" {
		t.Fatalf("expected READY=1 as the next datagram, got %q", got)
	}
}

func TestSendFailureGating(t *testing.T) {
	t.Run("silently dropped by default", func(t *testing.T) {
		conn, path := listenDatagram(t)
		client := newTestClient(t, path)

		conn.Close()
		os.Remove(path)

		if err := client.Ready(); err != nil {
			t.Fatalf("expected send failure to be swallowed, got %v", err)
		}
	})

	t.Run("surfaces with debug", func(t *testing.T) {
		conn, path := listenDatagram(t)
		client := newTestClient(t, path, WithDebug())

		conn.Close()
		os.Remove(path)

		if err := client.Ready(); err == nil {
			t.Fatal("expected a send error")
		}
	})
}

func TestClose(t *testing.T) {
	_, path := listenDatagram(t)
	client := newTestClient(t, path, WithDebug())

	if err := client.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if client.Connected() {
		t.Fatal("expected client to be unconnected after close")
	}

	// A closed client behaves like an unconnected one, debug or not.
	if err := client.Ready(); err != nil {
		t.Fatalf("expected silent no-op after close, got %v", err)
	}
	if err := client.Notify(""); !errors.Is(err, ErrEmptyState) {
		t.Fatalf("expected ErrEmptyState after close, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("expected second close to be a no-op, got %v", err)
	}
}

func TestWithUnsetEnvironment(t *testing.T) {
	_, path := listenDatagram(t)
	t.Setenv("NOTIFY_SOCKET", path)

	client, err := New(WithUnsetEnvironment())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer client.Close()

	if !client.Connected() {
		t.Fatal("expected client to be connected")
	}
	if got := os.Getenv("NOTIFY_SOCKET"); got != "" {
		t.Fatalf("expected NOTIFY_SOCKET to be cleared, got %q", got)
	}
}
