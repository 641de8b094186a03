package notify

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestStoreFDsPassesOpenFile(t *testing.T) {
	conn, path := listenDatagram(t)
	client := newTestClient(t, path, WithDebug())

	payload := filepath.Join(t.TempDir(), "payload.txt")
	if err := os.WriteFile(payload, []byte("kept across restart"), 0o600); err != nil {
		t.Fatalf("failed to write payload file: %v", err)
	}
	file, err := os.Open(payload)
	if err != nil {
		t.Fatalf("failed to open payload file: %v", err)
	}
	defer file.Close()

	if err := client.StoreFDs("payload", file); err != nil {
		t.Fatalf("failed to store fd: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	oob := make([]byte, 256)
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		t.Fatalf("failed to read datagram: %v", err)
	}

	if got := string(buf[:n]); got != "FDSTORE=1\nFDNAME=payload" {
		t.Fatalf("expected fd store state, got %q", got)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		t.Fatalf("failed to parse control messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one control message, got %d", len(msgs))
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		t.Fatalf("failed to parse rights: %v", err)
	}
	if len(fds) != 1 {
		t.Fatalf("expected one file descriptor, got %d", len(fds))
	}

	received := os.NewFile(uintptr(fds[0]), "received")
	defer received.Close()
	content, err := io.ReadAll(received)
	if err != nil {
		t.Fatalf("failed to read through received fd: %v", err)
	}
	if string(content) != "kept across restart" {
		t.Fatalf("expected file content through received fd, got %q", content)
	}
}

func TestRemoveFDsWireFormat(t *testing.T) {
	conn, path := listenDatagram(t)
	client := newTestClient(t, path, WithDebug())

	if err := client.RemoveFDs("payload"); err != nil {
		t.Fatalf("failed to send removal: %v", err)
	}
	if got := readDatagram(t, conn); got != "FDSTOREREMOVE=1\nFDNAME=payload" {
		t.Fatalf("expected fd store removal state, got %q", got)
	}
}

func TestNotifyWithFDs(t *testing.T) {
	t.Run("no files behaves like notify", func(t *testing.T) {
		conn, path := listenDatagram(t)
		client := newTestClient(t, path, WithDebug())

		if err := client.NotifyWithFDs("READY=1"); err != nil {
			t.Fatalf("failed to notify: %v", err)
		}
		if got := readDatagram(t, conn); got != "READY=1" {
			t.Fatalf("expected READY=1 on the wire, got %q", got)
		}
	})

	t.Run("empty state is always an error", func(t *testing.T) {
		t.Setenv("NOTIFY_SOCKET", "")
		client, err := New()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := client.NotifyWithFDs("", os.Stdin); !errors.Is(err, ErrEmptyState) {
			t.Fatalf("expected ErrEmptyState, got %v", err)
		}
	})

	t.Run("unconnected client drops files quietly", func(t *testing.T) {
		t.Setenv("NOTIFY_SOCKET", "")
		client, err := New()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := client.StoreFDs("payload", os.Stdin); err != nil {
			t.Fatalf("expected silent no-op, got %v", err)
		}
	})
}
