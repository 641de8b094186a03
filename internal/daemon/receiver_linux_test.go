//go:build linux

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.olrik.dev/lifeline/pkg/notify"
)

func TestReceiverSenderCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")
	receiver := listenAt(t, path)

	client, err := notify.New(notify.WithAddress(path), notify.WithDebug())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	if err := client.Ready(); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	receiver.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := receiver.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if msg.PID != os.Getpid() {
		t.Errorf("expected sender pid %d from socket credentials, got %d", os.Getpid(), msg.PID)
	}
}

func TestReceiverAbstractSocket(t *testing.T) {
	name := fmt.Sprintf("@lifeline-receiver-test-%d", os.Getpid())
	addr, err := notify.ResolveAddress(name)
	if err != nil {
		t.Fatalf("failed to resolve %q: %v", name, err)
	}
	receiver, err := Listen(addr)
	if err != nil {
		t.Fatalf("failed to listen on abstract socket: %v", err)
	}
	defer receiver.Close()

	client, err := notify.New(notify.WithAddress(name), notify.WithDebug())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	if err := client.Status("abstract works"); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	receiver.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := receiver.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if got, _ := msg.Get("STATUS"); got != "abstract works" {
		t.Errorf("expected status round trip, got %q", got)
	}
}
