package notify

import (
	"regexp"
	"testing"
	"time"
)

func TestHelperWireFormat(t *testing.T) {
	conn, path := listenDatagram(t)
	client := newTestClient(t, path, WithDebug())

	cases := []struct {
		name string
		send func() error
		want string
	}{
		{"ready", client.Ready, "READY=1"},
		{"stopping", client.Stopping, "STOPPING=1"},
		{"status", func() error { return client.Status("Completed 50%") }, "STATUS=Completed 50%"},
		{"status multibyte", func() error { return client.Status("Genindlæser…") }, "STATUS=Genindlæser…"},
		{"status cleared", func() error { return client.Status("") }, "STATUS="},
		{"errno", func() error { return client.Errno(2) }, "ERRNO=2"},
		{"exit status", func() error { return client.ExitStatus(143) }, "EXIT_STATUS=143"},
		{"main pid", func() error { return client.MainPID(4242) }, "MAINPID=4242"},
		{"watchdog", client.Watchdog, "WATCHDOG=1"},
		{"watchdog trigger", client.WatchdogTrigger, "WATCHDOG=trigger"},
		{"watchdog interval", func() error { return client.WatchdogInterval(30 * time.Second) }, "WATCHDOG_USEC=30000000"},
		{"extend timeout", func() error { return client.ExtendTimeout(90 * time.Second) }, "EXTEND_TIMEOUT_USEC=90000000"},
		{"negative interval passes through", func() error { return client.WatchdogInterval(-time.Second) }, "WATCHDOG_USEC=-1000000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.send(); err != nil {
				t.Fatalf("failed to send: %v", err)
			}
			if got := readDatagram(t, conn); got != tc.want {
				t.Fatalf("expected %q on the wire, got %q", tc.want, got)
			}
		})
	}
}

func TestReloadingCarriesMonotonicTimestamp(t *testing.T) {
	conn, path := listenDatagram(t)
	client := newTestClient(t, path, WithDebug())

	if err := client.Reloading(); err != nil {
		t.Fatalf("failed to send reloading: %v", err)
	}

	got := readDatagram(t, conn)
	pattern := regexp.MustCompile(`^RELOADING=1\nMONOTONIC_USEC=\d+$`)
	if !pattern.MatchString(got) {
		t.Fatalf("expected reloading with monotonic timestamp, got %q", got)
	}
}

func TestMonotonicUsecMovesForward(t *testing.T) {
	first := monotonicUsec()
	time.Sleep(2 * time.Millisecond)
	second := monotonicUsec()
	if second <= first {
		t.Fatalf("expected the clock to move forward, got %d then %d", first, second)
	}
}
