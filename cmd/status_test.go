package cmd

import (
	"strings"
	"testing"
	"time"

	"go.olrik.dev/lifeline/internal/daemon"
)

func TestServiceLabel(t *testing.T) {
	withName := daemon.ServiceState{PID: 4242, Process: "mydaemon"}
	if got := serviceLabel(withName); got != "mydaemon (PID 4242)" {
		t.Errorf("unexpected label %q", got)
	}

	anonymous := daemon.ServiceState{PID: 4242}
	if got := serviceLabel(anonymous); got != "PID 4242" {
		t.Errorf("unexpected label %q", got)
	}
}

func TestServiceSummary(t *testing.T) {
	tests := []struct {
		name string
		svc  daemon.ServiceState
		want string
	}{
		{
			name: "starting",
			svc:  daemon.ServiceState{},
			want: "starting",
		},
		{
			name: "ready with status",
			svc:  daemon.ServiceState{Ready: true, Status: "Serving"},
			want: `ready, status "Serving"`,
		},
		{
			name: "stopping wins over ready",
			svc:  daemon.ServiceState{Ready: true, Stopping: true},
			want: "stopping",
		},
		{
			name: "reloading wins over ready",
			svc:  daemon.ServiceState{Ready: true, Reloading: true},
			want: "reloading",
		},
		{
			name: "watchdog interval shown",
			svc:  daemon.ServiceState{Ready: true, WatchdogInterval: 30 * time.Second},
			want: "ready, watchdog 30s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serviceSummary(tt.svc)
			if got != tt.want {
				t.Errorf("serviceSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceSummaryLastSeen(t *testing.T) {
	svc := daemon.ServiceState{Ready: true, LastSeen: time.Now().Add(-42 * time.Second)}
	got := serviceSummary(svc)
	if !strings.Contains(got, "last seen 42s ago") {
		t.Errorf("expected last seen fragment, got %q", got)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("READY=1\nSTATUS=Up"); got != "READY=1 STATUS=Up" {
		t.Errorf("unexpected flattening %q", got)
	}
	if got := oneLine("READY=1"); got != "READY=1" {
		t.Errorf("single line changed to %q", got)
	}
}
