package daemon

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.olrik.dev/lifeline/pkg/notify"
)

// staleAfter is how long a silent service stays tracked. History lives in
// the database; the tracker only holds live state.
const staleAfter = time.Hour

// ServiceState is everything the listener knows about one notifying process.
type ServiceState struct {
	PID       int
	Process   string
	Ready     bool
	Reloading bool
	Stopping  bool
	Status    string
	Errno     int
	ExitCode  int
	MainPID   int

	// WatchdogInterval is the ping interval the service announced in-band
	// with WATCHDOG_USEC; zero when no watchdog is armed.
	WatchdogInterval time.Duration
	// WatchdogDeadline is when the next ping is due, grace included.
	WatchdogDeadline time.Time
	// WatchdogMissed flags a blown deadline until the next ping rearms it.
	WatchdogMissed bool

	FirstSeen time.Time
	LastSeen  time.Time
	Messages  int
}

// Tracker folds notifications into per process service state.
type Tracker struct {
	mu       sync.Mutex
	services map[int]*ServiceState
	grace    time.Duration
}

// NewTracker creates a tracker. grace is added on top of announced watchdog
// intervals before a missed ping is declared, absorbing scheduling jitter.
func NewTracker(grace time.Duration) *Tracker {
	return &Tracker{
		services: make(map[int]*ServiceState),
		grace:    grace,
	}
}

// Apply folds one message into the tracked state. It returns a copy of the
// resulting state and the lifecycle transitions the message caused, as
// loggable fragments like "ready" or "watchdog armed (30s)".
func (t *Tracker) Apply(msg *Message) (ServiceState, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	svc := t.services[msg.PID]
	if svc == nil {
		svc = &ServiceState{
			PID:       msg.PID,
			FirstSeen: msg.Received,
		}
		t.services[msg.PID] = svc
	}
	if msg.Process != "" {
		svc.Process = msg.Process
	}
	svc.LastSeen = msg.Received
	svc.Messages++

	var events []string

	if msg.Ready() {
		if svc.Reloading {
			svc.Reloading = false
			events = append(events, "reload complete")
		} else if !svc.Ready {
			events = append(events, "ready")
		}
		svc.Ready = true
	}
	if msg.Reloading() {
		if !svc.Reloading {
			events = append(events, "reloading")
		}
		svc.Reloading = true
	}
	if msg.Stopping() {
		if !svc.Stopping {
			events = append(events, "stopping")
		}
		svc.Stopping = true
	}

	if status, ok := msg.Get(notify.KeyStatus); ok {
		svc.Status = status
	}
	if errno, ok := msg.Int(notify.KeyErrno); ok {
		svc.Errno = int(errno)
		events = append(events, fmt.Sprintf("errno %d", errno))
	}
	if code, ok := msg.Int(notify.KeyExitStatus); ok {
		svc.ExitCode = int(code)
		events = append(events, fmt.Sprintf("exit status %d", code))
	}
	if pid, ok := msg.Int(notify.KeyMainPID); ok {
		svc.MainPID = int(pid)
		events = append(events, fmt.Sprintf("main pid %d", pid))
	}

	if interval, ok := msg.WatchdogInterval(); ok {
		svc.WatchdogInterval = interval
		svc.WatchdogDeadline = msg.Received.Add(interval + t.grace)
		svc.WatchdogMissed = false
		events = append(events, fmt.Sprintf("watchdog armed (%s)", interval))
	}
	if msg.WatchdogPing() && svc.WatchdogInterval > 0 {
		svc.WatchdogDeadline = msg.Received.Add(svc.WatchdogInterval + t.grace)
		svc.WatchdogMissed = false
	}
	if msg.WatchdogTrigger() {
		svc.WatchdogMissed = true
		events = append(events, "watchdog trigger")
	}
	if extend, ok := msg.ExtendTimeout(); ok {
		if !svc.WatchdogDeadline.IsZero() {
			deadline := msg.Received.Add(extend)
			if deadline.After(svc.WatchdogDeadline) {
				svc.WatchdogDeadline = deadline
			}
		}
		events = append(events, fmt.Sprintf("timeout extended (%s)", extend))
	}

	return *svc, events
}

// SetGrace changes the watchdog grace for deadlines armed from now on.
// Already armed deadlines keep the grace they were armed with.
func (t *Tracker) SetGrace(grace time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.grace = grace
}

// Sweep reports services whose armed watchdog deadline has passed since the
// last sweep and drops services that have been silent past staleAfter. Each
// miss is reported once; a later ping rearms the deadline.
func (t *Tracker) Sweep(now time.Time) []ServiceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	var missed []ServiceState
	for pid, svc := range t.services {
		if now.Sub(svc.LastSeen) > staleAfter {
			delete(t.services, pid)
			continue
		}
		if svc.WatchdogDeadline.IsZero() || svc.WatchdogMissed || svc.Stopping {
			continue
		}
		if now.After(svc.WatchdogDeadline) {
			svc.WatchdogMissed = true
			missed = append(missed, *svc)
		}
	}
	return missed
}

// Snapshot returns a copy of every tracked service, most recently seen
// first.
func (t *Tracker) Snapshot() []ServiceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	services := make([]ServiceState, 0, len(t.services))
	for _, svc := range t.services {
		services = append(services, *svc)
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].LastSeen.After(services[j].LastSeen)
	})
	return services
}

// Len returns the number of tracked services.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.services)
}
