package daemon

import (
	"strconv"
	"strings"
	"time"

	"go.olrik.dev/lifeline/pkg/notify"
)

// Message is one parsed notification datagram.
type Message struct {
	// PID is the sender process id from socket credentials, 0 when the
	// platform does not provide them.
	PID int
	// Process is the resolved process name, empty when unknown.
	Process string
	// Received is when the datagram arrived.
	Received time.Time
	// Raw is the payload exactly as it came off the wire.
	Raw string

	assignments []assignment
}

type assignment struct {
	key   string
	value string
}

// ParseMessage splits a datagram payload into KEY=VALUE assignments. Empty
// lines and lines without a key are dropped, the way supervisors treat them.
func ParseMessage(payload []byte) *Message {
	msg := &Message{
		Raw:      string(payload),
		Received: time.Now(),
	}
	for _, line := range strings.Split(msg.Raw, "\n") {
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found || key == "" {
			continue
		}
		msg.assignments = append(msg.assignments, assignment{key: key, value: value})
	}
	return msg
}

// Len returns the number of assignments in the message.
func (m *Message) Len() int {
	return len(m.assignments)
}

// Keys returns the assignment keys in wire order, duplicates included.
func (m *Message) Keys() []string {
	keys := make([]string, len(m.assignments))
	for i, a := range m.assignments {
		keys[i] = a.key
	}
	return keys
}

// Get returns the value for key. With duplicate assignments the last one
// wins, matching supervisor behavior.
func (m *Message) Get(key string) (string, bool) {
	for i := len(m.assignments) - 1; i >= 0; i-- {
		if m.assignments[i].key == key {
			return m.assignments[i].value, true
		}
	}
	return "", false
}

// Has reports whether key is assigned exactly value.
func (m *Message) Has(key, value string) bool {
	got, ok := m.Get(key)
	return ok && got == value
}

// Int returns the value for key parsed as a decimal integer.
func (m *Message) Int(key string) (int64, bool) {
	raw, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Ready reports a READY=1 assignment.
func (m *Message) Ready() bool {
	return m.Has(notify.KeyReady, "1")
}

// Reloading reports a RELOADING=1 assignment.
func (m *Message) Reloading() bool {
	return m.Has(notify.KeyReloading, "1")
}

// Stopping reports a STOPPING=1 assignment.
func (m *Message) Stopping() bool {
	return m.Has(notify.KeyStopping, "1")
}

// WatchdogPing reports a WATCHDOG=1 keep-alive.
func (m *Message) WatchdogPing() bool {
	return m.Has(notify.KeyWatchdog, "1")
}

// WatchdogTrigger reports a WATCHDOG=trigger failure request.
func (m *Message) WatchdogTrigger() bool {
	return m.Has(notify.KeyWatchdog, "trigger")
}

// WatchdogInterval returns a WATCHDOG_USEC assignment as a duration.
func (m *Message) WatchdogInterval() (time.Duration, bool) {
	usec, ok := m.Int(notify.KeyWatchdogUsec)
	if !ok || usec <= 0 {
		return 0, false
	}
	return time.Duration(usec) * time.Microsecond, true
}

// ExtendTimeout returns an EXTEND_TIMEOUT_USEC assignment as a duration.
func (m *Message) ExtendTimeout() (time.Duration, bool) {
	usec, ok := m.Int(notify.KeyExtendTimeoutUsec)
	if !ok || usec <= 0 {
		return 0, false
	}
	return time.Duration(usec) * time.Microsecond, true
}
