package notify

import (
	"strconv"
	"time"
)

// Ready reports that service startup is finished.
func (c *Client) Ready() error {
	return c.Notify(StateReady)
}

// MonotonicUsec returns the current CLOCK_MONOTONIC reading in microseconds,
// the value RELOADING notifications carry as MONOTONIC_USEC. Exposed for
// callers composing multi assignment messages by hand.
func MonotonicUsec() int64 {
	return monotonicUsec()
}

// Reloading reports that the service has started reloading its
// configuration. Supervisors match the reload against the next READY=1 by
// timestamp, so the current monotonic clock reading rides along.
func (c *Client) Reloading() error {
	usec := strconv.FormatInt(monotonicUsec(), 10)
	return c.Notify(StateReloading + "\n" + KeyMonotonicUsec + "=" + usec)
}

// Stopping reports that service shutdown has begun.
func (c *Client) Stopping() error {
	return c.Notify(StateStopping)
}

// Status publishes a single line of human readable status text. An empty
// text is valid and clears the status on the supervisor side.
func (c *Client) Status(text string) error {
	return c.Notify(KeyStatus + "=" + text)
}

// Errno reports a failure as an errno style code. The code is passed through
// as decimal text exactly as given.
func (c *Client) Errno(code int) error {
	return c.Notify(KeyErrno + "=" + strconv.Itoa(code))
}

// ExitStatus announces the exit code the service intends to exit with.
func (c *Client) ExitStatus(code int) error {
	return c.Notify(KeyExitStatus + "=" + strconv.Itoa(code))
}

// MainPID tells the supervisor which process is the main service process,
// for when the notifying process is not it.
func (c *Client) MainPID(pid int) error {
	return c.Notify(KeyMainPID + "=" + strconv.Itoa(pid))
}

// Watchdog sends a keep-alive ping. Once a watchdog is armed the supervisor
// expects one of these at least every WATCHDOG_USEC interval.
func (c *Client) Watchdog() error {
	return c.Notify(StateWatchdog)
}

// WatchdogTrigger asks the supervisor to treat the service as failed right
// away, as if a watchdog ping had been missed.
func (c *Client) WatchdogTrigger() error {
	return c.Notify(StateWatchdogTrigger)
}

// WatchdogInterval resets the armed watchdog timeout. The duration is
// truncated to whole microseconds and passed through unvalidated.
func (c *Client) WatchdogInterval(d time.Duration) error {
	return c.Notify(KeyWatchdogUsec + "=" + strconv.FormatInt(d.Microseconds(), 10))
}

// ExtendTimeout asks for more time in the current startup, runtime or
// shutdown phase. The duration is truncated to whole microseconds and passed
// through unvalidated.
func (c *Client) ExtendTimeout(d time.Duration) error {
	return c.Notify(KeyExtendTimeoutUsec + "=" + strconv.FormatInt(d.Microseconds(), 10))
}
