package notify

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// WatchdogEnabled reports whether the supervisor armed a watchdog for this
// process and the interval it expects pings within, from the WATCHDOG_USEC
// and WATCHDOG_PID environment variables. A zero duration with a nil error
// means no watchdog applies: the variables are unset, or the armed interval
// targets a different process.
//
// With unsetEnv the variables are cleared regardless of outcome so child
// processes do not inherit them.
func WatchdogEnabled(unsetEnv bool) (time.Duration, error) {
	if unsetEnv {
		defer func() {
			os.Unsetenv("WATCHDOG_USEC")
			os.Unsetenv("WATCHDOG_PID")
		}()
	}

	rawUsec := os.Getenv("WATCHDOG_USEC")
	if rawUsec == "" {
		return 0, nil
	}
	usec, err := strconv.ParseInt(rawUsec, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse WATCHDOG_USEC: %w", err)
	}
	if usec <= 0 {
		return 0, fmt.Errorf("WATCHDOG_USEC must be positive, got %d", usec)
	}

	if rawPid := os.Getenv("WATCHDOG_PID"); rawPid != "" {
		pid, err := strconv.Atoi(rawPid)
		if err != nil {
			return 0, fmt.Errorf("failed to parse WATCHDOG_PID: %w", err)
		}
		if pid != os.Getpid() {
			return 0, nil
		}
	}

	return time.Duration(usec) * time.Microsecond, nil
}
