// Package watchdog keeps a supervisor watchdog fed for the lifetime of a
// service process.
//
// A supervisor that arms a watchdog expects a WATCHDOG=1 ping within every
// WATCHDOG_USEC interval and declares the service hung when one is missed.
// The Keeper pings at half the armed interval, and around a system suspend
// it pings once right before the freeze and once right after wake.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pinger is the part of the notify client the Keeper needs.
type Pinger interface {
	Watchdog() error
}

// Keeper feeds an armed supervisor watchdog until its context ends.
type Keeper struct {
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
	monitor  *SleepMonitor
}

// New builds a Keeper for an armed watchdog timeout, pinging at half that
// timeout. A nil logger falls back to slog.Default().
func New(pinger Pinger, timeout time.Duration, logger *slog.Logger) (*Keeper, error) {
	if pinger == nil {
		return nil, fmt.Errorf("pinger must not be nil")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("watchdog timeout must be positive, got %s", timeout)
	}
	if logger == nil {
		logger = slog.Default()
	}

	keeper := &Keeper{
		pinger:   pinger,
		interval: timeout / 2,
		logger:   logger,
	}
	keeper.monitor = NewSleepMonitor(logger, keeper.ping, func(time.Duration) {
		keeper.ping()
	})
	return keeper, nil
}

// Interval returns the effective ping interval.
func (k *Keeper) Interval() time.Duration {
	return k.interval
}

// Run pings immediately and then on every interval tick until ctx is
// cancelled. It always returns the context error.
func (k *Keeper) Run(ctx context.Context) error {
	k.monitor.Start(ctx)
	k.logger.Debug("Watchdog keeper started", "interval", k.interval)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.ping()
	for {
		select {
		case <-ctx.Done():
			k.logger.Debug("Watchdog keeper stopped")
			return ctx.Err()
		case <-ticker.C:
			k.ping()
		}
	}
}

func (k *Keeper) ping() {
	if err := k.pinger.Watchdog(); err != nil {
		k.logger.Warn("Failed to ping watchdog", "error", err)
	}
}
