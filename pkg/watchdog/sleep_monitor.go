package watchdog

import (
	"log/slog"
	"sync"
	"time"
)

// SleepMonitor detects system suspend/resume transitions so watchdog pings
// can bracket the gap. A suspended machine cannot ping, and a supervisor
// timer that survives the suspend would otherwise fire right after wake.
type SleepMonitor struct {
	mu       sync.RWMutex
	sleeping bool
	sleptAt  time.Time
	logger   *slog.Logger
	onSleep  func()
	onWake   func(slept time.Duration)
}

// NewSleepMonitor creates a monitor with the given transition callbacks.
// Either callback may be nil. onWake receives the time spent asleep.
func NewSleepMonitor(logger *slog.Logger, onSleep func(), onWake func(time.Duration)) *SleepMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SleepMonitor{
		logger:  logger,
		onSleep: onSleep,
		onWake:  onWake,
	}
}

func (m *SleepMonitor) markSleep() {
	m.mu.Lock()
	if m.sleeping {
		m.mu.Unlock()
		return // Already asleep
	}
	m.sleeping = true
	m.sleptAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("System entering sleep")

	if m.onSleep != nil {
		m.onSleep()
	}
}

func (m *SleepMonitor) markWake() {
	m.mu.Lock()
	if !m.sleeping {
		m.mu.Unlock()
		return // Already awake
	}
	m.sleeping = false
	slept := time.Since(m.sleptAt)
	m.mu.Unlock()

	m.logger.Info("System waking up", "slept", slept.Round(time.Second))

	if m.onWake != nil {
		m.onWake(slept)
	}
}

// IsSleeping reports whether the system is between a suspend announcement
// and the matching wake.
func (m *SleepMonitor) IsSleeping() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sleeping
}
