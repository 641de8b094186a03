package daemon

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"go.olrik.dev/lifeline/internal/core"
	"go.olrik.dev/lifeline/internal/db"
)

// startRetention schedules periodic pruning of recorded notifications per
// the retention config. It returns the running scheduler so the caller can
// stop it, or nil when retention is disabled or misconfigured.
func startRetention(database *db.DB, cfg core.RetentionConfig) *cron.Cron {
	if database == nil || cfg.Schedule == "" || cfg.MaxAge <= 0 {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	scheduler := cron.New(cron.WithParser(parser))

	_, err := scheduler.AddFunc(cfg.Schedule, func() {
		cutoff := time.Now().Add(-cfg.MaxAge)
		pruned, err := database.PruneBefore(cutoff)
		if err != nil {
			slog.Warn("Failed to prune notification history", "error", err)
			return
		}
		if pruned > 0 {
			slog.Info("Pruned notification history", "rows", pruned, "max_age", cfg.MaxAge)
		}
	})
	if err != nil {
		slog.Warn("Failed to schedule retention job", "schedule", cfg.Schedule, "error", err)
		return nil
	}

	scheduler.Start()
	slog.Debug("Retention job scheduled", "schedule", cfg.Schedule, "max_age", cfg.MaxAge)
	return scheduler
}
