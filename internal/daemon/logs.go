package daemon

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"go.olrik.dev/lifeline/internal/core"
)

// setupLogging configures the listener's logger. Verbosity from the config
// or the command line lowers the level to debug.
func (l *Listener) setupLogging() {
	level := slog.LevelInfo
	if core.Config.Verbose > 0 {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})

	slog.SetDefault(slog.New(handler))
}
