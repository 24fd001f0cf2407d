package logger

import (
	"log"
	"log/slog"
)

// New returns a stdlib logger that forwards every line to l at error level,
// tagged with component. Used where APIs still want *log.Logger.
func New(l *slog.Logger, component string) *log.Logger {
	if l == nil {
		l = slog.Default()
	}
	return slog.NewLogLogger(l.With("component", component).Handler(), slog.LevelError)
}
