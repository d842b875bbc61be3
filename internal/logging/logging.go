// Package logging provides structured logging setup using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level represents the logging verbosity level.
type Level int

const (
	// LevelInfo is the default logging level for normal operation.
	LevelInfo Level = iota
	// LevelDebug enables verbose debug output.
	LevelDebug
)

// DebugEnv enables debug logging when set to 1.
const DebugEnv = "IMORNING_CHAT_DEBUG"

// level is shared by every handler installed by Setup so SetLevel
// takes effect without replacing the logger.
var level slog.LevelVar

// Setup initializes the global slog logger with the specified level.
// Call this once at application startup.
func Setup(l Level) {
	SetupWriter(os.Stderr, l)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, l Level) {
	SetLevel(l)

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: &level,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the verbosity of the installed logger.
func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		level.Set(slog.LevelDebug)
	default:
		level.Set(slog.LevelInfo)
	}
}

// FromDebug maps a debug flag to a Level.
func FromDebug(debug bool) Level {
	if debug {
		return LevelDebug
	}
	return LevelInfo
}

// SetupFromEnv initializes the logger based on environment variables.
// Set IMORNING_CHAT_DEBUG=1 to enable debug logging.
func SetupFromEnv() {
	Setup(FromDebug(os.Getenv(DebugEnv) == "1"))
}
