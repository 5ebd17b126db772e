// Package audit provides structured logging for execution audit. The call
// site convention (components call audit.Log, never log/slog directly) is
// unchanged from the teacher; the backing handler is upgraded from stdlib
// log to log/slog, matching the pack's service-teacher logging convention
// (JSON vs text keyed off an env var).
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var logger = slog.New(newHandler())

func newHandler() slog.Handler {
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}
	if jsonMode() {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

func jsonMode() bool {
	mode := strings.ToLower(os.Getenv("CONVERGENCE_JSON_LOG"))
	return mode == "1" || mode == "true" || mode == "json"
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("CONVERGENCE_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Log writes an audit event at info level. format should use key=value
// pairs, matching the teacher's [AUDIT] convention; the message itself is
// carried as the slog record's message rather than a literal prefix, since
// slog already tags every record with its level and source.
func Log(format string, args ...interface{}) {
	logger.Info(fmt.Sprintf(format, args...))
}

// Warn writes an audit event at warn level, for conditions the engine
// recovers from but that operators should notice (overseer crash, circuit
// trip, fresh start).
func Warn(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

// Error writes an audit event at error level, for conditions that pause a
// goal or abort an iteration.
func Error(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}
