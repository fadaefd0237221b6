// Package logger configures the global zerolog logger and hands out child
// loggers tagged with request, connection and session identifiers.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const milliTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Init configures the global logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
// LOG_FORMAT=json emits one JSON object per line for log shippers; anything
// else gets the console writer, colored when dev is set.
func Init(dev bool) {
	zerolog.TimeFieldFormat = milliTimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.CallerMarshalFunc = shortCaller

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	writers := []io.Writer{consoleOrJSON(format, dev)}
	if path := os.Getenv("LOG_FILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			// Files always get JSON so they stay greppable with jq.
			writers = append(writers, f)
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Caller().Logger()

	log.Info().
		Str("level", level.String()).
		Str("format", format).
		Bool("dev", dev).
		Msg("Logger initialized")
}

func consoleOrJSON(format string, dev bool) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: milliTimeFormat, NoColor: !dev}
}

// shortCaller pads or trims file:line to a fixed width so console columns line up.
func shortCaller(_ uintptr, file string, line int) string {
	const width = 30
	path := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if len(path) >= width {
		return path[len(path)-width:]
	}
	return path + strings.Repeat(" ", width-len(path))
}

// NewRequestID returns a short random identifier for log correlation.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ForRequest returns a logger enriched with the request ID from context.
// Pointer results let callers chain level methods directly.
func ForRequest(ctx context.Context) *zerolog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return &log.Logger
	}
	l := log.Logger.With().Str("requestId", id).Logger()
	return &l
}

// ForConnection returns a logger for one WebSocket connection.
func ForConnection(connID, userID string) zerolog.Logger {
	return log.Logger.With().Str("connId", connID).Str("userId", userID).Logger()
}

// ForSession returns a logger tagged with a session code.
func ForSession(code string) *zerolog.Logger {
	l := log.Logger.With().Str("session", code).Logger()
	return &l
}

// LogRequest logs the request body at debug level, truncating if too long.
func LogRequest(logger zerolog.Logger, body []byte) {
	if len(body) == 0 {
		return
	}
	if len(body) > 1000 {
		logger.Debug().Str("request_body", string(body[:1000])).Bool("truncated", true).Msg("Request body")
	} else {
		logger.Debug().Str("request_body", string(body)).Msg("Request body")
	}
}
