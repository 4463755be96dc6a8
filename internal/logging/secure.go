// Package logging wraps zerolog so that every string, message and error
// written to the inspection logs has credentials redacted first.
package logging

import (
	"io"
	"time"

	"github.com/olegiv/go-logger"
	internalerrors "github.com/olegiv/drfeedback-go/internal/errors"
	"github.com/rs/zerolog"
)

// SecureLogger sanitizes all string values before they reach the
// underlying zerolog logger.
type SecureLogger struct {
	zl    zerolog.Logger
	close func() error
}

// NewSecure wraps a file-rotating go-logger instance.
func NewSecure(log *logger.Logger) *SecureLogger {
	return &SecureLogger{zl: log.Logger, close: log.Close}
}

// NewWriter logs JSON lines to w. Used by tests and one-shot tools.
func NewWriter(w io.Writer) *SecureLogger {
	return &SecureLogger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop discards everything.
func Nop() *SecureLogger {
	return &SecureLogger{zl: zerolog.Nop()}
}

// With returns a child logger carrying a sanitized string field on
// every event, e.g. the report id of a run.
func (s *SecureLogger) With(key, val string) *SecureLogger {
	return &SecureLogger{
		zl:    s.zl.With().Str(key, internalerrors.SanitizeString(val)).Logger(),
		close: s.close,
	}
}

// SecureEvent wraps a zerolog Event to provide secure string methods.
type SecureEvent struct {
	event *zerolog.Event
}

func (s *SecureLogger) Info() *SecureEvent {
	return &SecureEvent{event: s.zl.Info()}
}

func (s *SecureLogger) Debug() *SecureEvent {
	return &SecureEvent{event: s.zl.Debug()}
}

func (s *SecureLogger) Warn() *SecureEvent {
	return &SecureEvent{event: s.zl.Warn()}
}

func (s *SecureLogger) Error() *SecureEvent {
	return &SecureEvent{event: s.zl.Error()}
}

// Close closes the underlying log file, if any.
func (s *SecureLogger) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Str adds a sanitized string field to the log event.
func (e *SecureEvent) Str(key, val string) *SecureEvent {
	e.event.Str(key, internalerrors.SanitizeString(val))
	return e
}

// Strs adds a list of sanitized strings, such as bundle filenames.
func (e *SecureEvent) Strs(key string, vals []string) *SecureEvent {
	clean := make([]string, len(vals))
	for i, v := range vals {
		clean[i] = internalerrors.SanitizeString(v)
	}
	e.event.Strs(key, clean)
	return e
}

func (e *SecureEvent) Int(key string, val int) *SecureEvent {
	e.event.Int(key, val)
	return e
}

func (e *SecureEvent) Int64(key string, val int64) *SecureEvent {
	e.event.Int64(key, val)
	return e
}

func (e *SecureEvent) Bool(key string, val bool) *SecureEvent {
	e.event.Bool(key, val)
	return e
}

// Dur adds a duration field, e.g. how long an inspection run took.
func (e *SecureEvent) Dur(key string, val time.Duration) *SecureEvent {
	e.event.Int64(key+"_ms", val.Milliseconds())
	return e
}

// Err adds a sanitized error field to the log event.
func (e *SecureEvent) Err(err error) *SecureEvent {
	if err != nil {
		e.event.Err(internalerrors.SanitizeError(err))
	}
	return e
}

// Msg sends the log event with a sanitized message.
func (e *SecureEvent) Msg(msg string) {
	e.event.Msg(internalerrors.SanitizeString(msg))
}

// Msgf sends a formatted log event. String and error arguments are
// sanitized; other types pass through unchanged.
func (e *SecureEvent) Msgf(format string, v ...interface{}) {
	args := make([]interface{}, len(v))
	for i, arg := range v {
		switch a := arg.(type) {
		case string:
			args[i] = internalerrors.SanitizeString(a)
		case error:
			args[i] = internalerrors.SanitizeError(a)
		default:
			args[i] = arg
		}
	}
	e.event.Msgf(format, args...)
}
