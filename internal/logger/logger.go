package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the global logger. Timestamps are dropped when running
// under a service manager, which stamps lines itself.
func Init(level string, isService bool) error {
	return InitWriter(os.Stdout, level, isService)
}

// InitWriter is Init with an explicit destination.
func InitWriter(out io.Writer, level string, isService bool) error {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.NoColor = true
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	return SetLogLevel(level)
}

// SetLogLevel sets the global log level from its textual name.
func SetLogLevel(level string) error {
	if level == "" {
		level = "info"
	}
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
	zerolog.SetGlobalLevel(lvl)

	return nil
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{withCode(log.Error(), err)}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return &LogEvent{withCode(log.Fatal(), err)}
}

func withCode(e *zerolog.Event, err errors.Error) *zerolog.Event {
	return e.Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())
}

type component struct {
	fields map[string]string
	nop    bool
}

// Component returns a Logger tagging every event with the component name.
func Component(name string) Logger {
	return &component{fields: map[string]string{"component": name}}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &component{nop: true}
}

func (c *component) base() zerolog.Logger {
	if c.nop {
		return zerolog.Nop()
	}
	ctx := log.With()
	for k, v := range c.fields {
		ctx = ctx.Str(k, v)
	}

	return ctx.Logger()
}

func (c *component) Debug() *LogEvent {
	l := c.base()
	return &LogEvent{l.Debug()}
}

func (c *component) Info() *LogEvent {
	l := c.base()
	return &LogEvent{l.Info()}
}

func (c *component) Warn() *LogEvent {
	l := c.base()
	return &LogEvent{l.Warn()}
}

func (c *component) Error() *LogEvent {
	l := c.base()
	return &LogEvent{l.Error()}
}

func (c *component) ErrorWithCode(err errors.Error) *LogEvent {
	l := c.base()
	return &LogEvent{withCode(l.Error(), err)}
}

func (c *component) With(key, value string) Logger {
	fields := make(map[string]string, len(c.fields)+1)
	for k, v := range c.fields {
		fields[k] = v
	}
	fields[key] = value

	return &component{fields: fields, nop: c.nop}
}
